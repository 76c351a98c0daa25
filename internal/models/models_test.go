package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactStateMachine(t *testing.T) {
	all := []ContactStatus{ContactPending, ContactAccepted, ContactIgnored}

	for _, from := range all {
		for _, to := range all {
			want := from == ContactPending && to != ContactPending
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	next, err := ContactPending.Transition(ContactAccepted)
	require.NoError(t, err)
	assert.Equal(t, ContactAccepted, next)
	assert.True(t, next.Final())

	// Never back to PENDING, never across final states
	_, err = ContactAccepted.Transition(ContactPending)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = ContactIgnored.Transition(ContactAccepted)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestTimestampShapes(t *testing.T) {
	inputs := map[string]time.Time{
		`"2025-03-01T10:00:00Z"`:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		`"2025-03-01T12:00:00+02:00"`:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		`"2025-03-01T10:00:00.123456"`: time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC),
		`"2025-03-01 10:00:00"`:        time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	for raw, want := range inputs {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.True(t, want.Equal(ts.Time), raw)
	}

	var empty Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.True(t, empty.IsZero())

	var bad Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}

func TestContactRequestPayload(t *testing.T) {
	object := InboxItem{
		ID:      1,
		Type:    InboxContactRequest,
		Status:  string(ContactPending),
		Payload: json.RawMessage(`{"request_id": "42", "requester_name": "Ada", "course_number": "CS101"}`),
	}
	p, err := object.ContactRequest()
	require.NoError(t, err)
	assert.Equal(t, FlexID(42), p.RequestID)
	assert.Equal(t, "Ada", p.RequesterName)

	encoded := InboxItem{
		ID:      2,
		Type:    InboxContactRequest,
		Payload: json.RawMessage(`"{\"request_id\": 7}"`),
	}
	p, err = encoded.ContactRequest()
	require.NoError(t, err)
	assert.Equal(t, FlexID(7), p.RequestID)

	other := InboxItem{ID: 3, Type: InboxPostReply, Payload: json.RawMessage(`{}`)}
	_, err = other.ContactRequest()
	assert.Error(t, err)

	missing := InboxItem{ID: 4, Type: InboxContactRequest, Payload: json.RawMessage(`{"requester_name": "x"}`)}
	_, err = missing.ContactRequest()
	assert.Error(t, err)
}

func TestCaretToggleApply(t *testing.T) {
	post := Post{ID: 9, CaretCount: 5, HasCaret: false, Content: "hi"}
	got := CaretToggle{PostID: 9, CaretCount: 6, HasCaret: true}.Apply(post)

	assert.Equal(t, 6, got.CaretCount)
	assert.True(t, got.HasCaret)
	assert.Equal(t, "hi", got.Content)

	// Applying the same server answer again is a no-op
	assert.Equal(t, got, CaretToggle{PostID: 9, CaretCount: 6, HasCaret: true}.Apply(got))
}

func TestReflectionLive(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

	fresh := Reflection{CreatedAt: Timestamp{now.Add(-23 * time.Hour)}}
	stale := Reflection{CreatedAt: Timestamp{now.Add(-25 * time.Hour)}}

	assert.True(t, fresh.Live(now))
	assert.False(t, stale.Live(now))
	assert.False(t, Reflection{}.Live(now))
}

func TestLeaderboardRowValue(t *testing.T) {
	var rows []LeaderboardRow
	require.NoError(t, json.Unmarshal([]byte(`[
		{"rank": 1, "score": 12.5, "user": {"id": 1, "full_name": "A"}},
		{"rank": 2, "combined_score": 0.8, "pA": 0.5, "pR": 0.3, "user": {"id": 2, "full_name": "B"}}
	]`), &rows))

	assert.Equal(t, 12.5, rows[0].Value())
	assert.Equal(t, 0.8, rows[1].Value())
	assert.Equal(t, 0.5, rows[1].PA)

	kind, ok := ParseLeaderboardKind("combined")
	assert.True(t, ok)
	assert.Equal(t, LeaderboardCombined, kind)
	_, ok = ParseLeaderboardKind("weekly")
	assert.False(t, ok)
}
