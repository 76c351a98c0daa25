package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidTransition is returned for a contact request status change the
// state machine does not allow
var ErrInvalidTransition = errors.New("invalid contact request transition")

// ContactStatus is the state of a contact request
type ContactStatus string

const (
	ContactPending  ContactStatus = "PENDING"
	ContactAccepted ContactStatus = "ACCEPTED"
	ContactIgnored  ContactStatus = "IGNORED"
)

// CanTransition reports whether a request may move from one status to another.
// Only PENDING requests move, and only to ACCEPTED or IGNORED.
func CanTransition(from, to ContactStatus) bool {
	return from == ContactPending && (to == ContactAccepted || to == ContactIgnored)
}

// Transition returns the next status or ErrInvalidTransition
func (s ContactStatus) Transition(to ContactStatus) (ContactStatus, error) {
	if !CanTransition(s, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

// Final reports whether no further transition exists
func (s ContactStatus) Final() bool {
	return s == ContactAccepted || s == ContactIgnored
}

// InboxType is the kind of an inbox item
type InboxType string

const (
	InboxContactRequest         InboxType = "CONTACT_REQUEST"
	InboxContactAccepted        InboxType = "CONTACT_ACCEPTED"
	InboxPostReply              InboxType = "POST_REPLY"
	InboxPostReplyReaction      InboxType = "POST_REPLY_REACTION"
	InboxRecommendationApproved InboxType = "RECOMMENDATION_APPROVED"
)

// Inbox item read states. Contact requests use ContactStatus instead.
const (
	InboxUnread = "UNREAD"
	InboxRead   = "READ"
)

// InboxItem is a polymorphic inbox entry. Payload holds the type-specific
// fields as the server sent them.
type InboxItem struct {
	ID        int64           `json:"id"`
	Type      InboxType       `json:"type"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload_json,omitempty"`
	CreatedAt Timestamp       `json:"created_at"`
}

// ContactRequestPayload is the payload of a CONTACT_REQUEST item
type ContactRequestPayload struct {
	RequestID     FlexID `json:"request_id"`
	RequesterName string `json:"requester_name"`
	CourseNumber  string `json:"course_number"`
	CourseName    string `json:"course_name"`
	University    string `json:"university"`
}

// Decode unmarshals the payload into v. Payloads sent as a JSON-encoded
// string are unwrapped first.
func (i InboxItem) Decode(v any) error {
	raw := i.Payload
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("inbox item %d has no payload", i.ID)
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("inbox item %d payload: %w", i.ID, err)
		}
		raw = json.RawMessage(inner)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("inbox item %d payload: %w", i.ID, err)
	}
	return nil
}

// ContactRequest decodes a CONTACT_REQUEST payload
func (i InboxItem) ContactRequest() (ContactRequestPayload, error) {
	var p ContactRequestPayload
	if i.Type != InboxContactRequest {
		return p, fmt.Errorf("inbox item %d is %s, not a contact request", i.ID, i.Type)
	}
	if err := i.Decode(&p); err != nil {
		return p, err
	}
	if p.RequestID == 0 {
		return p, fmt.Errorf("inbox item %d has no request_id", i.ID)
	}
	return p, nil
}

// FlexID is an integer id that may arrive as a JSON number or string
type FlexID int64

func (f *FlexID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	if s == "" {
		*f = 0
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*f = FlexID(n)
	return nil
}

// ContactReveal is the one-shot contact value of an accepted request
type ContactReveal struct {
	RequestID FlexID `json:"request_id"`
	Contact   string `json:"contact"`
}

// CaretNotification reports that someone gave one of the viewer's posts a caret
type CaretNotification struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"post_id"`
	PostType    PostType  `json:"post_type"`
	PostContent string    `json:"post_content"`
	CaretCount  int       `json:"caret_count"`
	CreatedAt   Timestamp `json:"created_at"`
	Giver       UserRef   `json:"giver"`
}

// PendingRecommendation is a recommendation request awaiting the viewer
type PendingRecommendation struct {
	ID        int64     `json:"id"`
	RecType   string    `json:"rec_type"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt Timestamp `json:"created_at"`
	Requester *UserRef  `json:"requester"`
}

// RecommendationRequest asks another user for a recommendation
type RecommendationRequest struct {
	RecommenderUsername string `json:"recommender_username"`
	RecType             string `json:"rec_type"`
	Reason              string `json:"reason"`
}

// ApprovalNote accompanies a recommendation approval
type ApprovalNote struct {
	Title string `json:"note_title"`
	Body  string `json:"note_body"`
}
