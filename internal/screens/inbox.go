package screens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/poll"
)

// ErrNotAccepted is returned when revealing a contact before the request
// was accepted
var ErrNotAccepted = errors.New("contact request not accepted")

// InboxAPI is the API surface the inbox screen needs
type InboxAPI interface {
	CaretNotifications(ctx context.Context, limit int) ([]models.CaretNotification, error)
	PendingRecommendations(ctx context.Context) ([]models.PendingRecommendation, error)
	Inbox(ctx context.Context) ([]models.InboxItem, error)
	AcceptContactRequest(ctx context.Context, requestID int64) error
	IgnoreContactRequest(ctx context.Context, requestID int64) error
	RevealContact(ctx context.Context, requestID int64) (models.ContactReveal, error)
	ApproveRecommendation(ctx context.Context, id int64, note models.ApprovalNote) error
	RejectRecommendation(ctx context.Context, id int64) error
}

// ContactRequest is a CONTACT_REQUEST inbox item with its decoded payload
type ContactRequest struct {
	Item    models.InboxItem
	Payload models.ContactRequestPayload
}

// Status returns the request status
func (c ContactRequest) Status() models.ContactStatus {
	return models.ContactStatus(c.Item.Status)
}

// Inbox shows caret notifications, recommendation requests and the inbox.
// Showing caret notifications marks them seen.
type Inbox struct {
	*base
	client    InboxAPI
	watermark *notify.Watermark

	carets          *poll.Resource[[]models.CaretNotification]
	recommendations *poll.Collection[models.PendingRecommendation]
	items           *poll.Collection[models.InboxItem]

	revealMu sync.Mutex
	reveals  map[int64]string
}

// NewInbox creates the inbox screen. gate may be nil for an unprotected
// screen.
func NewInbox(client InboxAPI, watermark *notify.Watermark, gate Gate, deps Deps, interval time.Duration) *Inbox {
	s := &Inbox{
		base:      newBase("inbox", "Unable to load inbox.", deps),
		client:    client,
		watermark: watermark,
		reveals:   make(map[int64]string),
	}
	s.gate = gate

	opts := deps.pollOptions()
	s.carets = poll.NewResource("inbox-carets", func(ctx context.Context) ([]models.CaretNotification, error) {
		return client.CaretNotifications(ctx, notify.CaretFetchLimit)
	}, opts...)
	s.recommendations = poll.NewCollection("inbox-recommendations", client.PendingRecommendations,
		func(r models.PendingRecommendation) int64 { return r.ID }, opts...)
	s.items = poll.NewCollection("inbox-items", client.Inbox,
		func(i models.InboxItem) int64 { return i.ID }, opts...)

	s.carets.OnApply(s.markSeen)
	s.poller(interval, s.carets, s.recommendations, s.items)
	return s
}

func (s *Inbox) markSeen(notes []models.CaretNotification) {
	if len(notes) == 0 {
		return
	}
	if _, err := s.watermark.Advance(context.Background(), notify.MaxCaretID(notes)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark carets seen")
	}
}

// Carets returns the caret notifications state
func (s *Inbox) Carets() poll.State[[]models.CaretNotification] {
	return s.carets.Snapshot()
}

// Recommendations returns the pending recommendation requests state
func (s *Inbox) Recommendations() poll.State[[]models.PendingRecommendation] {
	return s.recommendations.Snapshot()
}

// ContactRequests returns the contact requests in the inbox. Items whose
// payload cannot be read are skipped.
func (s *Inbox) ContactRequests() []ContactRequest {
	var out []ContactRequest
	for _, item := range s.items.Snapshot().Value {
		if item.Type != models.InboxContactRequest {
			continue
		}
		payload, err := item.ContactRequest()
		if err != nil {
			s.logger.Debug().Err(err).Msg("skipping contact request")
			continue
		}
		out = append(out, ContactRequest{Item: item, Payload: payload})
	}
	return out
}

// Items returns every other inbox item
func (s *Inbox) Items() []models.InboxItem {
	var out []models.InboxItem
	for _, item := range s.items.Snapshot().Value {
		if item.Type != models.InboxContactRequest {
			out = append(out, item)
		}
	}
	return out
}

func (s *Inbox) contactRequest(requestID int64) (ContactRequest, bool) {
	for _, req := range s.ContactRequests() {
		if int64(req.Payload.RequestID) == requestID {
			return req, true
		}
	}
	return ContactRequest{}, false
}

// Accept accepts a pending contact request
func (s *Inbox) Accept(ctx context.Context, requestID int64) error {
	return s.answer(ctx, requestID, models.ContactAccepted)
}

// Ignore ignores a pending contact request
func (s *Inbox) Ignore(ctx context.Context, requestID int64) error {
	return s.answer(ctx, requestID, models.ContactIgnored)
}

func (s *Inbox) answer(ctx context.Context, requestID int64, to models.ContactStatus) error {
	verb, call := "accept", s.client.AcceptContactRequest
	if to == models.ContactIgnored {
		verb, call = "ignore", s.client.IgnoreContactRequest
	}
	fallback := fmt.Sprintf("Unable to %s request.", verb)

	req, ok := s.contactRequest(requestID)
	if !ok {
		return s.fail(fmt.Errorf("contact request %d not found", requestID), fallback)
	}
	if _, err := req.Status().Transition(to); err != nil {
		return s.fail(err, "Request already answered.")
	}

	if err := call(ctx, requestID); err != nil {
		return s.fail(err, fallback)
	}
	s.clearError()
	s.items.Patch(req.Item.ID, func(item models.InboxItem) models.InboxItem {
		item.Status = string(to)
		return item
	})
	return nil
}

// Reveal returns the contact value of an accepted request. The value is
// fetched once per request and cached.
func (s *Inbox) Reveal(ctx context.Context, requestID int64) (string, error) {
	s.revealMu.Lock()
	contact, cached := s.reveals[requestID]
	s.revealMu.Unlock()
	if cached {
		return contact, nil
	}

	req, ok := s.contactRequest(requestID)
	if !ok || req.Status() != models.ContactAccepted {
		return "", s.fail(ErrNotAccepted, "Accept the request first.")
	}

	reveal, err := s.client.RevealContact(ctx, requestID)
	if err != nil {
		return "", s.fail(err, "Unable to reveal contact.")
	}
	s.clearError()

	s.revealMu.Lock()
	s.reveals[requestID] = reveal.Contact
	s.revealMu.Unlock()
	s.changed()
	return reveal.Contact, nil
}

// Revealed returns a contact revealed earlier
func (s *Inbox) Revealed(requestID int64) (string, bool) {
	s.revealMu.Lock()
	defer s.revealMu.Unlock()
	contact, ok := s.reveals[requestID]
	return contact, ok
}

// Approve approves a recommendation request with a note
func (s *Inbox) Approve(ctx context.Context, id int64, note models.ApprovalNote) error {
	if err := s.client.ApproveRecommendation(ctx, id, note); err != nil {
		return s.fail(err, "Unable to approve request.")
	}
	s.clearError()
	s.recommendations.Remove(id)
	return nil
}

// Reject rejects a recommendation request
func (s *Inbox) Reject(ctx context.Context, id int64) error {
	if err := s.client.RejectRecommendation(ctx, id); err != nil {
		return s.fail(err, "Unable to reject request.")
	}
	s.clearError()
	s.recommendations.Remove(id)
	return nil
}
