package screens

import (
	"context"
	"sync"
	"time"

	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/poll"
)

// AdminAPI is the API surface the admin verification screen needs
type AdminAPI interface {
	AdminVerifications(ctx context.Context, status string) ([]models.Verification, error)
	ApproveVerification(ctx context.Context, id int64, notes string) (models.Verification, error)
	RejectVerification(ctx context.Context, id int64, notes string) (models.Verification, error)
}

// Admin reviews verification requests under the admin token
type Admin struct {
	*base
	client AdminAPI
	items  *poll.Collection[models.Verification]

	statusMu sync.Mutex
	status   string
}

// NewAdmin creates the admin verification screen filtered to PENDING
func NewAdmin(client AdminAPI, deps Deps, interval time.Duration) *Admin {
	s := &Admin{
		base:   newBase("admin", "Unable to load verifications.", deps),
		client: client,
		status: models.VerificationPending,
	}
	s.items = poll.NewCollection("verifications", func(ctx context.Context) ([]models.Verification, error) {
		return client.AdminVerifications(ctx, s.Status())
	}, func(v models.Verification) int64 { return v.ID }, deps.pollOptions()...)
	s.poller(interval, s.items)
	return s
}

// Mount sends viewers without an admin token to the admin login
func (s *Admin) Mount(ctx context.Context) error {
	if !s.deps.Tokens.Has(ctx, auth.Admin) {
		s.deps.Navigator.Replace(auth.Admin.LoginPath())
		return ErrRedirected
	}
	return s.base.Mount(ctx)
}

// Status returns the status filter
func (s *Admin) Status() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// SetStatus switches the filter and reloads
func (s *Admin) SetStatus(ctx context.Context, status string) error {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()

	s.clearError()
	return settle(s.items.Load(ctx, false))
}

// Verifications returns the verification list state
func (s *Admin) Verifications() poll.State[[]models.Verification] {
	return s.items.Snapshot()
}

// Approve approves a verification
func (s *Admin) Approve(ctx context.Context, id int64, notes string) error {
	v, err := s.client.ApproveVerification(ctx, id, notes)
	if err != nil {
		return s.fail(err, "Unable to approve verification.")
	}
	s.decided(v)
	return nil
}

// Reject rejects a verification
func (s *Admin) Reject(ctx context.Context, id int64, notes string) error {
	v, err := s.client.RejectVerification(ctx, id, notes)
	if err != nil {
		return s.fail(err, "Unable to reject verification.")
	}
	s.decided(v)
	return nil
}

// decided drops a decided item from a PENDING list and updates it in place
// under any other filter
func (s *Admin) decided(v models.Verification) {
	s.clearError()
	if s.Status() == models.VerificationPending {
		s.items.Remove(v.ID)
		return
	}
	s.items.Patch(v.ID, func(models.Verification) models.Verification { return v })
}
