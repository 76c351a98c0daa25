package screens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
)

var (
	// ErrCoolingDown is returned for a submission during the cooldown
	ErrCoolingDown = errors.New("please wait before submitting again")

	// ErrSubmitting is returned while another submission is in flight
	ErrSubmitting = errors.New("submission in progress")
)

// FormsAPI is the API surface the education and work forms need
type FormsAPI interface {
	AddEducation(ctx context.Context, in models.EducationInput) (models.Education, error)
	EducationScore(ctx context.Context, id int64) (models.EducationScore, error)
	AddWork(ctx context.Context, in models.WorkInput) (models.Work, error)
	WorkScore(ctx context.Context, id int64) (models.WorkScore, error)
	AchievementScore(ctx context.Context) (models.Score, error)
}

// EducationResult is a submitted education entry with its score
type EducationResult struct {
	Entry models.Education
	Score models.EducationScore
}

// WorkResult is a submitted work entry with its score
type WorkResult struct {
	Entry models.Work
	Score models.WorkScore
}

// Forms submits education and work entries for verification
type Forms struct {
	*base
	client   FormsAPI
	tracker  *notify.ScoreTracker
	cooldown *Cooldown

	submitMu   sync.Mutex
	submitting bool
	status     string
}

// NewForms creates the submission forms. tracker may be nil.
func NewForms(client FormsAPI, tracker *notify.ScoreTracker, gate Gate, deps Deps, cooldown time.Duration) *Forms {
	s := &Forms{
		base:     newBase("forms", "", deps),
		client:   client,
		tracker:  tracker,
		cooldown: NewCooldown(deps.clock(), cooldown),
	}
	s.gate = gate
	s.cooldown.OnChange(func(int) { s.changed() })
	return s
}

// Cooldown returns the resubmission cooldown
func (s *Forms) Cooldown() *Cooldown { return s.cooldown }

// Status returns the outcome of the last submission
func (s *Forms) Status() string {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	return s.status
}

// Unmount stops the cooldown along with the screen
func (s *Forms) Unmount() {
	s.cooldown.Stop()
	s.base.Unmount()
}

func (s *Forms) begin() error {
	if s.cooldown.Active() {
		return ErrCoolingDown
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if s.submitting {
		return ErrSubmitting
	}
	s.submitting = true
	s.status = ""
	return nil
}

func (s *Forms) end(status string, ok bool) {
	s.submitMu.Lock()
	s.submitting = false
	s.status = status
	s.submitMu.Unlock()

	if ok {
		s.cooldown.Start()
	}
	s.changed()
}

// SubmitEducation adds an education entry, then fetches its score and the
// viewer's achievement score
func (s *Forms) SubmitEducation(ctx context.Context, in models.EducationInput) (EducationResult, error) {
	var res EducationResult
	if err := validateEducation(in); err != nil {
		return res, s.fail(err, err.Error())
	}
	if err := s.begin(); err != nil {
		return res, err
	}

	const fallback = "Unable to add education entry."
	entry, err := s.client.AddEducation(ctx, in)
	if err != nil {
		s.end(fallback, false)
		return res, s.fail(err, fallback)
	}
	res.Entry = entry

	if res.Score, err = s.client.EducationScore(ctx, entry.ID); err != nil {
		s.end(fallback, false)
		return res, s.fail(err, fallback)
	}
	s.trackAchievement(ctx)

	s.clearError()
	s.end("Education entry submitted.", true)
	return res, nil
}

// SubmitWork adds a work entry, then fetches its score and the viewer's
// achievement score
func (s *Forms) SubmitWork(ctx context.Context, in models.WorkInput) (WorkResult, error) {
	var res WorkResult
	if err := validateWork(in); err != nil {
		return res, s.fail(err, err.Error())
	}
	if err := s.begin(); err != nil {
		return res, err
	}

	const fallback = "Unable to add work entry."
	entry, err := s.client.AddWork(ctx, in)
	if err != nil {
		s.end(fallback, false)
		return res, s.fail(err, fallback)
	}
	res.Entry = entry

	if res.Score, err = s.client.WorkScore(ctx, entry.ID); err != nil {
		s.end(fallback, false)
		return res, s.fail(err, fallback)
	}
	s.trackAchievement(ctx)

	s.clearError()
	s.end("Work entry submitted.", true)
	return res, nil
}

func (s *Forms) trackAchievement(ctx context.Context) {
	if s.tracker == nil {
		return
	}
	score, err := s.client.AchievementScore(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("achievement score unavailable after submit")
		return
	}
	s.tracker.Achievement(ctx, score)
}

func validateEducation(in models.EducationInput) error {
	var missing []string
	if strings.TrimSpace(in.DegreeType) == "" {
		missing = append(missing, "degree_type")
	}
	if strings.TrimSpace(in.CollegeID) == "" {
		missing = append(missing, "college_id")
	}
	if strings.TrimSpace(in.AdvisorName) == "" {
		missing = append(missing, "advisor_name")
	}
	if strings.TrimSpace(in.AdvisorEmail) == "" {
		missing = append(missing, "advisor_email")
	}
	return missingFields(missing)
}

func validateWork(in models.WorkInput) error {
	var missing []string
	if strings.TrimSpace(in.CompanyName) == "" {
		missing = append(missing, "company_name")
	}
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(in.StartDate) == "" {
		missing = append(missing, "start_date")
	}
	if strings.TrimSpace(in.SupervisorName) == "" {
		missing = append(missing, "supervisor_name")
	}
	if strings.TrimSpace(in.SupervisorEmail) == "" {
		missing = append(missing, "supervisor_email")
	}
	return missingFields(missing)
}

func missingFields(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return fmt.Errorf("missing %s", strings.Join(fields, ", "))
}
