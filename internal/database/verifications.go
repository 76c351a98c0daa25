package database

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/recach/recach/internal/models"
)

// Verification subject types
const (
	SubjectEducation = "education"
	SubjectWork      = "work"
)

type college struct {
	name string
	tier int
}

// colleges is the small directory the dev API resolves college ids against.
// Unknown ids are their own name at the lowest tier.
var colleges = map[string]college{
	"mit":      {"Massachusetts Institute of Technology", 1},
	"stanford": {"Stanford University", 1},
	"ucb":      {"University of California, Berkeley", 1},
	"umich":    {"University of Michigan", 2},
	"gatech":   {"Georgia Institute of Technology", 2},
	"asu":      {"Arizona State University", 3},
}

func lookupCollege(id string) college {
	if c, ok := colleges[strings.ToLower(id)]; ok {
		return c
	}
	return college{name: id, tier: 3}
}

// --- Education & Work Operations ---

// AddEducation stores an education entry and opens its verification
func (db *DB) AddEducation(ctx context.Context, userID int64, in models.EducationInput) (models.Education, error) {
	if in.DegreeType == "" || in.CollegeID == "" {
		return models.Education{}, fmt.Errorf("%w: degree_type and college_id are required", ErrConflict)
	}
	if in.GPA < 0 || in.GPA > 4 {
		return models.Education{}, fmt.Errorf("%w: gpa must be between 0 and 4", ErrConflict)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO education (user_id, degree_type, college_id, gpa, is_completed, verification_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, in.DegreeType, in.CollegeID, in.GPA, in.IsCompleted, models.VerificationPending)
	if err != nil {
		return models.Education{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Education{}, err
	}

	if err := db.openVerification(ctx, userID, SubjectEducation, id, in.AdvisorName, in.AdvisorEmail, in.AdvisorPhone); err != nil {
		return models.Education{}, err
	}
	return db.education(ctx, userID, id)
}

func (db *DB) education(ctx context.Context, userID, id int64) (models.Education, error) {
	var e models.Education
	var gpa sql.NullFloat64
	var verifiedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, degree_type, college_id, gpa, is_completed, verification_status, verified_at
		FROM education WHERE id = ? AND user_id = ?`, id, userID).Scan(
		&e.ID, &e.UserID, &e.DegreeType, &e.CollegeID, &gpa, &e.IsCompleted, &e.VerificationStatus, &verifiedAt)
	if err != nil {
		return e, notFound(err)
	}

	c := lookupCollege(e.CollegeID)
	e.UniversityName, e.UniversityTier = c.name, c.tier
	if gpa.Valid {
		e.GPA = &gpa.Float64
	}
	if verifiedAt.Valid {
		e.VerifiedAt = models.Timestamp{Time: verifiedAt.Time}
	}
	return e, nil
}

// EducationScore breaks down what one of the user's education entries is worth
func (db *DB) EducationScore(ctx context.Context, userID, id int64) (models.EducationScore, error) {
	e, err := db.education(ctx, userID, id)
	if err != nil {
		return models.EducationScore{}, err
	}
	return scoreEducation(e), nil
}

func scoreEducation(e models.Education) models.EducationScore {
	s := models.EducationScore{EducationID: e.ID, UserID: e.UserID, UniversityName: e.UniversityName}
	s.Breakdown.Base = 10
	if e.IsCompleted {
		s.Breakdown.CompletionBonus = 5
	}
	if e.GPA != nil {
		s.Breakdown.GPABonus = *e.GPA
	}
	s.Breakdown.TierBonus = float64(max(0, 4-e.UniversityTier) * 5)
	s.Total = s.Breakdown.Base + s.Breakdown.CompletionBonus + s.Breakdown.GPABonus + s.Breakdown.TierBonus
	return s
}

// AddWork stores a work entry and opens its verification
func (db *DB) AddWork(ctx context.Context, userID int64, in models.WorkInput) (models.Work, error) {
	if in.CompanyName == "" || in.Title == "" {
		return models.Work{}, fmt.Errorf("%w: company_name and title are required", ErrConflict)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO work (user_id, company_name, title, employment_type, is_current, start_date, end_date, verification_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, in.CompanyName, in.Title, in.EmploymentType, in.IsCurrent, in.StartDate, in.EndDate, models.VerificationPending)
	if err != nil {
		return models.Work{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Work{}, err
	}

	if err := db.openVerification(ctx, userID, SubjectWork, id, in.SupervisorName, in.SupervisorEmail, in.SupervisorPhone); err != nil {
		return models.Work{}, err
	}
	return db.work(ctx, userID, id)
}

func (db *DB) work(ctx context.Context, userID, id int64) (models.Work, error) {
	var w models.Work
	var verifiedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, company_name, title, employment_type, is_current, start_date, end_date,
			verification_status, verified_at
		FROM work WHERE id = ? AND user_id = ?`, id, userID).Scan(
		&w.ID, &w.UserID, &w.CompanyName, &w.Title, &w.EmploymentType, &w.IsCurrent,
		&w.StartDate, &w.EndDate, &w.VerificationStatus, &verifiedAt)
	if err != nil {
		return w, notFound(err)
	}
	if verifiedAt.Valid {
		w.VerifiedAt = models.Timestamp{Time: verifiedAt.Time}
	}
	return w, nil
}

// WorkScore breaks down what one of the user's work entries is worth
func (db *DB) WorkScore(ctx context.Context, userID, id int64) (models.WorkScore, error) {
	w, err := db.work(ctx, userID, id)
	if err != nil {
		return models.WorkScore{}, err
	}
	return scoreWork(w, db.now()), nil
}

func scoreWork(w models.Work, now time.Time) models.WorkScore {
	s := models.WorkScore{WorkID: w.ID, UserID: w.UserID, CompanyName: w.CompanyName, Title: w.Title}
	s.Breakdown.Base = 10
	s.Breakdown.Months = float64(monthsBetween(w.StartDate, w.EndDate, now))
	s.Breakdown.DurationBonus = min(s.Breakdown.Months, 60) / 6
	s.Total = s.Breakdown.Base + s.Breakdown.DurationBonus
	return s
}

// monthsBetween counts whole months from start to end, or to now when end is
// empty. Unparseable dates count as zero.
func monthsBetween(start, end string, now time.Time) int {
	from, err := models.ParseTimestamp(start)
	if err != nil {
		return 0
	}
	to := now
	if end != "" {
		parsed, err := models.ParseTimestamp(end)
		if err != nil {
			return 0
		}
		to = parsed.Time
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	return max(0, months)
}

// --- Verification Operations ---

func (db *DB) openVerification(ctx context.Context, userID int64, subject string, subjectID int64, name, email, phone string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO verifications (owner_user_id, subject_type, subject_id, status, contact_name, contact_email, contact_phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, subject, subjectID, models.VerificationPending, name, email, phone, db.now())
	return err
}

const verificationColumns = `
	id, owner_user_id, subject_type, subject_id, status, contact_name, contact_email, contact_phone,
	created_at, decided_at, decided_by, admin_notes`

func scanVerification(row interface{ Scan(...any) error }) (models.Verification, error) {
	var v models.Verification
	var createdAt time.Time
	var decidedAt sql.NullTime
	var decidedBy sql.NullInt64
	err := row.Scan(&v.ID, &v.OwnerUserID, &v.SubjectType, &v.SubjectID, &v.Status,
		&v.ContactName, &v.ContactEmail, &v.ContactPhone, &createdAt, &decidedAt, &decidedBy, &v.AdminNotes)
	v.CreatedAt = models.Timestamp{Time: createdAt}
	if decidedAt.Valid {
		v.DecidedAt = models.Timestamp{Time: decidedAt.Time}
	}
	if decidedBy.Valid {
		v.DecidedByUserID = &decidedBy.Int64
	}
	return v, err
}

// Verifications lists verification requests in a status, oldest first
func (db *DB) Verifications(ctx context.Context, status string) ([]models.Verification, error) {
	if status == "" {
		status = models.VerificationPending
	}
	rows, err := db.QueryContext(ctx, `SELECT `+verificationColumns+`
		FROM verifications WHERE status = ? ORDER BY id`, strings.ToUpper(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Verification{}
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DecideVerification approves or rejects a pending verification and marks
// its subject the same way
func (db *DB) DecideVerification(ctx context.Context, adminID, id int64, approve bool, notes string) (models.Verification, error) {
	v, err := scanVerification(db.QueryRowContext(ctx, `SELECT `+verificationColumns+`
		FROM verifications WHERE id = ?`, id))
	if err != nil {
		return v, notFound(err)
	}
	if v.Status != models.VerificationPending {
		return v, fmt.Errorf("%w: verification is already %s", ErrConflict, v.Status)
	}

	status := models.VerificationRejected
	if approve {
		status = models.VerificationApproved
	}
	now := db.now()

	if _, err := db.ExecContext(ctx, `
		UPDATE verifications SET status = ?, decided_at = ?, decided_by = ?, admin_notes = ? WHERE id = ?`,
		status, now, adminID, notes, id); err != nil {
		return v, err
	}

	table := "education"
	if v.SubjectType == SubjectWork {
		table = "work"
	}
	var verifiedAt any
	if approve {
		verifiedAt = now
	}
	if _, err := db.ExecContext(ctx, `UPDATE `+table+` SET verification_status = ?, verified_at = ? WHERE id = ?`,
		status, verifiedAt, v.SubjectID); err != nil {
		return v, err
	}

	if approve {
		if err := db.addFeed(ctx, FeedVerified, v.OwnerUserID, "verified their "+v.SubjectType); err != nil {
			return v, err
		}
	}

	v.Status = status
	v.DecidedAt = models.Timestamp{Time: now}
	v.DecidedByUserID = &adminID
	v.AdminNotes = notes
	return v, nil
}

func (db *DB) verifiedEducation(ctx context.Context, userID int64) ([]models.VerifiedEducation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT college_id, degree_type FROM education
		WHERE user_id = ? AND verification_status = ? ORDER BY id`, userID, models.VerificationApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VerifiedEducation
	for rows.Next() {
		var collegeID, degree string
		if err := rows.Scan(&collegeID, &degree); err != nil {
			return nil, err
		}
		out = append(out, models.VerifiedEducation{UniversityName: lookupCollege(collegeID).name, DegreeType: degree})
	}
	return out, rows.Err()
}

func (db *DB) verifiedWork(ctx context.Context, userID int64) ([]models.VerifiedWork, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT company_name, title FROM work
		WHERE user_id = ? AND verification_status = ? ORDER BY id`, userID, models.VerificationApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VerifiedWork
	for rows.Next() {
		var w models.VerifiedWork
		if err := rows.Scan(&w.CompanyName, &w.Title); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// --- Score Operations ---

// Scores are a user's totals. Achievement counts verified education and
// work; recommendation counts approved recommendations.
type Scores struct {
	UserID         int64
	Achievement    float64
	Recommendation float64
	Carets         int
}

// Scores computes the user's current totals
func (db *DB) Scores(ctx context.Context, userID int64) (Scores, error) {
	s := Scores{UserID: userID}

	rows, err := db.QueryContext(ctx, `
		SELECT id FROM education WHERE user_id = ? AND verification_status = ?`,
		userID, models.VerificationApproved)
	if err != nil {
		return s, err
	}
	eduIDs, err := scanIDs(rows)
	if err != nil {
		return s, err
	}
	for _, id := range eduIDs {
		e, err := db.education(ctx, userID, id)
		if err != nil {
			return s, err
		}
		s.Achievement += scoreEducation(e).Total
	}

	rows, err = db.QueryContext(ctx, `
		SELECT id FROM work WHERE user_id = ? AND verification_status = ?`,
		userID, models.VerificationApproved)
	if err != nil {
		return s, err
	}
	workIDs, err := scanIDs(rows)
	if err != nil {
		return s, err
	}
	now := db.now()
	for _, id := range workIDs {
		w, err := db.work(ctx, userID, id)
		if err != nil {
			return s, err
		}
		s.Achievement += scoreWork(w, now).Total
	}

	var recs int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recommendations WHERE requester_id = ? AND status = ?`,
		userID, RecommendationApproved).Scan(&recs); err != nil {
		return s, err
	}
	s.Recommendation = float64(recs * 10)

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM post_carets c JOIN posts p ON p.id = c.post_id
		WHERE p.user_id = ? AND c.user_id != p.user_id`, userID).Scan(&s.Carets)
	return s, err
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Leaderboard ranks users with a non-zero score of the given kind
func (db *DB) Leaderboard(ctx context.Context, kind models.LeaderboardKind, limit int) ([]models.LeaderboardRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	userIDs, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}

	var all []Scores
	var maxA, maxR float64
	for _, id := range userIDs {
		s, err := db.Scores(ctx, id)
		if err != nil {
			return nil, err
		}
		maxA, maxR = max(maxA, s.Achievement), max(maxR, s.Recommendation)
		all = append(all, s)
	}

	value := func(s Scores) float64 {
		switch kind {
		case models.LeaderboardAchievements:
			return s.Achievement
		case models.LeaderboardRecommendations:
			return s.Recommendation
		default:
			return s.Achievement + s.Recommendation
		}
	}

	all = slices.DeleteFunc(all, func(s Scores) bool { return value(s) <= 0 })
	slices.SortStableFunc(all, func(a, b Scores) int { return cmp.Compare(value(b), value(a)) })
	if n := limitOr(limit, 10); len(all) > n {
		all = all[:n]
	}

	out := make([]models.LeaderboardRow, 0, len(all))
	for i, s := range all {
		user, err := db.UserRef(ctx, s.UserID)
		if err != nil {
			return nil, err
		}
		row := models.LeaderboardRow{Rank: i + 1, User: user}
		if kind == models.LeaderboardCombined {
			row.CombinedScore = value(s)
			row.AchievementScore = s.Achievement
			row.RecommendationScore = s.Recommendation
			row.PA = percentOf(s.Achievement, maxA)
			row.PR = percentOf(s.Recommendation, maxR)
		} else {
			row.Score = value(s)
		}
		out = append(out, row)
	}
	return out, nil
}

func percentOf(v, top float64) float64 {
	if top <= 0 {
		return 0
	}
	return v / top * 100
}
