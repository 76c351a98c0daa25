package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/recach/recach/internal/models"
)

// Recommendation statuses
const (
	RecommendationPending  = "PENDING"
	RecommendationApproved = "APPROVED"
	RecommendationRejected = "REJECTED"
)

// --- Inbox Operations ---

func (db *DB) addInbox(ctx context.Context, userID int64, kind models.InboxType, status string, requestID int64, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	var req sql.NullInt64
	if requestID > 0 {
		req = sql.NullInt64{Int64: requestID, Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO inbox (user_id, type, status, payload, request_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, kind, status, data, req, db.now())
	return err
}

// Inbox lists the user's inbox newest first
func (db *DB) Inbox(ctx context.Context, userID int64) ([]models.InboxItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, type, status, payload, created_at FROM inbox
		WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.InboxItem{}
	for rows.Next() {
		var item models.InboxItem
		var payload string
		var at time.Time
		if err := rows.Scan(&item.ID, &item.Type, &item.Status, &payload, &at); err != nil {
			return nil, err
		}
		item.Payload = json.RawMessage(payload)
		item.CreatedAt = models.Timestamp{Time: at}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Contact Request Operations ---

// CreateContactRequest asks recipientID for the requester's classmate contact
// and files it in the recipient's inbox
func (db *DB) CreateContactRequest(ctx context.Context, requesterID, recipientID int64, courseNumber, courseName string) (int64, error) {
	requester, err := db.UserRef(ctx, requesterID)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO contact_requests (requester_id, recipient_id, status, course_number, course_name, university, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		requesterID, recipientID, models.ContactPending, courseNumber, courseName, requester.University, db.now())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	err = db.addInbox(ctx, recipientID, models.InboxContactRequest, string(models.ContactPending), id, map[string]any{
		"request_id":     id,
		"requester_name": requester.Name(),
		"course_number":  courseNumber,
		"course_name":    courseName,
		"university":     requester.University,
	})
	return id, err
}

// TransitionContactRequest moves a pending request addressed to userID. The
// matching inbox item follows the request's status; accepting also tells the
// requester.
func (db *DB) TransitionContactRequest(ctx context.Context, userID, requestID int64, to models.ContactStatus) error {
	var requesterID int64
	var status models.ContactStatus
	err := db.QueryRowContext(ctx, `
		SELECT requester_id, status FROM contact_requests WHERE id = ? AND recipient_id = ?`,
		requestID, userID).Scan(&requesterID, &status)
	if err != nil {
		return notFound(err)
	}

	next, err := status.Transition(to)
	if err != nil {
		return fmt.Errorf("%w: request is already %s", ErrConflict, status)
	}

	if _, err := db.ExecContext(ctx, `UPDATE contact_requests SET status = ? WHERE id = ?`, next, requestID); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		UPDATE inbox SET status = ? WHERE request_id = ? AND type = ?`,
		next, requestID, models.InboxContactRequest); err != nil {
		return err
	}

	if next == models.ContactAccepted {
		recipient, err := db.UserRef(ctx, userID)
		if err != nil {
			return err
		}
		return db.addInbox(ctx, requesterID, models.InboxContactAccepted, models.InboxUnread, requestID, map[string]any{
			"request_id":     requestID,
			"recipient_name": recipient.Name(),
		})
	}
	return nil
}

// RevealContact returns the requester's contact for an accepted request
// addressed to userID
func (db *DB) RevealContact(ctx context.Context, userID, requestID int64) (models.ContactReveal, error) {
	var status models.ContactStatus
	var contact string
	err := db.QueryRowContext(ctx, `
		SELECT cr.status, u.contact FROM contact_requests cr JOIN users u ON u.id = cr.requester_id
		WHERE cr.id = ? AND cr.recipient_id = ?`, requestID, userID).Scan(&status, &contact)
	if err != nil {
		return models.ContactReveal{}, notFound(err)
	}
	if status != models.ContactAccepted {
		return models.ContactReveal{}, fmt.Errorf("%w: request must be accepted first", ErrConflict)
	}
	return models.ContactReveal{RequestID: models.FlexID(requestID), Contact: contact}, nil
}

// --- Caret Notification Operations ---

// CaretNotifications lists carets given to the user's posts, newest first
func (db *DB) CaretNotifications(ctx context.Context, userID int64, limit int) ([]models.CaretNotification, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT n.id, n.post_id, p.type, p.content, n.created_at, g.id, g.username, g.full_name,
			(SELECT COUNT(*) FROM post_carets c WHERE c.post_id = n.post_id)
		FROM caret_notifications n
		JOIN posts p ON p.id = n.post_id
		JOIN users g ON g.id = n.giver_id
		WHERE n.owner_id = ? ORDER BY n.id DESC LIMIT ?`, userID, limitOr(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.CaretNotification{}
	for rows.Next() {
		var n models.CaretNotification
		var at time.Time
		if err := rows.Scan(&n.ID, &n.PostID, &n.PostType, &n.PostContent, &at,
			&n.Giver.ID, &n.Giver.Username, &n.Giver.FullName, &n.CaretCount); err != nil {
			return nil, err
		}
		n.CreatedAt = models.Timestamp{Time: at}
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- Recommendation Operations ---

// RequestRecommendation asks another user for a recommendation
func (db *DB) RequestRecommendation(ctx context.Context, requesterID int64, req models.RecommendationRequest) (int64, error) {
	recommenderID, err := db.UserIDByUsername(ctx, req.RecommenderUsername)
	if err != nil {
		return 0, err
	}
	if recommenderID == requesterID {
		return 0, fmt.Errorf("%w: cannot recommend yourself", ErrConflict)
	}

	var open int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recommendations
		WHERE requester_id = ? AND recommender_id = ? AND status = ?`,
		requesterID, recommenderID, RecommendationPending).Scan(&open); err != nil {
		return 0, err
	}
	if open > 0 {
		return 0, fmt.Errorf("%w: a request is already pending", ErrConflict)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO recommendations (requester_id, recommender_id, rec_type, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		requesterID, recommenderID, req.RecType, req.Reason, RecommendationPending, db.now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PendingRecommendations lists requests waiting on the user
func (db *DB) PendingRecommendations(ctx context.Context, userID int64) ([]models.PendingRecommendation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.rec_type, r.reason, r.status, r.created_at, u.id, u.username, u.full_name
		FROM recommendations r JOIN users u ON u.id = r.requester_id
		WHERE r.recommender_id = ? AND r.status = ? ORDER BY r.id`, userID, RecommendationPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.PendingRecommendation{}
	for rows.Next() {
		var p models.PendingRecommendation
		var at time.Time
		requester := &models.UserRef{}
		if err := rows.Scan(&p.ID, &p.RecType, &p.Reason, &p.Status, &at,
			&requester.ID, &requester.Username, &requester.FullName); err != nil {
			return nil, err
		}
		p.CreatedAt = models.Timestamp{Time: at}
		p.Requester = requester
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecideRecommendation approves or rejects a pending request addressed to
// userID. Approvals notify the requester and show up on the feed.
func (db *DB) DecideRecommendation(ctx context.Context, userID, id int64, approve bool, note models.ApprovalNote) error {
	var requesterID int64
	var status string
	err := db.QueryRowContext(ctx, `
		SELECT requester_id, status FROM recommendations WHERE id = ? AND recommender_id = ?`,
		id, userID).Scan(&requesterID, &status)
	if err != nil {
		return notFound(err)
	}
	if status != RecommendationPending {
		return fmt.Errorf("%w: recommendation is already %s", ErrConflict, status)
	}

	next := RecommendationRejected
	if approve {
		next = RecommendationApproved
	}
	if _, err := db.ExecContext(ctx, `
		UPDATE recommendations SET status = ?, note_title = ?, note_body = ? WHERE id = ?`,
		next, note.Title, note.Body, id); err != nil {
		return err
	}
	if !approve {
		return nil
	}

	recommender, err := db.UserRef(ctx, userID)
	if err != nil {
		return err
	}
	err = db.addInbox(ctx, requesterID, models.InboxRecommendationApproved, models.InboxUnread, 0, map[string]any{
		"recommendation_id": id,
		"recommender_name":  recommender.Name(),
		"note_title":        note.Title,
		"note_body":         note.Body,
	})
	if err != nil {
		return err
	}
	return db.addFeed(ctx, FeedRecommendationApproved, requesterID, "was recommended by "+recommender.Name())
}

func (db *DB) recommenders(ctx context.Context, userID int64) ([]models.UserRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT u.id, u.username, u.full_name FROM recommendations r
		JOIN users u ON u.id = r.recommender_id
		WHERE r.requester_id = ? AND r.status = ? ORDER BY r.id`, userID, RecommendationApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.UserRef{}
	for rows.Next() {
		var ref models.UserRef
		if err := rows.Scan(&ref.ID, &ref.Username, &ref.FullName); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// IsNotFound reports whether err means the row is missing
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
