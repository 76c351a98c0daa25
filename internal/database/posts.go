package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recach/recach/internal/models"
)

// Feed event types
const (
	FeedPost                   = "POST_CREATED"
	FeedReflection             = "REFLECTION_CREATED"
	FeedRecommendationApproved = "RECOMMENDATION_APPROVED"
	FeedVerified               = "VERIFICATION_APPROVED"
)

// --- Feed Operations ---

func (db *DB) addFeed(ctx context.Context, kind string, userID int64, message string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO feed_events (type, message, user_id, created_at) VALUES (?, ?, ?, ?)`,
		kind, message, userID, db.now())
	return err
}

// Feed returns the newest public activity first
func (db *DB) Feed(ctx context.Context, limit int) ([]models.FeedItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT f.type, f.message, f.created_at, u.id, u.username, u.full_name
		FROM feed_events f LEFT JOIN users u ON u.id = f.user_id
		ORDER BY f.id DESC LIMIT ?`, limitOr(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.FeedItem{}
	for rows.Next() {
		var item models.FeedItem
		var at time.Time
		var id sql.NullInt64
		var username, fullName sql.NullString
		if err := rows.Scan(&item.Type, &item.Message, &at, &id, &username, &fullName); err != nil {
			return nil, err
		}
		item.Timestamp = models.Timestamp{Time: at}
		if id.Valid {
			item.User = &models.UserRef{ID: id.Int64, Username: username.String, FullName: fullName.String}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Post Operations ---

const postColumns = `
	p.id, p.type, p.content, p.created_at, u.id, u.username, u.full_name, u.university,
	(SELECT COUNT(*) FROM post_carets c WHERE c.post_id = p.id),
	EXISTS (SELECT 1 FROM post_carets c WHERE c.post_id = p.id AND c.user_id = ?)`

func scanPost(row interface{ Scan(...any) error }) (models.Post, error) {
	var p models.Post
	var at time.Time
	err := row.Scan(&p.ID, &p.Type, &p.Content, &at,
		&p.User.ID, &p.User.Username, &p.User.FullName, &p.User.University,
		&p.CaretCount, &p.HasCaret)
	p.CreatedAt = models.Timestamp{Time: at}
	return p, err
}

// Posts lists circle posts newest first. viewerID 0 is anonymous; userID 0 is
// every author.
func (db *DB) Posts(ctx context.Context, viewerID int64, limit int, userID int64) ([]models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p JOIN users u ON u.id = p.user_id`
	args := []any{viewerID}
	if userID > 0 {
		query += ` WHERE p.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY p.id DESC LIMIT ?`
	args = append(args, limitOr(limit, 50))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Post returns one post as seen by viewerID
func (db *DB) Post(ctx context.Context, viewerID, postID int64) (models.Post, error) {
	p, err := scanPost(db.QueryRowContext(ctx, `SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.user_id WHERE p.id = ?`, viewerID, postID))
	return p, notFound(err)
}

// CreatePost stores a post and announces it on the feed
func (db *DB) CreatePost(ctx context.Context, userID int64, in models.PostInput) (models.Post, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO posts (user_id, type, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, in.Type, in.Content, db.now())
	if err != nil {
		return models.Post{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Post{}, err
	}

	if err := db.addFeed(ctx, FeedPost, userID, "shared a new post"); err != nil {
		return models.Post{}, err
	}
	return db.Post(ctx, userID, id)
}

// UpdatePost edits the author's own post
func (db *DB) UpdatePost(ctx context.Context, userID, postID int64, in models.PostInput) (models.Post, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE posts SET type = ?, content = ? WHERE id = ? AND user_id = ?`,
		in.Type, in.Content, postID, userID)
	if err != nil {
		return models.Post{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Post{}, ErrNotFound
	}
	return db.Post(ctx, userID, postID)
}

// DeletePost removes the author's own post
func (db *DB) DeletePost(ctx context.Context, userID, postID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM posts WHERE id = ? AND user_id = ?`, postID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PostOwner returns the author of a post
func (db *DB) PostOwner(ctx context.Context, postID int64) (int64, error) {
	var owner int64
	err := db.QueryRowContext(ctx, `SELECT user_id FROM posts WHERE id = ?`, postID).Scan(&owner)
	return owner, notFound(err)
}

// TogglePostCaret gives or takes back the viewer's caret. Giving a caret to
// someone else's post notifies its author.
func (db *DB) TogglePostCaret(ctx context.Context, userID, postID int64) (models.CaretToggle, error) {
	owner, err := db.PostOwner(ctx, postID)
	if err != nil {
		return models.CaretToggle{}, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM post_carets WHERE post_id = ? AND user_id = ?`, postID, userID)
	if err != nil {
		return models.CaretToggle{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO post_carets (post_id, user_id, created_at) VALUES (?, ?, ?)`,
			postID, userID, db.now()); err != nil {
			return models.CaretToggle{}, err
		}
		if owner != userID {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO caret_notifications (owner_id, post_id, giver_id, created_at) VALUES (?, ?, ?, ?)`,
				owner, postID, userID, db.now()); err != nil {
				return models.CaretToggle{}, err
			}
		}
	}

	p, err := db.Post(ctx, userID, postID)
	if err != nil {
		return models.CaretToggle{}, err
	}
	return models.CaretToggle{PostID: postID, CaretCount: p.CaretCount, HasCaret: p.HasCaret}, nil
}

// --- Reply Operations ---

const replyColumns = `
	r.id, r.post_id, r.type, r.message, r.created_at, r.recipient_id, r.owner_reaction,
	u.id, u.username, u.full_name,
	(SELECT COUNT(*) FROM reply_carets c WHERE c.reply_id = r.id),
	EXISTS (SELECT 1 FROM reply_carets c WHERE c.reply_id = r.id AND c.user_id = ?)`

func scanReply(row interface{ Scan(...any) error }) (models.PostReply, error) {
	var r models.PostReply
	var at time.Time
	var recipient sql.NullInt64
	err := row.Scan(&r.ID, &r.PostID, &r.Type, &r.Message, &at, &recipient, &r.OwnerReaction,
		&r.User.ID, &r.User.Username, &r.User.FullName, &r.CaretCount, &r.IsGiven)
	r.CreatedAt = models.Timestamp{Time: at}
	if recipient.Valid {
		r.RecipientID = &recipient.Int64
	}
	return r, err
}

// Replies lists a post's replies oldest first
func (db *DB) Replies(ctx context.Context, viewerID, postID int64) ([]models.PostReply, error) {
	if _, err := db.PostOwner(ctx, postID); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+replyColumns+`
		FROM replies r JOIN users u ON u.id = r.user_id
		WHERE r.post_id = ? ORDER BY r.id`, viewerID, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	replies := []models.PostReply{}
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}

func (db *DB) reply(ctx context.Context, viewerID, replyID int64) (models.PostReply, error) {
	r, err := scanReply(db.QueryRowContext(ctx, `SELECT `+replyColumns+`
		FROM replies r JOIN users u ON u.id = r.user_id WHERE r.id = ?`, viewerID, replyID))
	return r, notFound(err)
}

// CreateReply stores a reply and puts it in the post author's inbox
func (db *DB) CreateReply(ctx context.Context, userID, postID int64, in models.ReplyInput) (models.PostReply, error) {
	owner, err := db.PostOwner(ctx, postID)
	if err != nil {
		return models.PostReply{}, err
	}
	if in.Type == "" {
		in.Type = models.ReplyComment
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO replies (post_id, user_id, type, message, recipient_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		postID, userID, in.Type, in.Message, in.RecipientID, db.now())
	if err != nil {
		return models.PostReply{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PostReply{}, err
	}

	reply, err := db.reply(ctx, userID, id)
	if err != nil {
		return reply, err
	}

	if owner != userID {
		err = db.addInbox(ctx, owner, models.InboxPostReply, models.InboxUnread, 0, map[string]any{
			"post_id":  postID,
			"reply_id": id,
			"message":  in.Message,
			"from":     reply.User.Name(),
		})
	}
	return reply, err
}

// ToggleReplyCaret gives or takes back the viewer's caret on a reply
func (db *DB) ToggleReplyCaret(ctx context.Context, userID, replyID int64) (models.ReplyCaretToggle, error) {
	if _, err := db.reply(ctx, userID, replyID); err != nil {
		return models.ReplyCaretToggle{}, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM reply_carets WHERE reply_id = ? AND user_id = ?`, replyID, userID)
	if err != nil {
		return models.ReplyCaretToggle{}, err
	}
	given := false
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.ExecContext(ctx, `INSERT INTO reply_carets (reply_id, user_id) VALUES (?, ?)`, replyID, userID); err != nil {
			return models.ReplyCaretToggle{}, err
		}
		given = true
	}
	return models.ReplyCaretToggle{ReplyID: replyID, IsGiven: given}, nil
}

// SetReplyReaction records the post author's reaction to a reply. Only the
// author of the post may react.
func (db *DB) SetReplyReaction(ctx context.Context, userID, replyID int64, reaction models.Reaction) (models.ReactionResult, error) {
	reply, err := db.reply(ctx, userID, replyID)
	if err != nil {
		return models.ReactionResult{}, err
	}
	owner, err := db.PostOwner(ctx, reply.PostID)
	if err != nil {
		return models.ReactionResult{}, err
	}
	if owner != userID {
		return models.ReactionResult{}, fmt.Errorf("%w: only the post author can react", ErrConflict)
	}

	switch reaction {
	case models.ReactionNone, models.ReactionHeart, models.ReactionFire, models.ReactionLaugh:
	default:
		return models.ReactionResult{}, fmt.Errorf("%w: unknown reaction %q", ErrConflict, reaction)
	}

	if _, err := db.ExecContext(ctx, `UPDATE replies SET owner_reaction = ? WHERE id = ?`, reaction, replyID); err != nil {
		return models.ReactionResult{}, err
	}

	if reaction != models.ReactionNone && reply.User.ID != userID {
		err = db.addInbox(ctx, reply.User.ID, models.InboxPostReplyReaction, models.InboxUnread, 0, map[string]any{
			"post_id":  reply.PostID,
			"reply_id": replyID,
			"reaction": reaction,
		})
		if err != nil {
			return models.ReactionResult{}, err
		}
	}
	return models.ReactionResult{ReplyID: replyID, Reaction: reaction}, nil
}

// --- Reflection Operations ---

// Reflections lists stories still inside their visibility window
func (db *DB) Reflections(ctx context.Context, limit int) ([]models.Reflection, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.type, r.content, r.created_at, u.id, u.username, u.full_name
		FROM reflections r JOIN users u ON u.id = r.user_id
		ORDER BY r.id DESC LIMIT ?`, limitOr(limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := db.now()
	out := []models.Reflection{}
	for rows.Next() {
		var r models.Reflection
		var at time.Time
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &at, &r.User.ID, &r.User.Username, &r.User.FullName); err != nil {
			return nil, err
		}
		r.CreatedAt = models.Timestamp{Time: at}
		if r.Live(now) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// CreateReflection stores a story
func (db *DB) CreateReflection(ctx context.Context, userID int64, in models.ReflectionInput) (models.Reflection, error) {
	if in.Type == "" {
		in.Type = models.ReflectionStory
	}
	now := db.now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO reflections (user_id, type, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, in.Type, in.Content, now)
	if err != nil {
		return models.Reflection{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Reflection{}, err
	}
	user, err := db.UserRef(ctx, userID)
	if err != nil {
		return models.Reflection{}, err
	}
	if err := db.addFeed(ctx, FeedReflection, userID, "posted a reflection"); err != nil {
		return models.Reflection{}, err
	}
	return models.Reflection{ID: id, Type: in.Type, Content: in.Content, CreatedAt: models.Timestamp{Time: now}, User: user}, nil
}

func marshalPayload(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}
