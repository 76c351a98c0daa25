package screens

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/poll"
)

// Thread is the reply list under one post
type Thread struct {
	*base
	client  CircleAPI
	postID  int64
	replies *poll.Collection[models.PostReply]
}

func newThread(client CircleAPI, deps Deps, interval time.Duration, postID int64) *Thread {
	s := &Thread{
		base:   newBase(fmt.Sprintf("thread-%d", postID), "Unable to load replies.", deps),
		client: client,
		postID: postID,
	}
	s.replies = poll.NewCollection(s.name, func(ctx context.Context) ([]models.PostReply, error) {
		return client.PostReplies(ctx, postID)
	}, func(r models.PostReply) int64 { return r.ID }, deps.pollOptions()...)
	s.poller(interval, s.replies)
	return s
}

// PostID returns the post the thread belongs to
func (s *Thread) PostID() int64 { return s.postID }

// Replies returns the replies state
func (s *Thread) Replies() poll.State[[]models.PostReply] {
	return s.replies.Snapshot()
}

// Reply posts a reply and reloads the thread
func (s *Thread) Reply(ctx context.Context, in models.ReplyInput) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	if strings.TrimSpace(in.Message) == "" {
		return s.fail(fmt.Errorf("empty reply"), "Write a reply first.")
	}
	if in.Type == "" {
		in.Type = models.ReplyComment
	}

	if _, err := s.client.CreatePostReply(ctx, s.postID, in); err != nil {
		return s.fail(err, "Unable to reply.")
	}
	s.clearError()
	return settle(s.replies.Load(ctx, true))
}

// ToggleReplyCaret gives or takes back a caret on a reply
func (s *Thread) ToggleReplyCaret(ctx context.Context, replyID int64) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	result, err := s.client.TogglePostReplyCaret(ctx, replyID)
	if err != nil {
		return s.fail(err, "Unable to update caret.")
	}
	s.clearError()
	s.replies.Patch(replyID, result.Apply)
	return nil
}

// SetReaction sets the post owner's reaction on a reply
func (s *Thread) SetReaction(ctx context.Context, replyID int64, reaction models.Reaction) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	result, err := s.client.SetPostReplyReaction(ctx, replyID, reaction)
	if err != nil {
		return s.fail(err, "Unable to react.")
	}
	s.clearError()
	s.replies.Patch(replyID, result.Apply)
	return nil
}
