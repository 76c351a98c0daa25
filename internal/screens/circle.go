package screens

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
	"github.com/recach/recach/internal/poll"
)

const (
	circlePostLimit       = 50
	circleReflectionLimit = 50
)

// CircleAPI is the API surface the circle screen and its threads need
type CircleAPI interface {
	Posts(ctx context.Context, limit int, userID int64) ([]models.Post, error)
	CreatePost(ctx context.Context, in models.PostInput) (models.Post, error)
	UpdatePost(ctx context.Context, id int64, in models.PostInput) (models.Post, error)
	DeletePost(ctx context.Context, id int64) error
	TogglePostCaret(ctx context.Context, id int64) (models.CaretToggle, error)
	Reflections(ctx context.Context, limit int) ([]models.Reflection, error)
	CreateReflection(ctx context.Context, in models.ReflectionInput) (models.Reflection, error)
	PostReplies(ctx context.Context, postID int64) ([]models.PostReply, error)
	CreatePostReply(ctx context.Context, postID int64, in models.ReplyInput) (models.PostReply, error)
	TogglePostReplyCaret(ctx context.Context, replyID int64) (models.ReplyCaretToggle, error)
	SetPostReplyReaction(ctx context.Context, replyID int64, reaction models.Reaction) (models.ReactionResult, error)
}

// Circle is the posts and stories screen. Reading works signed out; every
// action needs a user token.
type Circle struct {
	*base
	client      CircleAPI
	posts       *poll.Collection[models.Post]
	reflections *poll.Resource[[]models.Reflection]
	interval    time.Duration
}

// NewCircle creates the circle screen. Posts refresh every interval and
// stories every storyInterval.
func NewCircle(client CircleAPI, deps Deps, interval, storyInterval time.Duration) *Circle {
	s := &Circle{
		base:     newBase("circle", "Unable to load posts.", deps),
		client:   client,
		interval: interval,
	}
	s.posts = poll.NewCollection("posts", func(ctx context.Context) ([]models.Post, error) {
		return client.Posts(ctx, circlePostLimit, 0)
	}, func(p models.Post) int64 { return p.ID }, deps.pollOptions()...)
	s.reflections = poll.NewResource("reflections", func(ctx context.Context) ([]models.Reflection, error) {
		return client.Reflections(ctx, circleReflectionLimit)
	}, deps.pollOptions()...)

	s.poller(interval, s.posts)
	s.poller(storyInterval, s.reflections)
	return s
}

// Posts returns the posts state
func (s *Circle) Posts() poll.State[[]models.Post] {
	return s.posts.Snapshot()
}

// Post returns one post from the current snapshot
func (s *Circle) Post(id int64) (models.Post, bool) {
	return s.posts.Item(id)
}

// Reflections returns the stories still inside the 24 hour window
func (s *Circle) Reflections() []models.Reflection {
	now := s.deps.clock().Now()
	all := s.reflections.Snapshot().Value
	live := make([]models.Reflection, 0, len(all))
	for _, r := range all {
		if r.Live(now) {
			live = append(live, r)
		}
	}
	return live
}

// ToggleCaret gives or takes back a caret. The post shows the server's new
// count and state immediately and keeps them through polls that started
// before the toggle.
func (s *Circle) ToggleCaret(ctx context.Context, postID int64) error {
	if !s.signedIn(ctx) {
		s.deps.toast("Login to add a caret.", notify.AccentRecommend)
		return ErrLoginRequired
	}

	result, err := s.client.TogglePostCaret(ctx, postID)
	if err != nil {
		return s.fail(err, "Unable to update caret.")
	}
	s.clearError()
	s.posts.Patch(postID, result.Apply)
	return nil
}

// CreatePost publishes a post and reloads the list
func (s *Circle) CreatePost(ctx context.Context, in models.PostInput) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	if err := validatePost(in); err != nil {
		return s.fail(err, err.Error())
	}

	if _, err := s.client.CreatePost(ctx, in); err != nil {
		return s.fail(err, "Unable to create post.")
	}
	s.clearError()
	return settle(s.posts.Load(ctx, true))
}

// EditPost rewrites one of the viewer's posts
func (s *Circle) EditPost(ctx context.Context, id int64, in models.PostInput) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	if err := validatePost(in); err != nil {
		return s.fail(err, err.Error())
	}

	updated, err := s.client.UpdatePost(ctx, id, in)
	if err != nil {
		return s.fail(err, "Unable to update post.")
	}
	s.clearError()
	s.posts.Patch(id, func(p models.Post) models.Post {
		p.Type = updated.Type
		p.Content = updated.Content
		return p
	})
	return nil
}

// DeletePost removes one of the viewer's posts
func (s *Circle) DeletePost(ctx context.Context, id int64) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	if err := s.client.DeletePost(ctx, id); err != nil {
		return s.fail(err, "Unable to delete post.")
	}
	s.clearError()
	s.posts.Remove(id)
	return nil
}

// CreateReflection shares a story and reloads the stories
func (s *Circle) CreateReflection(ctx context.Context, content string) error {
	if !s.signedIn(ctx) {
		return ErrLoginRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return s.fail(fmt.Errorf("empty reflection"), "Write something first.")
	}

	in := models.ReflectionInput{Type: models.ReflectionStory, Content: content}
	if _, err := s.client.CreateReflection(ctx, in); err != nil {
		return s.fail(err, "Unable to share reflection.")
	}
	s.clearError()
	return settle(s.reflections.Load(ctx, true))
}

// Thread opens the replies under postID. The caller mounts and unmounts it.
func (s *Circle) Thread(postID int64) *Thread {
	return newThread(s.client, s.deps, s.interval, postID)
}

func validatePost(in models.PostInput) error {
	if !in.Type.Valid() {
		return fmt.Errorf("unknown post type %q", in.Type)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("post content is required")
	}
	return nil
}
