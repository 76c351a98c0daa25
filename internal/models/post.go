package models

import "time"

// PostType is the prompt a circle post answers
type PostType string

const (
	PostBehindResume      PostType = "behind_resume"
	PostThisLately        PostType = "this_lately"
	PostRecentRealization PostType = "recent_realization"
	PostCurrentlyBuilding PostType = "currently_building"
)

// PostTypes lists every post type in display order
var PostTypes = []PostType{PostBehindResume, PostThisLately, PostRecentRealization, PostCurrentlyBuilding}

// Valid reports whether t is a known post type
func (t PostType) Valid() bool {
	for _, known := range PostTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Post is a circle post
type Post struct {
	ID         int64     `json:"id"`
	Type       PostType  `json:"type"`
	Content    string    `json:"content"`
	CreatedAt  Timestamp `json:"created_at"`
	User       UserRef   `json:"user"`
	CaretCount int       `json:"caret_count"`
	HasCaret   bool      `json:"has_caret"`
}

// PostInput creates or edits a post
type PostInput struct {
	Type    PostType `json:"type"`
	Content string   `json:"content"`
}

// CaretToggle is the server's answer to a post caret toggle
type CaretToggle struct {
	PostID     int64 `json:"post_id"`
	CaretCount int   `json:"caret_count"`
	HasCaret   bool  `json:"has_caret"`
}

// Apply returns p with the toggle's authoritative values
func (c CaretToggle) Apply(p Post) Post {
	p.CaretCount = c.CaretCount
	p.HasCaret = c.HasCaret
	return p
}

// Reaction is the post owner's reaction to a reply
type Reaction string

const (
	ReactionNone  Reaction = "NONE"
	ReactionHeart Reaction = "HEART"
	ReactionFire  Reaction = "FIRE"
	ReactionLaugh Reaction = "LAUGH"
)

// ReplyType classifies a reply
type ReplyType string

const (
	ReplyComment  ReplyType = "comment"
	ReplyQuestion ReplyType = "question"
)

// PostReply is a reply under a post
type PostReply struct {
	ID            int64     `json:"id"`
	PostID        int64     `json:"post_id"`
	Type          ReplyType `json:"type"`
	Message       string    `json:"message"`
	CreatedAt     Timestamp `json:"created_at"`
	User          UserRef   `json:"user"`
	RecipientID   *int64    `json:"recipient_id,omitempty"`
	CaretCount    int       `json:"caret_count"`
	IsGiven       bool      `json:"is_given"`
	OwnerReaction Reaction  `json:"owner_reaction,omitempty"`
}

// ReplyInput creates a reply
type ReplyInput struct {
	Type        ReplyType `json:"type"`
	Message     string    `json:"message"`
	RecipientID *int64    `json:"recipient_id,omitempty"`
}

// ReplyCaretToggle is the server's answer to a reply caret toggle
type ReplyCaretToggle struct {
	ReplyID int64 `json:"reply_id"`
	IsGiven bool  `json:"is_given"`
}

// Apply returns r with the toggle's authoritative values
func (c ReplyCaretToggle) Apply(r PostReply) PostReply {
	r.IsGiven = c.IsGiven
	return r
}

// ReactionResult is the server's answer to setting an owner reaction
type ReactionResult struct {
	ReplyID  int64    `json:"reply_id"`
	Reaction Reaction `json:"reaction"`
}

// Apply returns r with the result's reaction
func (c ReactionResult) Apply(r PostReply) PostReply {
	r.OwnerReaction = c.Reaction
	return r
}

// StoryTTL is how long a story reflection stays visible
const StoryTTL = 24 * time.Hour

// ReflectionType classifies a reflection
type ReflectionType string

const ReflectionStory ReflectionType = "story"

// Reflection is a short-lived story
type Reflection struct {
	ID        int64          `json:"id"`
	Type      ReflectionType `json:"type"`
	Content   string         `json:"content"`
	CreatedAt Timestamp      `json:"created_at"`
	User      UserRef        `json:"user"`
}

// Live reports whether the reflection is still inside its visibility window
func (r Reflection) Live(now time.Time) bool {
	if r.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(r.CreatedAt.Time) < StoryTTL
}

// ReflectionInput creates a reflection
type ReflectionInput struct {
	Type    ReflectionType `json:"type"`
	Content string         `json:"content"`
}
