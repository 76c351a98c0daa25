package database

import (
	"context"
	"fmt"

	"github.com/recach/recach/internal/models"
)

// Demo credentials created by Seed
const (
	SeedPassword      = "recach-demo"
	SeedAdminEmail    = "admin@recach.dev"
	SeedAdminPassword = "recach-admin"
)

// Seed fills an empty database with demo users and content. Seeding a
// database that already has users is a no-op.
func (db *DB) Seed(ctx context.Context) error {
	var users int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		return err
	}
	if users > 0 {
		return nil
	}

	if err := db.EnsureAdmin(ctx, SeedAdminEmail, SeedAdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	ids := map[string]int64{}
	for _, u := range []struct{ username, name, university string }{
		{"ada", "Ada Lovelace", "University of Michigan"},
		{"grace", "Grace Hopper", "Stanford University"},
		{"alan", "Alan Turing", "Georgia Institute of Technology"},
	} {
		id, err := db.CreateUser(ctx, models.Registration{
			FullName: u.name,
			Email:    u.username + "@recach.dev",
			Password: SeedPassword,
			Username: u.username,
		})
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.username, err)
		}
		if err := db.SetUniversity(ctx, id, u.university); err != nil {
			return err
		}
		ids[u.username] = id
	}

	if _, err := db.SaveProfile(ctx, ids["ada"], models.UserProfile{
		Headline:  "Analytical engines, mostly",
		TopSkills: []string{"math", "programming"},
	}); err != nil {
		return fmt.Errorf("seed profile: %w", err)
	}

	post, err := db.CreatePost(ctx, ids["ada"], models.PostInput{
		Type:    models.PostCurrentlyBuilding,
		Content: "Notes on a machine that can compose music.",
	})
	if err != nil {
		return fmt.Errorf("seed post: %w", err)
	}
	if _, err := db.CreatePost(ctx, ids["grace"], models.PostInput{
		Type:    models.PostRecentRealization,
		Content: "It is easier to ask forgiveness than permission.",
	}); err != nil {
		return fmt.Errorf("seed post: %w", err)
	}

	if _, err := db.TogglePostCaret(ctx, ids["grace"], post.ID); err != nil {
		return fmt.Errorf("seed caret: %w", err)
	}
	if _, err := db.CreateReply(ctx, ids["alan"], post.ID, models.ReplyInput{
		Type:    models.ReplyQuestion,
		Message: "Can it think?",
	}); err != nil {
		return fmt.Errorf("seed reply: %w", err)
	}
	if _, err := db.CreateReflection(ctx, ids["alan"], models.ReflectionInput{Content: "Long run today."}); err != nil {
		return fmt.Errorf("seed reflection: %w", err)
	}

	if _, err := db.CreateContactRequest(ctx, ids["alan"], ids["ada"], "EECS 281", "Data Structures"); err != nil {
		return fmt.Errorf("seed contact request: %w", err)
	}
	if _, err := db.RequestRecommendation(ctx, ids["grace"], models.RecommendationRequest{
		RecommenderUsername: "ada",
		RecType:             "peer",
		Reason:              "We shipped the compiler together.",
	}); err != nil {
		return fmt.Errorf("seed recommendation: %w", err)
	}

	if _, err := db.AddEducation(ctx, ids["ada"], models.EducationInput{
		DegreeType:   "BS",
		CollegeID:    "umich",
		GPA:          3.9,
		IsCompleted:  true,
		AdvisorName:  "Charles Babbage",
		AdvisorEmail: "babbage@recach.dev",
	}); err != nil {
		return fmt.Errorf("seed education: %w", err)
	}
	return nil
}
