package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/internal/notify"
)

var (
	feedLimit          int
	verificationStatus string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the public activity feed",
	Args:  cobra.NoArgs,
	RunE:  runFeed,
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Print unread carets, contact requests and inbox items",
	Args:  cobra.NoArgs,
	RunE:  runInbox,
}

var verificationsCmd = &cobra.Command{
	Use:   "verifications",
	Short: "List education and work verifications",
	Long: `List verifications awaiting review. Example usage:
  recach admin verifications                   # pending only
  recach admin verifications --status APPROVED
  recach admin verifications --status ""       # everything`,
	Args: cobra.NoArgs,
	RunE: runVerifications,
}

func init() {
	rootCmd.AddCommand(feedCmd, inboxCmd)
	adminCmd.AddCommand(verificationsCmd)

	feedCmd.Flags().IntVar(&feedLimit, "limit", 20, "Number of feed items")
	verificationsCmd.Flags().StringVar(&verificationStatus, "status", models.VerificationPending, "Status filter: PENDING, APPROVED, REJECTED or empty for all")
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func runFeed(cmd *cobra.Command, args []string) error {
	svc, rec, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	items, err := svc.client.Feed(cmd.Context(), feedLimit)
	if err != nil {
		return sessionError(rec, err)
	}

	w := newTable()
	fmt.Fprintln(w, "WHEN\tWHO\tWHAT")
	for _, item := range items {
		who := ""
		if item.User != nil {
			who = item.User.Name()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.Timestamp.Format("Jan 2 15:04"), who, item.Message)
	}
	return w.Flush()
}

func runInbox(cmd *cobra.Command, args []string) error {
	svc, rec, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if !svc.tokens.Has(ctx, auth.User) {
		return fmt.Errorf("not signed in, run `recach login`")
	}

	notes, err := svc.client.CaretNotifications(ctx, notify.CaretFetchLimit)
	if err != nil {
		return sessionError(rec, err)
	}
	items, err := svc.client.Inbox(ctx)
	if err != nil {
		return sessionError(rec, err)
	}

	watermark := notify.NewWatermark(svc.backend, svc.bus, svc.logger)
	seen := watermark.Seen(ctx)

	w := newTable()
	fmt.Fprintln(w, "KIND\tID\tDETAIL")
	for _, n := range notes {
		if n.ID <= seen {
			continue
		}
		fmt.Fprintf(w, "caret\t%d\t%s on %q\n", n.ID, n.Giver.Name(), n.PostContent)
	}
	for _, item := range items {
		switch {
		case item.Type == models.InboxContactRequest:
			p, err := item.ContactRequest()
			if err != nil || item.Status != string(models.ContactPending) {
				continue
			}
			fmt.Fprintf(w, "contact\t%d\t%s · %s %s\n", p.RequestID, p.RequesterName, p.CourseNumber, p.CourseName)
		case item.Status == models.InboxUnread:
			fmt.Fprintf(w, "inbox\t%d\t%s\n", item.ID, strings.ToLower(string(item.Type)))
		}
	}
	return w.Flush()
}

func runVerifications(cmd *cobra.Command, args []string) error {
	svc, rec, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if !svc.tokens.Has(ctx, auth.Admin) {
		return fmt.Errorf("not signed in, run `recach admin login <email>`")
	}

	list, err := svc.client.AdminVerifications(ctx, strings.ToUpper(verificationStatus))
	if err != nil {
		if api.KindOf(err) == api.KindUnauthorized {
			return sessionError(rec, err)
		}
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tSUBJECT\tSTATUS\tCONTACT\tCREATED")
	for _, v := range list {
		fmt.Fprintf(w, "%d\t%s %d\t%s\t%s <%s>\t%s\n", v.ID, v.SubjectType, v.SubjectID, v.Status, v.ContactName, v.ContactEmail, v.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
