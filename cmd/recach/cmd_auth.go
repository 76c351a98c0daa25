package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/recach/recach/internal/api"
	"github.com/recach/recach/internal/auth"
	"github.com/recach/recach/internal/models"
	"github.com/recach/recach/pkg/crypto"
)

var loginCmd = &cobra.Command{
	Use:   "login [username-or-email]",
	Short: "Sign in and store the access token",
	Long: `Sign in with your username or email. The password is read from the
terminal without echo. The token is kept in the configured storage and is
picked up by every running recach process.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored user token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearScope(cmd.Context(), auth.User)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin console commands",
}

var adminLoginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in to the admin console",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminLogin,
}

var adminLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored admin token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearScope(cmd.Context(), auth.Admin)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, adminCmd)
	adminCmd.AddCommand(adminLoginCmd, adminLogoutCmd)
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return prompt("")
	}
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	svc, _, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	user := ""
	if len(args) == 1 {
		user = args[0]
	} else if user, err = prompt("Username or email: "); err != nil {
		return err
	}
	password, err := promptPassword()
	if err != nil {
		return err
	}
	if user == "" || password == "" {
		return errors.New("username and password are required")
	}

	ctx := cmd.Context()
	resp, err := svc.client.Login(ctx, user, password)
	if err != nil {
		return errors.New(api.Message(err, "Unable to sign in."))
	}
	if err := svc.tokens.Set(ctx, auth.User, resp.AccessToken); err != nil {
		return err
	}

	svc.logger.Info().Str("token", crypto.Fingerprint(resp.AccessToken)).Msg("signed in")
	fmt.Println("Signed in.")
	return nil
}

func runAdminLogin(cmd *cobra.Command, args []string) error {
	svc, _, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	password, err := promptPassword()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	resp, err := svc.client.AdminLogin(ctx, models.AdminCredentials{Email: args[0], Password: password})
	if err != nil {
		return errors.New(api.Message(err, "Unable to sign in."))
	}
	if err := svc.tokens.Set(ctx, auth.Admin, resp.AccessToken); err != nil {
		return err
	}

	svc.logger.Info().Str("token", crypto.Fingerprint(resp.AccessToken)).Msg("admin signed in")
	fmt.Println("Signed in to the admin console.")
	return nil
}

func clearScope(ctx context.Context, scope auth.Scope) error {
	svc, _, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.tokens.Clear(ctx, scope); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}
