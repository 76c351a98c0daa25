package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/recach/recach/internal/live"
	"github.com/recach/recach/internal/themes"
	"github.com/recach/recach/internal/tui"
)

var (
	configPath string
	apiBase    string
	themeName  string
)

// rootCmd runs the terminal UI
var rootCmd = &cobra.Command{
	Use:   "recach",
	Short: "recach^ terminal client",
	Long: `recach is a terminal client for the recach^ network: your feed, circle,
leaderboards and inbox, kept fresh by polling, with notification badges and
an admin console for verifications.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (TOML or YAML)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "API base URL (overrides config)")
	rootCmd.Flags().StringVar(&themeName, "theme", "", "Theme name (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTUI(cmd *cobra.Command, args []string) error {
	router := tui.NewRouter()
	svc, err := newServices(router)
	if err != nil {
		return err
	}
	defer svc.Close()

	name := svc.cfg.UI.Theme
	if themeName != "" {
		name = themeName
	}
	theme, err := themes.GetTheme(name)
	if err != nil {
		svc.logger.Warn().Err(err).Str("theme", name).Msg("using default theme")
		theme = themes.GetDefaultTheme()
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Logins and logouts from other terminals
	if err := svc.tokens.Watch(ctx); err != nil {
		svc.logger.Warn().Err(err).Msg("cannot watch storage")
	}

	if svc.cfg.Live.Enabled {
		sub, err := live.New(live.Options{
			BaseURL: svc.client.BaseURL(),
			Tokens:  svc.tokens,
			Bus:     svc.bus,
			Logger:  svc.logger,
		})
		if err != nil {
			return err
		}
		go sub.Run(ctx)
	}

	app := tui.NewApp(tui.Options{
		Client:  svc.client,
		Router:  router,
		Tokens:  svc.tokens,
		Backend: svc.backend,
		Bus:     svc.bus,
		Config:  svc.cfg,
		Metrics: svc.metrics,
		Theme:   theme,
		Logger:  svc.logger,
	})

	p := tea.NewProgram(
		app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	_, err = p.Run()
	app.Close()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
