package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/recach/recach/internal/database"
	"github.com/recach/recach/internal/devapi"
	"github.com/recach/recach/internal/logging"
)

var (
	configPath    string
	host          string
	port          int
	dbPath        string
	adminEmail    string
	adminPassword string
	seed          bool
	debug         bool
)

var rootCmd = &cobra.Command{
	Use:   "recach-devapi",
	Short: "Local recach^ API for development",
	Long: `recach-devapi serves the recach^ REST API and change notices from a local
SQLite database, so the terminal client can run without the hosted service.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to configuration file")
	f.StringVar(&host, "host", "", "Host to bind to (overrides config)")
	f.IntVar(&port, "port", 0, "Port to bind to (overrides config)")
	f.StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	f.StringVar(&adminEmail, "admin-email", "", "Create or reset this admin account on startup")
	f.StringVar(&adminPassword, "admin-password", "", "Password for --admin-email")
	f.BoolVar(&seed, "seed", false, "Load demo data into an empty database")
	f.BoolVar(&debug, "debug", false, "Log at debug level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// First run: no config given and none in the working directory
	isFirstRun := configPath == ""
	if isFirstRun {
		if _, err := os.Stat(configFilename); err == nil {
			isFirstRun = false
		}
	}

	var cfg *devapi.Config
	if isFirstRun && isTerminal() {
		var err error
		if cfg, err = runFirstRunSetup(); err != nil {
			return err
		}
	} else {
		cfg = devapi.DefaultConfig()
		path := configPath
		if path == "" {
			path = configFilename
		}
		if _, err := os.Stat(path); err == nil || configPath != "" {
			if err := loadConfig(path, cfg); err != nil {
				return err
			}
		}
	}

	applyFlags(cmd, cfg)

	if cfg.Debug {
		cfg.Log.Level = "debug"
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(cfg.DatabasePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if cfg.Seed {
		if err := db.Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
		logger.Info().Msg("demo data ready")
	}

	if cfg.AdminEmail != "" {
		if cfg.AdminPassword == "" {
			return fmt.Errorf("admin %s needs a password", cfg.AdminEmail)
		}
		if err := db.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to create admin %s: %w", cfg.AdminEmail, err)
		}
		logger.Info().Str("email", cfg.AdminEmail).Msg("admin account ready")
	}

	if n, err := db.PurgeExpiredTokens(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to purge expired tokens")
	} else if n > 0 {
		logger.Debug().Int64("tokens", n).Msg("purged expired tokens")
	}

	printBanner(cfg)
	return devapi.New(cfg, db, logger).Run(ctx)
}

// applyFlags lets explicitly set flags override the file config
func applyFlags(cmd *cobra.Command, cfg *devapi.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = host
	}
	if f.Changed("port") {
		cfg.Port = port
	}
	if f.Changed("db") {
		cfg.DatabasePath = dbPath
	}
	if f.Changed("admin-email") {
		cfg.AdminEmail = adminEmail
	}
	if f.Changed("admin-password") {
		cfg.AdminPassword = adminPassword
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Changed("debug") {
		cfg.Debug = debug
	}
}

func loadConfig(path string, cfg *devapi.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func printBanner(cfg *devapi.Config) {
	banner := `
                            _
  _ __ ___  ___ __ _  ___| |__ /\
 | '__/ _ \/ __/ _' |/ __| '_ \
 | | |  __/ (_| (_| | (__| | | |
 |_|  \___|\___\__,_|\___|_| |_|

  Development API
  ===============
`
	fmt.Println(banner)
	fmt.Printf("  Serving http://%s (database %s)\n\n", cfg.Addr(), cfg.DatabasePath)
}
