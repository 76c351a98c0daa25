package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recach/recach/internal/devapi"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devapi.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9001
token_ttl = "2h"
seed = true

[log]
level = "debug"
`), 0o600))

	cfg := devapi.DefaultConfig()
	require.NoError(t, loadConfig(path, cfg))
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL.Duration)
	assert.Equal(t, 8*time.Hour, cfg.AdminTokenTTL.Duration)
	assert.True(t, cfg.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Error(t, loadConfig(filepath.Join(t.TempDir(), "missing.toml"), cfg))
}

func TestApplyFlagsOnlyOverridesChanged(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(rootCmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "7000", "--seed"}))

	cfg := devapi.DefaultConfig()
	cfg.DatabasePath = "from-file.db"
	applyFlags(cmd, cfg)

	assert.Equal(t, 7000, cfg.Port)
	assert.True(t, cfg.Seed)
	assert.Equal(t, "from-file.db", cfg.DatabasePath)
}

func TestSetupValidation(t *testing.T) {
	m := newSetupModel(devapi.DefaultConfig())
	assert.Empty(t, m.validate())

	m.inputs[fieldPort].SetValue("eighty")
	assert.Equal(t, "Port must be a number.", m.validate())

	m.inputs[fieldPort].SetValue("8000")
	m.inputs[fieldAdminEmail].SetValue("root@recach.dev")
	assert.Equal(t, "The admin account needs a password.", m.validate())

	m.inputs[fieldAdminPassword].SetValue("secret-pass")
	assert.Empty(t, m.validate())
}
