package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/term"

	"github.com/recach/recach/internal/devapi"
	"github.com/recach/recach/internal/themes"
)

// configFilename is the default config file written by setup
const configFilename = "recach-devapi.toml"

// setupModel asks for the few settings a fresh dev API needs
type setupModel struct {
	inputs    []textinput.Model
	focused   int
	done      bool
	cancelled bool
	err       string
}

const (
	fieldHost = iota
	fieldPort
	fieldDB
	fieldAdminEmail
	fieldAdminPassword
	numFields
)

var fieldLabels = [numFields]string{"Bind host", "Port", "Database path", "Admin email (optional)", "Admin password"}

func newSetupModel(defaults *devapi.Config) setupModel {
	inputs := make([]textinput.Model, numFields)
	for i := range inputs {
		inputs[i] = textinput.New()
		inputs[i].CharLimit = 128
	}

	inputs[fieldHost].SetValue(defaults.Host)
	inputs[fieldHost].Focus()
	inputs[fieldPort].SetValue(strconv.Itoa(defaults.Port))
	inputs[fieldPort].CharLimit = 5
	inputs[fieldDB].SetValue(defaults.DatabasePath)
	inputs[fieldAdminEmail].Placeholder = "admin@recach.dev"
	inputs[fieldAdminPassword].EchoMode = textinput.EchoPassword
	inputs[fieldAdminPassword].EchoCharacter = '•'

	return setupModel{inputs: inputs}
}

func (m setupModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m setupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "tab", "down", "enter":
			if key.String() == "enter" && m.focused == numFields-1 {
				if err := m.validate(); err != "" {
					m.err = err
					return m, nil
				}
				m.done = true
				return m, tea.Quit
			}
			m.inputs[m.focused].Blur()
			m.focused = (m.focused + 1) % numFields
			m.inputs[m.focused].Focus()

		case "shift+tab", "up":
			m.inputs[m.focused].Blur()
			m.focused = (m.focused - 1 + numFields) % numFields
			m.inputs[m.focused].Focus()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m setupModel) validate() string {
	if _, err := strconv.Atoi(m.value(fieldPort)); err != nil {
		return "Port must be a number."
	}
	if m.value(fieldAdminEmail) != "" && m.value(fieldAdminPassword) == "" {
		return "The admin account needs a password."
	}
	return ""
}

func (m setupModel) value(field int) string {
	return strings.TrimSpace(m.inputs[field].Value())
}

// The form borrows the client's default palette
var (
	palette    = themes.GetDefaultTheme()
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Colors.Purple)).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Colors.Comment))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Semantic.Error))
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(palette.Colors.Background)).
			Background(lipgloss.Color(palette.Colors.Cyan)).
			Bold(true).
			Padding(0, 1)
)

func (m setupModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render("recach^ dev API"))
	fmt.Fprintf(&b, "%s\n\n", hintStyle.Render("tab / shift+tab move · enter on the last field saves · esc quits"))

	for i, label := range fieldLabels {
		fmt.Fprintf(&b, "%s\n  %s\n\n", labelStyle.Render(label), m.inputs[i].View())
	}

	if m.err != "" {
		fmt.Fprintf(&b, "%s\n", errStyle.Render("  "+m.err))
	}
	return b.String()
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// runFirstRunSetup asks for the dev API settings and writes them to
// configFilename. Demo data is enabled for a fresh setup.
func runFirstRunSetup() (*devapi.Config, error) {
	cfg := devapi.DefaultConfig()

	result, err := tea.NewProgram(newSetupModel(cfg)).Run()
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	final := result.(setupModel)
	if final.cancelled || !final.done {
		return nil, fmt.Errorf("setup cancelled")
	}

	cfg.Host = final.value(fieldHost)
	if p, err := strconv.Atoi(final.value(fieldPort)); err == nil && p > 0 {
		cfg.Port = p
	}
	if db := final.value(fieldDB); db != "" {
		cfg.DatabasePath = db
	}
	cfg.AdminEmail = final.value(fieldAdminEmail)
	cfg.AdminPassword = final.value(fieldAdminPassword)
	cfg.Seed = true

	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configFilename, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", configFilename, err)
	}
	fmt.Printf("\nConfig written to %s\n", configFilename)

	return cfg, nil
}
