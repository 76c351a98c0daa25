package themes

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pelletier/go-toml/v2"
)

// Theme is a color theme for the terminal client
type Theme struct {
	Meta     ThemeMeta      `toml:"meta"`
	Colors   ThemeColors    `toml:"colors"`
	Semantic SemanticColors `toml:"semantic"`
}

// ThemeMeta contains metadata about the theme
type ThemeMeta struct {
	Name    string `toml:"name"`
	Author  string `toml:"author"`
	Variant string `toml:"variant"` // "dark" or "light"
}

// ThemeColors contains the base color palette
type ThemeColors struct {
	Background string `toml:"background"`
	Selection  string `toml:"selection"`
	Foreground string `toml:"foreground"`
	Comment    string `toml:"comment"`
	Red        string `toml:"red"`
	Orange     string `toml:"orange"`
	Yellow     string `toml:"yellow"`
	Green      string `toml:"green"`
	Cyan       string `toml:"cyan"`
	Purple     string `toml:"purple"`
}

// SemanticColors maps colors to specific UI purposes
type SemanticColors struct {
	NavBg       string `toml:"nav_bg"`
	NavFg       string `toml:"nav_fg"`
	NavSelected string `toml:"nav_selected"`
	Badge       string `toml:"badge"`

	PostAuthor string `toml:"post_author"`
	PostType   string `toml:"post_type"`
	PostMeta   string `toml:"post_meta"`
	Caret      string `toml:"caret"`

	InputBorder      string `toml:"input_border"`
	InputBorderFocus string `toml:"input_border_focus"`

	ToastAchievement string `toml:"toast_achievement"`
	ToastRecommend   string `toml:"toast_recommend"`

	Error   string `toml:"error"`
	Success string `toml:"success"`
	Info    string `toml:"info"`
	Border  string `toml:"border"`
}

// Styles contains pre-computed lipgloss styles for the theme
type Styles struct {
	// Navigation
	Nav         lipgloss.Style
	NavItem     lipgloss.Style
	NavSelected lipgloss.Style
	Badge       lipgloss.Style

	// Content
	Title      lipgloss.Style
	PostAuthor lipgloss.Style
	PostType   lipgloss.Style
	Meta       lipgloss.Style
	Caret      lipgloss.Style
	Body       lipgloss.Style

	InputField   lipgloss.Style
	InputFocused lipgloss.Style

	// Toast accents
	Toast            lipgloss.Style
	ToastAchievement lipgloss.Style
	ToastRecommend   lipgloss.Style
	ToastError       lipgloss.Style

	Error   lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style
	Border  lipgloss.Style
}

// Parse decodes a TOML theme document
func Parse(data []byte) (*Theme, error) {
	var theme Theme
	if err := toml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme: %w", err)
	}
	return &theme, nil
}

// LoadTheme loads a theme from a TOML file
func LoadTheme(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}
	return Parse(data)
}

// BuildStyles creates lipgloss styles from a theme
func (t *Theme) BuildStyles() *Styles {
	s := &Styles{}
	color := func(c string) lipgloss.Color { return lipgloss.Color(c) }

	s.Nav = lipgloss.NewStyle().
		Background(color(t.Semantic.NavBg)).
		Foreground(color(t.Semantic.NavFg)).
		Padding(1)

	s.NavItem = lipgloss.NewStyle().
		Foreground(color(t.Semantic.NavFg)).
		PaddingLeft(2)

	s.NavSelected = lipgloss.NewStyle().
		Background(color(t.Semantic.NavSelected)).
		Foreground(color(t.Semantic.NavFg)).
		PaddingLeft(2).
		Bold(true)

	s.Badge = lipgloss.NewStyle().
		Foreground(color(t.Semantic.Badge)).
		Bold(true)

	s.Title = lipgloss.NewStyle().
		Foreground(color(t.Colors.Purple)).
		Bold(true).
		MarginBottom(1)

	s.PostAuthor = lipgloss.NewStyle().
		Foreground(color(t.Semantic.PostAuthor)).
		Bold(true)

	s.PostType = lipgloss.NewStyle().
		Foreground(color(t.Semantic.PostType)).
		Italic(true)

	s.Meta = lipgloss.NewStyle().
		Foreground(color(t.Semantic.PostMeta)).
		Faint(true)

	s.Caret = lipgloss.NewStyle().
		Foreground(color(t.Semantic.Caret))

	s.Body = lipgloss.NewStyle().
		Foreground(color(t.Colors.Foreground))

	s.InputField = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color(t.Semantic.InputBorder)).
		Padding(0, 1)

	s.InputFocused = s.InputField.
		BorderForeground(color(t.Semantic.InputBorderFocus))

	s.Toast = lipgloss.NewStyle().
		Foreground(color(t.Colors.Foreground)).
		Background(color(t.Colors.Selection)).
		Padding(0, 1)
	s.ToastAchievement = s.Toast.Foreground(color(t.Semantic.ToastAchievement))
	s.ToastRecommend = s.Toast.Foreground(color(t.Semantic.ToastRecommend))
	s.ToastError = s.Toast.Foreground(color(t.Semantic.Error))

	s.Error = lipgloss.NewStyle().Foreground(color(t.Semantic.Error))
	s.Success = lipgloss.NewStyle().Foreground(color(t.Semantic.Success))
	s.Info = lipgloss.NewStyle().Foreground(color(t.Semantic.Info))

	s.Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color(t.Semantic.Border))

	return s
}

// GetDefaultTheme returns the built-in recach palette
func GetDefaultTheme() *Theme {
	return &Theme{
		Meta: ThemeMeta{
			Name:    "Recach",
			Author:  "recach",
			Variant: "dark",
		},
		Colors: ThemeColors{
			Background: "#16161E",
			Selection:  "#2A2B3D",
			Foreground: "#E6E6F0",
			Comment:    "#6B6F8A",
			Red:        "#F7768E",
			Orange:     "#FF9E64",
			Yellow:     "#E0AF68",
			Green:      "#9ECE6A",
			Cyan:       "#7DCFFF",
			Purple:     "#BB9AF7",
		},
		Semantic: SemanticColors{
			NavBg:            "#16161E",
			NavFg:            "#E6E6F0",
			NavSelected:      "#2A2B3D",
			Badge:            "#FF9E64",
			PostAuthor:       "#BB9AF7",
			PostType:         "#7DCFFF",
			PostMeta:         "#6B6F8A",
			Caret:            "#E0AF68",
			InputBorder:      "#6B6F8A",
			InputBorderFocus: "#BB9AF7",
			ToastAchievement: "#9ECE6A",
			ToastRecommend:   "#7DCFFF",
			Error:            "#F7768E",
			Success:          "#9ECE6A",
			Info:             "#7DCFFF",
			Border:           "#6B6F8A",
		},
	}
}
