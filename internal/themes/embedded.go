package themes

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultName is the theme used when none is configured
const DefaultName = "recach"

//go:embed themes/*.toml
var embeddedThemes embed.FS

// UserDir is where user themes override bundled ones
func UserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".recach", "themes")
}

// GetTheme loads a theme by name. Lookup order:
//  1. ~/.recach/themes/<name>.toml
//  2. bundled themes/<name>.toml
//  3. GetDefaultTheme() for the default name
func GetTheme(name string) (*Theme, error) {
	return getTheme(UserDir(), name)
}

func getTheme(userDir, name string) (*Theme, error) {
	if name == "" {
		name = DefaultName
	}

	if userDir != "" {
		if data, err := os.ReadFile(filepath.Join(userDir, name+".toml")); err == nil {
			if t, err := Parse(data); err == nil {
				return t, nil
			}
		}
	}

	if data, err := embeddedThemes.ReadFile("themes/" + name + ".toml"); err == nil {
		t, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("embedded theme %q: %w", name, err)
		}
		return t, nil
	}

	if name != DefaultName {
		return nil, fmt.Errorf("theme %q not found", name)
	}
	return GetDefaultTheme(), nil
}

// ListAvailableThemes returns bundled theme names plus any user themes
func ListAvailableThemes() []string {
	return listThemes(UserDir())
}

func listThemes(userDir string) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(entries []fs.DirEntry) {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".toml")
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	entries, _ := fs.ReadDir(embeddedThemes, "themes")
	add(entries)
	if userDir != "" {
		userEntries, _ := os.ReadDir(userDir)
		add(userEntries)
	}

	sort.Strings(names)
	return names
}
