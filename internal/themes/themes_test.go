package themes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundledThemesParse(t *testing.T) {
	names := listThemes("")
	assert.Equal(t, []string{"paper", "recach"}, names)

	for _, name := range names {
		theme, err := getTheme("", name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, theme.Meta.Name)
		assert.NotEmpty(t, theme.Semantic.Badge)
		assert.NotNil(t, theme.BuildStyles())
	}
}

func TestDefaultMatchesBundled(t *testing.T) {
	bundled, err := getTheme("", DefaultName)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultTheme(), bundled)
}

func TestUserThemeOverrides(t *testing.T) {
	dir := t.TempDir()
	doc := "[meta]\nname = \"Mine\"\n[semantic]\nbadge = \"#000000\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recach.toml"), []byte(doc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.toml"), []byte(doc), 0o600))

	theme, err := getTheme(dir, "recach")
	require.NoError(t, err)
	assert.Equal(t, "Mine", theme.Meta.Name)

	assert.Equal(t, []string{"extra", "paper", "recach"}, listThemes(dir))
}

func TestUnknownTheme(t *testing.T) {
	_, err := getTheme(t.TempDir(), "nope")
	assert.Error(t, err)

	theme, err := getTheme(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "Recach", theme.Meta.Name)
}
