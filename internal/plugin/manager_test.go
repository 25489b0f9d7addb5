package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pluginNames(ps []*Plugin) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Manifest.Name)
	}
	return out
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "announce", "true\n", "round.resolved")
	writePlugin(t, root, "logger", "true\n", "round.resolved", "round.no_move")
	writePlugin(t, root, "idle", "true\n")

	m := NewManager(root, nil)
	require.NoError(t, m.Discover())

	assert.Equal(t, []string{"announce", "idle", "logger"}, pluginNames(m.List()))
	assert.Equal(t, []string{"announce", "logger"}, pluginNames(m.ForEvent("round.resolved")))
	assert.Equal(t, []string{"logger"}, pluginNames(m.ForEvent("round.no_move")))
	assert.Empty(t, m.ForEvent("move"))

	p, err := m.Get("announce")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "announce"), p.Path)
	assert.Equal(t, filepath.Join(root, "announce", "run.sh"), p.Executable)
	assert.True(t, p.Handles("round.resolved"))
	assert.False(t, p.Handles("move"))
}

func TestManager_Discover_SkipsBrokenPlugins(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "good", "true\n", "round.resolved")

	// Invalid JSON.
	bad := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(bad, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, ManifestFile), []byte("{"), 0644))

	// No executable.
	noExec := filepath.Join(root, "noexec")
	require.NoError(t, os.MkdirAll(noExec, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(noExec, ManifestFile), []byte(`{"name":"noexec"}`), 0644))

	// No manifest, and a stray file.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0644))

	m := NewManager(root, nil)
	require.NoError(t, m.Discover())

	assert.Equal(t, []string{"good"}, pluginNames(m.List()))
}

func TestManager_Discover_Rescan(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "first", "true\n")

	m := NewManager(root, nil)
	require.NoError(t, m.Discover())
	require.Len(t, m.List(), 1)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "first")))
	require.NoError(t, m.Discover())
	assert.Empty(t, m.List())
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"), nil)
	require.NoError(t, m.Discover())
	assert.Empty(t, m.List())
}

func TestManager_Discover_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.Error(t, NewManager(file, nil).Discover())
}

func TestManager_Get_NotFound(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrPluginNotFound)
	assert.Equal(t, dir, m.PluginDir())
}
