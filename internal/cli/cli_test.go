package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkmacro/internal/config"
	"hkmacro/internal/store"
)

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCmd("test")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	out, err := run(t, cfg, args...)
	require.NoError(t, err, out)
	return out
}

func savedMacros(t *testing.T, cfg string) store.Document {
	t.Helper()
	mgr, err := config.NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.Load())
	return mgr.Macros()
}

func TestCreateListShowDelete(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")

	out := mustRun(t, cfg, "create", "Save all",
		"--category", "Work",
		"--hotkey", "ctrl+alt+s",
		"--repeat", "2",
		"-a", "key_press:key=ctrl+s",
		"-a", "delay:duration=0.2,desc=settle")
	assert.Contains(t, out, "Created macro")

	doc := savedMacros(t, cfg)
	require.Len(t, doc, 1)
	var id string
	for k, rec := range doc {
		id = k
		assert.Equal(t, "Save all", rec.Name)
		assert.Equal(t, "CTRL+ALT+S", rec.Hotkey)
		assert.Equal(t, 2, rec.RepeatCount)
		require.Len(t, rec.Actions, 2)
		assert.Equal(t, "settle", rec.Actions[1].Description)
	}

	out = mustRun(t, cfg, "list")
	assert.Contains(t, out, "Save all")
	assert.Contains(t, out, "CTRL+ALT+S")

	out = mustRun(t, cfg, "show", "Save all")
	assert.Contains(t, out, "key_press:key=ctrl+s")
	assert.Contains(t, out, "# settle")

	mustRun(t, cfg, "delete", id)
	assert.Empty(t, savedMacros(t, cfg))

	_, err := run(t, cfg, "show", id)
	assert.Error(t, err)
}

func TestCreateRejectsBadAction(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	_, err := run(t, cfg, "create", "bad", "-a", "delay:duration=-1")
	assert.Error(t, err)

	out := mustRun(t, cfg, "list")
	assert.Contains(t, out, "No macros saved.")
}

func TestBindMovesHotkey(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	mustRun(t, cfg, "create", "first", "--hotkey", "F5", "-a", "key_press:key=a")
	mustRun(t, cfg, "create", "second", "-a", "key_press:key=b")

	out := mustRun(t, cfg, "bind", "second", "f5")
	assert.Contains(t, out, "F5 now runs second")

	hotkeys := map[string]string{}
	for _, rec := range savedMacros(t, cfg) {
		hotkeys[rec.Name] = rec.Hotkey
	}
	assert.Equal(t, map[string]string{"first": "", "second": "F5"}, hotkeys)

	mustRun(t, cfg, "bind", "second", "")
	for _, rec := range savedMacros(t, cfg) {
		assert.Empty(t, rec.Hotkey)
	}
}

func TestCloneExportImport(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	mustRun(t, cfg, "create", "orig", "--hotkey", "F6", "-a", "mouse_click:button=right,clicks=2")
	mustRun(t, cfg, "clone", "orig")

	doc := savedMacros(t, cfg)
	require.Len(t, doc, 2)
	names := []string{}
	for _, rec := range doc {
		names = append(names, rec.Name)
		if rec.Name == "orig (Copy)" {
			assert.Empty(t, rec.Hotkey)
		}
	}
	assert.ElementsMatch(t, []string{"orig", "orig (Copy)"}, names)

	exported := mustRun(t, cfg, "export", "orig")
	assert.Contains(t, exported, "action_type: mouse_click")
	assert.NotContains(t, exported, "orig (Copy)")

	file := filepath.Join(dir, "orig.yaml")
	require.NoError(t, os.WriteFile(file, []byte(exported), 0644))

	other := filepath.Join(dir, "other.yaml")
	out := mustRun(t, other, "import", file)
	assert.Contains(t, out, "Imported 1 macro(s)")

	imported := savedMacros(t, other)
	require.Len(t, imported, 1)
	for id, rec := range imported {
		assert.Equal(t, doc[id].Name, rec.Name)
		assert.Equal(t, "F6", rec.Hotkey)
		assert.Equal(t, doc[id].Actions[0].Parameters["clicks"], rec.Actions[0].Parameters["clicks"])
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte(strings.TrimSpace(`
good:
  name: ok
  actions:
    - action_type: delay
      parameters: {duration: 1}
bad:
  name: nope
  actions:
    - action_type: teleport
`)), 0644))

	cfg := filepath.Join(dir, "config.yaml")
	_, err := run(t, cfg, "import", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Empty(t, savedMacros(t, cfg))
}

func TestGlobalVariables(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	mustRun(t, cfg, "var", "set", "count", "3")
	mustRun(t, cfg, "var", "set", "name", "farm")

	out := mustRun(t, cfg, "var", "list")
	assert.Equal(t, "count = 3\nname = farm\n", out)
}

func TestHistoryEmpty(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	out := mustRun(t, cfg, "history")
	assert.Contains(t, out, "No runs recorded.")
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"n=2", "who = bob", "on=true"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 2, "who": "bob", "on": true}, vars)

	_, err = parseVars([]string{"novalue"})
	assert.Error(t, err)
}
