package autostart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePlatform(t *testing.T, platform string) string {
	t.Helper()
	home := t.TempDir()
	oldHome, oldExe, oldOS := homeDir, executable, goos
	homeDir = func() (string, error) { return home, nil }
	executable = func() (string, error) { return "/opt/hk macro/hkmacro", nil }
	goos = platform
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Cleanup(func() { homeDir, executable, goos = oldHome, oldExe, oldOS })
	return home
}

func TestMacLaunchAgent(t *testing.T) {
	home := fakePlatform(t, "darwin")
	assert.False(t, IsEnabled())

	require.NoError(t, Enable("run"))
	assert.True(t, IsEnabled())

	data, err := os.ReadFile(filepath.Join(home, "Library", "LaunchAgents", appID+".plist"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<string>/opt/hk macro/hkmacro</string>")
	assert.Contains(t, string(data), "<string>run</string>")

	require.NoError(t, Disable())
	assert.False(t, IsEnabled())
	require.NoError(t, Disable(), "disabling twice is not an error")
}

func TestLinuxDesktopEntry(t *testing.T) {
	home := fakePlatform(t, "linux")

	require.NoError(t, Enable("run", "--config", "/tmp/c.yaml"))
	assert.True(t, IsEnabled())

	data, err := os.ReadFile(filepath.Join(home, ".config", "autostart", "hkmacro.desktop"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `Exec="/opt/hk macro/hkmacro" run --config /tmp/c.yaml`)

	require.NoError(t, Disable())
	assert.False(t, IsEnabled())
}

func TestUnsupportedPlatform(t *testing.T) {
	fakePlatform(t, "plan9")
	assert.ErrorIs(t, Enable(), ErrUnsupported)
	assert.ErrorIs(t, Disable(), ErrUnsupported)
	assert.False(t, IsEnabled())
}
