// Package autostart registers the daemon to start on login.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const appID = "com.hkmacro.daemon"

// ErrUnsupported is returned on platforms without a login item mechanism.
var ErrUnsupported = errors.New("autostart is not supported on this platform")

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
{{- range .Command}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=hkmacro
Comment=Hotkey macro daemon
Exec={{.Exec}}
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

// homeDir and executable are replaced in tests.
var (
	homeDir    = os.UserHomeDir
	executable = os.Executable
	goos       = runtime.GOOS
)

// Enable enables auto-start on login. args are passed to the executable,
// typically the daemon subcommand.
func Enable(args ...string) error {
	execPath, err := executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	command := append([]string{execPath}, args...)

	switch goos {
	case "darwin":
		return enableMac(command)
	case "linux":
		return enableLinux(command)
	case "windows":
		return enableWindows(command)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// Disable disables auto-start on login
func Disable() error {
	switch goos {
	case "darwin":
		return removeFile(macPlistPath)
	case "linux":
		return removeFile(linuxDesktopPath)
	case "windows":
		return disableWindows()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	switch goos {
	case "darwin":
		return fileExists(macPlistPath)
	case "linux":
		return fileExists(linuxDesktopPath)
	case "windows":
		return isEnabledWindows()
	default:
		return false
	}
}

func macPlistPath() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", appID+".plist"), nil
}

func linuxDesktopPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autostart", "hkmacro.desktop"), nil
}

func enableMac(command []string) error {
	path, err := macPlistPath()
	if err != nil {
		return err
	}
	return writeTemplate(path, macLaunchAgentPlist, struct {
		Label   string
		Command []string
	}{appID, command})
}

func enableLinux(command []string) error {
	path, err := linuxDesktopPath()
	if err != nil {
		return err
	}
	quoted := make([]string, len(command))
	for i, c := range command {
		quoted[i] = quoteExecArg(c)
	}
	return writeTemplate(path, xdgDesktopEntry, struct{ Exec string }{strings.Join(quoted, " ")})
}

// quoteExecArg quotes an argument for a desktop entry Exec key.
func quoteExecArg(s string) string {
	if !strings.ContainsAny(s, " \t\"'\\$`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}

func writeTemplate(path, text string, data any) error {
	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, data)
}

func removeFile(pathFn func() (string, error)) error {
	path, err := pathFn()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func fileExists(pathFn func() (string, error)) bool {
	path, err := pathFn()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
