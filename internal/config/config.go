// Package config provides configuration management for the macro engine.
// The file is a YAML document shared with other tools; keys this package
// does not know about are kept as they are.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"hkmacro/internal/store"
)

const (
	appName = "hkmacro"

	// MacroSection is the key the macro settings live under.
	MacroSection   = "multi_hotkey_macros"
	GeneralSection = "general"
)

// Config represents the application configuration
type Config struct {
	// General contains general application settings
	General GeneralConfig `yaml:"general"`

	// Macros contains the engine settings and the saved macros
	Macros MacroSettings `yaml:"multi_hotkey_macros"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// APIEnabled enables the HTTP control API
	APIEnabled bool `yaml:"api_enabled"`

	// APIPort is the port for the API server (default: 18080)
	APIPort int `yaml:"api_port"`

	// APIToken is an optional authentication token for API requests
	APIToken string `yaml:"api_token"`

	// StartOnBoot determines if app starts on login
	StartOnBoot bool `yaml:"start_on_boot"`

	// HistoryPath is the execution history database; empty means next to the config file
	HistoryPath string `yaml:"history_path"`
}

// MacroSettings are the engine settings.
type MacroSettings struct {
	Enabled             bool `yaml:"enabled"`
	GlobalHotkeyEnabled bool `yaml:"global_hotkey_enabled"`
	AutoSave            bool `yaml:"auto_save"`

	// ExecutionDelay is slept after every action, in seconds
	ExecutionDelay float64 `yaml:"execution_delay"`
	DebugMode      bool    `yaml:"debug_mode"`

	// StopHotkey stops the running macro (e.g. "Ctrl+Alt+Shift+Esc")
	StopHotkey string `yaml:"stop_hotkey"`

	// HotkeyDebounce ignores repeated triggers of one hotkey, in seconds
	HotkeyDebounce float64 `yaml:"hotkey_debounce"`

	GlobalVariables map[string]any `yaml:"global_variables"`
	SavedMacros     store.Document `yaml:"saved_macros"`
}

// ExecutionDelayDuration returns ExecutionDelay as a duration.
func (s MacroSettings) ExecutionDelayDuration() time.Duration {
	return time.Duration(s.ExecutionDelay * float64(time.Second))
}

// DebounceDuration returns HotkeyDebounce as a duration.
func (s MacroSettings) DebounceDuration() time.Duration {
	return time.Duration(s.HotkeyDebounce * float64(time.Second))
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			APIEnabled: false,
			APIPort:    18080,
		},
		Macros: MacroSettings{
			Enabled:             true,
			GlobalHotkeyEnabled: true,
			AutoSave:            true,
			ExecutionDelay:      0.01,
			StopHotkey:          "Ctrl+Alt+Shift+Esc",
			HotkeyDebounce:      0.5,
			GlobalVariables:     map[string]any{},
			SavedMacros:         store.Document{},
		},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	doc        *yaml.Node
	onChanged  func()
}

// NewManager creates a configuration manager for path, or for the per-user
// default location when path is empty.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		if path, err = getConfigPath(); err != nil {
			return nil, err
		}
	}
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, appName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, appName)
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", appName)
	}

	return filepath.Join(configDir, "config.yaml"), nil
}

// Path returns the configuration file location.
func (m *Manager) Path() string {
	return m.configPath
}

// HistoryPath returns the execution history database location.
func (m *Manager) HistoryPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.General.HistoryPath != "" {
		return m.config.General.HistoryPath
	}
	return filepath.Join(filepath.Dir(m.configPath), "history.db")
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parsing %s: %w", m.configPath, err)
	}

	cfg := DefaultConfig()
	if doc.Kind == yaml.DocumentNode {
		if err := doc.Decode(cfg); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("decoding %s: %w", m.configPath, err)
		}
		m.doc = &doc
	}
	if cfg.Macros.GlobalVariables == nil {
		cfg.Macros.GlobalVariables = map[string]any{}
	}
	if cfg.Macros.SavedMacros == nil {
		cfg.Macros.SavedMacros = store.Document{}
	}
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	log.Printf("Config: Loaded %s (%d saved macros)", m.configPath, len(cfg.Macros.SavedMacros))
	if onChanged != nil {
		onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ours yaml.Node
	if err := ours.Encode(m.config); err != nil {
		return err
	}

	if m.doc != nil && len(m.doc.Content) == 1 && m.doc.Content[0].Kind == yaml.MappingNode {
		mergeSections(m.doc.Content[0], &ours)
	} else {
		m.doc = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{&ours}}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, buf.Len())
	tmp := m.configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, m.configPath)
}

// mergeSections copies every section key of src into dst. Keys in dst that
// src does not have are left alone.
func mergeSections(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		existing := lookup(dst, key.Value)
		switch {
		case existing == nil:
			dst.Content = append(dst.Content, key, val)
		case existing.Kind == yaml.MappingNode && val.Kind == yaml.MappingNode:
			for j := 0; j+1 < len(val.Content); j += 2 {
				setKey(existing, val.Content[j], val.Content[j+1])
			}
		default:
			setKey(dst, key, val)
		}
	}
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func setKey(mapping, key, val *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key.Value {
			mapping.Content[i+1] = val
			return
		}
	}
	mapping.Content = append(mapping.Content, key, val)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set updates the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	onChanged := m.onChanged
	m.mu.Unlock()
	if onChanged != nil {
		onChanged()
	}
}

// Update applies fn to the configuration and saves it.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	fn(m.config)
	onChanged := m.onChanged
	m.mu.Unlock()
	if onChanged != nil {
		onChanged()
	}
	return m.Save()
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Macros returns the saved macro collection.
func (m *Manager) Macros() store.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Macros.SavedMacros
}

// Persist stores the macro collection and global variables and writes the
// file. It does not fire the change callback.
func (m *Manager) Persist(macros store.Document, globals map[string]any) error {
	m.mu.Lock()
	m.config.Macros.SavedMacros = macros
	m.config.Macros.GlobalVariables = globals
	m.mu.Unlock()
	return m.Save()
}
