// Package cli implements the hkmacro command line.
package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hkmacro/internal/config"
	"hkmacro/internal/engine"
	"hkmacro/internal/executor"
	"hkmacro/internal/store"
)

var configPath string

var timeNow = func() time.Time { return time.Now().UTC().Round(0) }

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

// RootCmd builds the command tree.
func RootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "hkmacro",
		Short:   "Hotkey triggered keyboard and mouse macros",
		Version: version,
		Long: `hkmacro records and plays back keyboard and mouse macros.
Run the daemon with "hkmacro run" to bind every macro hotkey; the other
commands edit the saved macros directly.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: per-user config directory)")

	root.AddCommand(runCmd())
	root.AddCommand(listCmd())
	root.AddCommand(showCmd())
	root.AddCommand(createCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(cloneCmd())
	root.AddCommand(bindCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(importCmd())
	root.AddCommand(varCmd())
	root.AddCommand(execCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(autostartCmd())
	return root
}

// session is a loaded config plus an engine over its macros.
type session struct {
	cfg    *config.Manager
	engine *engine.Engine
}

func (s *session) Close() { s.engine.Close() }

// loadConfig reads the config file named by --config.
func loadConfig() (*config.Manager, error) {
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	if err := cfgMgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfgMgr, nil
}

// openSession loads the config file and an engine persisting back to it.
func openSession(opts engine.Options) (*session, error) {
	cfgMgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newSession(cfgMgr, opts)
}

// newSession builds an engine over the macros in cfgMgr. opts supplies the
// platform capabilities; persistence settings come from the file.
func newSession(cfgMgr *config.Manager, opts engine.Options) (*session, error) {
	settings := cfgMgr.Get().Macros

	opts.Persister = cfgMgr
	opts.AutoSave = settings.AutoSave
	opts.Globals = settings.GlobalVariables
	opts.ExecutionDelay = settings.ExecutionDelayDuration()
	opts.Debug = settings.DebugMode
	if opts.Debounce == 0 {
		opts.Debounce = settings.DebounceDuration()
	}

	eng, err := engine.New(opts)
	if err != nil {
		return nil, err
	}
	if err := eng.Load(settings.SavedMacros); err != nil {
		eng.Close()
		return nil, fmt.Errorf("failed to load macros from %s: %w", cfgMgr.Path(), err)
	}
	return &session{cfg: cfgMgr, engine: eng}, nil
}

// save writes the macros when auto-save is off; auto-save already wrote
// them otherwise.
func (s *session) save() error {
	if s.cfg.Get().Macros.AutoSave {
		return nil
	}
	return s.engine.Save()
}

// resolveMacro accepts an id, a unique id prefix or an exact name.
func resolveMacro(st *store.Store, ref string) (string, error) {
	if _, ok := st.Get(ref); ok {
		return ref, nil
	}
	var matches []string
	for _, m := range st.List() {
		if m.Name == ref || (len(ref) >= 4 && len(m.ID) > len(ref) && m.ID[:len(ref)] == ref) {
			matches = append(matches, m.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", engine.ErrMacroNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d macros, use the id", ref, len(matches))
	}
}

func statusColor(status string) string {
	switch status {
	case executor.Completed.String():
		return color.New(color.FgGreen).Sprint(status)
	case executor.Failed.String():
		return color.New(color.FgRed).Sprint(status)
	case executor.Cancelled.String(), executor.Paused.String():
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgCyan).Sprint(status)
	}
}
