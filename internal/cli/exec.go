package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hkmacro/internal/engine"
	"hkmacro/internal/executor"
	"hkmacro/internal/history"
	"hkmacro/internal/hotkey"
	"hkmacro/internal/input"
)

func execCmd() *cobra.Command {
	var (
		vars  []string
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "exec [macro]",
		Short: "Run a macro now and wait for it to finish",
		Long: `Run a macro in the foreground. Ctrl+C stops it. Variables given with
--var override the global variables for this run only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}

			injector, err := input.NewInjector()
			if err != nil {
				return fmt.Errorf("input injection unavailable: %w", err)
			}
			s, err := openSession(engine.Options{Injector: injector})
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveMacro(s.engine.Store(), args[0])
			if err != nil {
				return err
			}

			events, cancel := s.engine.Subscribe(256)
			defer cancel()

			run, err := s.engine.Execute(id, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				_ = s.engine.Stop()
			}()

			out := cmd.OutOrStdout()
			for ev := range events {
				if ev.RunID != run.ID {
					continue
				}
				if !quiet {
					printEvent(out, ev)
				}
				if ev.Type == executor.EventFinished {
					break
				}
			}
			<-run.Done()
			recordHistory(s, run.Info())

			if err := run.Err(); err != nil && !errors.Is(err, executor.ErrCancelled) {
				return err
			}
			fmt.Fprintf(out, "%s %s %s\n", okMark, run.Macro.Name, statusColor(run.Status().String()))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "variable override as name=value (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the result")
	return cmd
}

func parseVars(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", p)
		}
		out[strings.TrimSpace(name)] = scalar(val)
	}
	return out, nil
}

func printEvent(out io.Writer, ev executor.Event) {
	switch ev.Type {
	case executor.EventActionExecuted:
		fmt.Fprintf(out, "  %s %s\n", color.New(color.Faint).Sprintf("[%d]", ev.Current), ev.Description)
	case executor.EventError:
		fmt.Fprintf(out, "  %s %s\n", failMark, ev.Error)
	case executor.EventStatus:
		fmt.Fprintf(out, "  -> %s\n", statusColor(ev.Status.String()))
	}
}

// recordHistory appends a finished run to the history database, if one is
// configured. Failures are reported, not returned.
func recordHistory(s *session, info executor.Info) {
	repo, err := history.Open(s.cfg.HistoryPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return
	}
	defer repo.Close()
	if err := repo.Record(context.Background(), history.FromInfo(info)); err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
	}
}

func recordCmd() *cobra.Command {
	var (
		duration time.Duration
		name     string
		hk       string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record keyboard and mouse buttons into a new macro",
		Long: `Record key and mouse button activity until Ctrl+C, or until --duration
elapses, and save it as a new macro.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := hotkey.NewManager()
			if err := mgr.Start(); err != nil {
				return fmt.Errorf("global input hook unavailable: %w", err)
			}
			defer mgr.Stop()

			s, err := openSession(engine.Options{Observer: mgr})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.StartRecording(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgRed).Sprint("● Recording")+", press Ctrl+C to finish")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			<-ctx.Done()

			if name == "" {
				name = "Recording " + time.Now().Format("2006-01-02 15:04")
			}
			id, err := s.engine.StopRecording(name)
			if err != nil {
				return err
			}
			if hk != "" {
				if err := s.engine.BindHotkey(id, hk); err != nil {
					return err
				}
			}
			if err := s.save(); err != nil {
				return err
			}
			m, _ := s.engine.Store().Get(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s with %d action(s)\n", okMark, m.Name, len(m.Actions))
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long")
	cmd.Flags().StringVar(&name, "name", "", "macro name")
	cmd.Flags().StringVar(&hk, "hotkey", "", "hotkey to bind to the recording")
	return cmd
}
