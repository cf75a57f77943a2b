package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hkmacro/internal/engine"
	"hkmacro/internal/history"
)

func historyCmd() *cobra.Command {
	var (
		limit int
		ref   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent macro runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgMgr, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := history.Open(cfgMgr.HistoryPath())
			if err != nil {
				return err
			}
			defer repo.Close()

			var entries []history.Entry
			if ref != "" {
				s, err := newSession(cfgMgr, engine.Options{})
				if err != nil {
					return err
				}
				id, err := resolveMacro(s.engine.Store(), ref)
				s.Close()
				if err != nil {
					return err
				}
				entries, err = repo.ForMacro(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
			} else if entries, err = repo.Recent(cmd.Context(), limit); err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tMACRO\tSTATUS\tACTIONS\tDURATION\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					e.FinishedAt.Local().Format(time.DateTime),
					e.MacroName,
					statusColor(e.Status),
					e.ActionsExecuted,
					e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond),
					e.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&ref, "macro", "", "only runs of this macro")
	return cmd
}
