package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hkmacro/internal/engine"
	"hkmacro/internal/macro"
	"hkmacro/internal/store"
)

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved macros",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			list := s.engine.Store().List()
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No macros saved.")
				return nil
			}
			return writeSummaries(cmd.OutOrStdout(), list)
		},
	}
}

func writeSummaries(out io.Writer, list []macro.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tHOTKEY\tACTIONS\tREPEAT\tENABLED")
	for _, m := range list {
		enabled := okMark
		if !m.Enabled {
			enabled = failMark
		}
		hk := m.Hotkey
		if hk == "" {
			hk = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", m.ID[:min(8, len(m.ID))], m.Name, m.Category, hk, m.ActionCount, m.RepeatCount, enabled)
	}
	return w.Flush()
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [macro]",
		Short: "Show a macro and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveMacro(s.engine.Store(), args[0])
			if err != nil {
				return err
			}
			m, _ := s.engine.Store().Get(id)
			writeMacro(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func writeMacro(out io.Writer, m macro.Macro) {
	bold := color.New(color.Bold)
	fmt.Fprintf(out, "%s (%s)\n", bold.Sprint(m.Name), m.ID)
	fmt.Fprintf(out, "  Category: %s\n", m.Category)
	if m.Hotkey != "" {
		fmt.Fprintf(out, "  Hotkey:   %s\n", m.Hotkey)
	}
	fmt.Fprintf(out, "  Enabled:  %v\n", m.Enabled)
	fmt.Fprintf(out, "  Repeat:   %d (delay %gs)\n", m.RepeatCount, m.RepeatDelay)
	if m.Description != "" {
		fmt.Fprintf(out, "  %s\n", m.Description)
	}
	fmt.Fprintln(out, "  Actions:")
	for i, a := range m.Actions {
		line := formatAction(a)
		if !a.Enabled {
			line = color.New(color.Faint).Sprint(line + " (disabled)")
		}
		if a.Description != "" {
			line += "  # " + a.Description
		}
		fmt.Fprintf(out, "  %3d. %s\n", i+1, line)
	}
}

func createCmd() *cobra.Command {
	var (
		category    string
		hotkey      string
		description string
		repeat      int
		repeatDelay float64
		actions     []string
	)
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a macro",
		Long: `Create a macro from --action flags, each written as kind:param=value,...

  hkmacro create "Save all" --hotkey ctrl+alt+s \
      --action key_press:key=ctrl+s --action delay:duration=0.2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := macro.New(args[0], category, timeNow())
			m.Description = description
			m.RepeatCount = repeat
			m.RepeatDelay = repeatDelay
			for _, spec := range actions {
				a, err := parseActionSpec(spec)
				if err != nil {
					return err
				}
				m.Actions = append(m.Actions, a)
			}

			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.engine.AddMacro(*m)
			if err != nil {
				return err
			}
			if hotkey != "" {
				if err := s.engine.BindHotkey(id, hotkey); err != nil {
					return err
				}
			}
			if err := s.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created macro %s: %s\n", okMark, id, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category (default \"General\")")
	cmd.Flags().StringVar(&hotkey, "hotkey", "", "hotkey such as ctrl+alt+m")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "number of passes")
	cmd.Flags().Float64Var(&repeatDelay, "repeat-delay", 0, "seconds between passes")
	cmd.Flags().StringArrayVarP(&actions, "action", "a", nil, "action as kind:param=value,... (repeatable)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [macro]",
		Short: "Delete a macro",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveMacro(s.engine.Store(), args[0])
			if err != nil {
				return err
			}
			if err := s.engine.DeleteMacro(id); err != nil {
				return err
			}
			if err := s.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted macro %s\n", okMark, id)
			return nil
		},
	}
}

func cloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone [macro]",
		Short: "Copy a macro; the copy has no hotkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveMacro(s.engine.Store(), args[0])
			if err != nil {
				return err
			}
			newID, err := s.engine.CloneMacro(id)
			if err != nil {
				return err
			}
			if err := s.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Cloned %s to %s\n", okMark, id, newID)
			return nil
		},
	}
}

func bindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind [macro] [hotkey]",
		Short: "Assign a hotkey; an empty hotkey removes it",
		Long: `Assign a hotkey to a macro. A macro already holding the hotkey loses it.
Pass "" as the hotkey to unbind.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveMacro(s.engine.Store(), args[0])
			if err != nil {
				return err
			}
			if err := s.engine.BindHotkey(id, args[1]); err != nil {
				return err
			}
			if err := s.save(); err != nil {
				return err
			}
			m, _ := s.engine.Store().Get(id)
			if m.Hotkey == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Removed hotkey from %s\n", okMark, m.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s now runs %s\n", okMark, m.Hotkey, m.Name)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [macro...]",
		Short: "Write macros as YAML to stdout",
		Long:  "Write the named macros, or every macro, in the saved_macros format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			doc := s.engine.Store().SerializeAll()
			if len(args) > 0 {
				picked := store.Document{}
				for _, ref := range args {
					id, err := resolveMacro(s.engine.Store(), ref)
					if err != nil {
						return err
					}
					picked[id] = doc[id]
				}
				doc = picked
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Add macros from a YAML file written by export",
		Long: `Add macros from a YAML file written by export. Macros with an id that
already exists are replaced. Nothing is imported if any macro is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc store.Document
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			parsed := make([]*macro.Macro, 0, len(doc))
			for _, id := range sortedKeys(doc) {
				m, err := store.FromRecord(id, doc[id])
				if err != nil {
					return fmt.Errorf("macro %s: %w", id, err)
				}
				parsed = append(parsed, m)
			}

			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			for _, m := range parsed {
				hk := m.Hotkey
				m.Hotkey = ""
				if _, err := s.engine.AddMacro(*m); err != nil {
					return fmt.Errorf("macro %s: %w", m.ID, err)
				}
				if hk != "" {
					if err := s.engine.BindHotkey(m.ID, hk); err != nil {
						return fmt.Errorf("macro %s: %w", m.ID, err)
					}
				}
			}
			if err := s.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d macro(s)\n", okMark, len(parsed))
			return nil
		},
	}
}

func varCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "var",
		Short: "Manage global variables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List global variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			globals := s.engine.Globals()
			for _, name := range sortedKeys(globals) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", name, globals[name])
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [name] [value]",
		Short: "Set a global variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(engine.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.SetGlobal(args[0], scalar(args[1])); err != nil {
				return err
			}
			if err := s.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", okMark, args[0], scalar(args[1]))
			return nil
		},
	})
	return cmd
}
