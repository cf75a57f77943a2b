package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"hkmacro/internal/autostart"
	"hkmacro/internal/config"
)

func autostartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage starting the daemon on login",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Start the daemon on login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setStartOnBoot(true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Autostart enabled\n", okMark)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Do not start the daemon on login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setStartOnBoot(false); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Autostart disabled\n", okMark)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon starts on login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if autostart.IsEnabled() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s enabled\n", okMark)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s disabled\n", failMark)
			}
			return nil
		},
	})
	return cmd
}

// setStartOnBoot updates the login item and records the choice in the config
// so the daemon keeps it in sync.
func setStartOnBoot(on bool) error {
	cfgMgr, err := loadConfig()
	if err != nil {
		return err
	}
	if on {
		err = autostart.Enable(autostartArgs()...)
	} else {
		err = autostart.Disable()
	}
	if err != nil {
		return err
	}
	return cfgMgr.Update(func(c *config.Config) {
		c.General.StartOnBoot = on
	})
}

func autostartArgs() []string {
	args := []string{"run"}
	if configPath != "" {
		path := configPath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		args = append(args, "--config", path)
	}
	return args
}
