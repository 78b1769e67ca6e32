package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orgsafe/internal/config"
	"orgsafe/pkg/fileops"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage orgsafe configuration",
		Long: `View and create the orgsafe configuration.

Without arguments, displays the effective configuration: the config file
layered over the defaults, with ORGSAFE_* environment variables on top
(for example ORGSAFE_CONFLICT_STRATEGY=skip).`,
		GroupID: "manage",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			data, err := a.cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = out(cmd).Write(data)
			return err
		}),
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(out(cmd), opts.configPath)
			return nil
		},
	}

	var allowed []string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Create a configuration file with the defaults. The file is written to
the XDG config path (~/.config/orgsafe/config.yaml unless $XDG_CONFIG_HOME
is set) or to --config.

Examples:
  orgsafe config init
  orgsafe config init --allow ~/Downloads --allow ~/Documents`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if _, err := os.Lstat(path); err == nil {
				return fmt.Errorf("config file already exists: %s", path)
			}

			cfg := config.DefaultConfig()
			if len(allowed) > 0 {
				cfg.AllowedDirs = nil
				for _, dir := range allowed {
					cfg.AllowedDirs = append(cfg.AllowedDirs, fileops.ExpandPath(dir))
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}

			fmt.Fprintln(out(cmd), successStyle.Render("Created config file: ")+path)
			return nil
		},
	}
	initCmd.Flags().StringSliceVar(&allowed, "allow", nil, "Allowed directory (repeatable; default: your home directory)")

	cmd.AddCommand(pathCmd, initCmd)
	return cmd
}
