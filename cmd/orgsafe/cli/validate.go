package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"orgsafe/internal/pathguard"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var allowSymlinks, mustExist bool

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Check whether a path may be used",
		Long: `Validate resolves a path and checks it against the allowed directories
and the block-list. Symbolic links are judged by their real target.

Examples:
  orgsafe validate ~/Downloads/report.pdf
  orgsafe validate --symlinks ~/Documents/latest`,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			vp, err := a.validator.Validate(args[0], pathguard.Options{
				AllowSymlinks: allowSymlinks,
				RequireExists: mustExist,
			})
			if err != nil {
				return err
			}

			w := out(cmd)
			fmt.Fprintln(w, successStyle.Render("✓ allowed"))
			printKV(w, "path", vp.Path)
			if vp.Real != vp.Path {
				printKV(w, "resolves to", vp.Real)
			}
			printKV(w, "exists", vp.Exists)
			if vp.Exists {
				printKV(w, "directory", vp.IsDir)
				printKV(w, "symlink", vp.IsSymlink)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&allowSymlinks, "symlinks", false, "Admit a symbolic link whose target is allowed")
	cmd.Flags().BoolVar(&mustExist, "exists", false, "Fail if the path does not exist")
	return cmd
}
