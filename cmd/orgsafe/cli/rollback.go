package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"orgsafe/pkg/fileops"
)

func newRollbackCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rollback",
		Short:   "List or undo recorded runs",
		GroupID: "manage",
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rollback manifests, newest first",
		Args:    cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			manifests, err := a.rollback.ListManifests()
			if err != nil {
				return err
			}

			w := out(cmd)
			if len(manifests) == 0 {
				fmt.Fprintln(w, subtleStyle.Render("No rollback manifests in "+a.rollback.Dir()))
				return nil
			}
			for _, m := range manifests {
				fmt.Fprintf(w, "%s  %s  %s\n",
					titleStyle.Render(m.ID),
					subtleStyle.Render(fmt.Sprintf("%-14s", humanize.Time(m.Time()))),
					m.Description)
				fmt.Fprintf(w, "  %s\n", subtleStyle.Render(fmt.Sprintf("%d actions", len(m.Actions))))
			}
			return nil
		}),
	}

	undoCmd := &cobra.Command{
		Use:   "undo <manifest-id>",
		Short: "Undo every action of a manifest, last first",
		Long: `Undo replays a manifest in reverse: moved files go back, copies are
removed, deleted files and overwritten originals are restored from their
backups. A manifest can be undone once; if some actions fail it is kept so
the undo can be retried.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			m, err := a.rollback.Load(args[0])
			if err != nil {
				return err
			}

			w := out(cmd)
			printTitle(w, "Rollback %s", m.ID)
			printKV(w, "run", m.Description)
			printKV(w, "recorded", humanize.Time(m.Time()))

			result, err := a.rollback.Rollback(m.ID)
			if err != nil {
				return err
			}

			printKV(w, "undone", result.Success)
			printKV(w, "failed", result.Failed)
			for _, ae := range result.Errors {
				fmt.Fprintln(w, errorStyle.Render("  ✗ ")+ae.Error())
			}
			for _, warning := range result.Warnings {
				fmt.Fprintln(w, warnStyle.Render(wrap("Warning: "+warning)))
			}
			if result.Failed > 0 {
				fmt.Fprintln(w, hintStyle.Render("  the manifest was kept; fix the problems above and run undo again"))
				for _, ae := range result.Errors {
					if fileops.KindOf(ae.Err).Critical() {
						return ae.Err
					}
				}
				return fmt.Errorf("%d of %d actions could not be undone", result.Failed, result.Failed+result.Success)
			}
			return nil
		}),
	}

	cmd.AddCommand(listCmd, undoCmd)
	return cmd
}
