package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"orgsafe/internal/organizer"
)

func newDuplicatesCmd(opts *globalOptions) *cobra.Command {
	var (
		strategy string
		remove   bool
	)

	cmd := &cobra.Command{
		Use:     "duplicates <dir>",
		Aliases: []string{"dupes"},
		Short:   "Find files with identical content",
		Long: `Duplicates hashes every file under <dir> and groups identical ones. One
copy per group is recommended for keeping:

  best_location  prefer Documents, then Desktop, then media folders,
                 over Downloads and temp or cache folders (default)
  newest         keep the most recently modified copy
  oldest         keep the oldest copy

With --remove the other copies are moved to the backup directory and can
be restored with "orgsafe rollback undo".`,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ds, err := organizer.ParseDuplicateStrategy(strategy)
			if err != nil {
				return err
			}

			groups, err := a.organizer.FindDuplicates(cmd.Context(), args[0], ds, nil)
			if err != nil {
				return err
			}

			w := out(cmd)
			printDuplicateGroups(w, groups)
			if !remove || len(groups) == 0 {
				return nil
			}

			removal, err := a.organizer.RemoveDuplicates(cmd.Context(), groups)
			if removal != nil {
				fmt.Fprintln(w)
				printKV(w, "removed", fmt.Sprintf("%d (%s freed)", removal.Removed, humanize.IBytes(uint64(removal.Freed))))
				for _, s := range removal.Skipped {
					fmt.Fprintf(w, "  %s %s %s\n", subtleStyle.Render("-"), shortPath(s.Path), subtleStyle.Render("("+s.Reason+")"))
				}
				for _, fe := range removal.Errors {
					fmt.Fprintln(w, errorStyle.Render("  ✗ ")+fe.Error())
				}
				if removal.ManifestID != "" {
					fmt.Fprintln(w, successStyle.Render("Rollback manifest: ")+removal.ManifestID)
				}
			}
			if err != nil {
				return err
			}
			if len(removal.Errors) > 0 {
				return fmt.Errorf("%d duplicates could not be removed", len(removal.Errors))
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "best_location", "Which copy to keep: best_location, newest or oldest")
	cmd.Flags().BoolVar(&remove, "remove", false, "Move the other copies to the backup directory")
	return cmd
}

func printDuplicateGroups(w io.Writer, groups []organizer.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, successStyle.Render("No duplicates found"))
		return
	}

	var wasted int64
	for _, g := range groups {
		wasted += g.Wasted()
		printTitle(w, "%s × %d  %s", humanize.IBytes(uint64(g.Size)), len(g.Files), subtleStyle.Render(g.Hash[:12]))
		fmt.Fprintf(w, "  %s %s\n", successStyle.Render("keep"), shortPath(g.Keep.AbsPath))
		for _, f := range g.Remove {
			fmt.Fprintf(w, "  %s %s\n", subtleStyle.Render("dupe"), shortPath(f.AbsPath))
		}
	}
	fmt.Fprintln(w)
	printKV(w, "groups", len(groups))
	printKV(w, "reclaimable", humanize.IBytes(uint64(wasted)))
}
