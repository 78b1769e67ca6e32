package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"orgsafe/internal/organizer"
	"orgsafe/pkg/fileops"
)

func newOrganizeCmd(opts *globalOptions) *cobra.Command {
	var (
		dryRun   bool
		strategy string
		copyMode bool
		target   string
		sniff    bool
		byDate   bool
		hidden   bool
		depth    int
	)

	cmd := &cobra.Command{
		Use:   "organize <dir>",
		Short: "Sort files into category folders",
		Long: `Organize moves every file under <dir> into a category folder such as
Documents, Images or Archives. Name clashes are resolved by the conflict
strategy:

  rename              add _1, _2, ... until the name is free (default)
  skip                leave the file where it is
  overwrite           replace the existing file, keeping it as a backup
  overwrite_if_newer  replace only when the incoming file is newer

Each run writes a rollback manifest; undo it with "orgsafe rollback undo".

Examples:
  orgsafe organize --dry-run ~/Downloads
  orgsafe organize --target ~/Sorted --by-date ~/Downloads
  orgsafe organize --strategy overwrite_if_newer --copy ~/Camera`,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if strategy == "" {
				strategy = a.cfg.ConflictStrategy
			}
			cs, err := organizer.ParseConflictStrategy(strategy)
			if err != nil {
				return err
			}

			scan := fileops.DefaultScanOptions()
			scan.IncludeHidden = hidden
			if depth > 0 {
				scan.MaxDepth = depth
			}

			result, err := a.organizer.Organize(cmd.Context(), args[0], organizer.Options{
				Target:   target,
				Strategy: cs,
				Copy:     copyMode,
				DryRun:   dryRun,
				Sniff:    sniff,
				ByDate:   byDate,
				Scan:     scan,
			})
			if result != nil {
				printOrganizeResult(out(cmd), result)
			}
			if err != nil {
				return err
			}
			return organizeOutcome(result)
		}),
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show the plan without moving anything")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Conflict strategy (default: configured conflict_strategy)")
	cmd.Flags().BoolVar(&copyMode, "copy", false, "Copy files instead of moving them")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Directory to create category folders in (default: <dir>)")
	cmd.Flags().BoolVar(&sniff, "sniff", false, "Detect the type of files with unknown extensions from their content")
	cmd.Flags().BoolVar(&byDate, "by-date", false, "File into YYYY/MM subfolders by modification time")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include hidden files")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum directory depth to scan (default 20)")
	return cmd
}

// organizeOutcome turns per-file failures into a non-zero exit.
func organizeOutcome(result *organizer.Result) error {
	exec := result.Execution
	if exec == nil {
		return nil
	}
	if exec.Critical {
		for _, fe := range exec.Errors {
			if fileops.KindOf(fe.Err).Critical() {
				return fe.Err
			}
		}
	}
	if exec.Aborted {
		return fileops.NewError(fileops.KindAborted, "organize", result.Plan.SourceDir, "canceled before every file was processed")
	}
	if len(exec.Errors) > 0 {
		return fmt.Errorf("%d of %d files failed", len(exec.Errors), len(result.Plan.Moves))
	}
	return nil
}

func printOrganizeResult(w io.Writer, result *organizer.Result) {
	plan := result.Plan

	if result.DryRun {
		printTitle(w, "Plan for %s (dry run)", shortPath(plan.SourceDir))
	} else {
		printTitle(w, "Organized %s", shortPath(plan.SourceDir))
	}

	for _, m := range plan.Moves {
		rel, err := filepath.Rel(plan.TargetDir, m.Destination)
		if err != nil {
			rel = m.Destination
		}
		marker := " "
		switch m.Conflict {
		case organizer.ConflictRenamed:
			marker = warnStyle.Render("R")
		case organizer.ConflictOverwrite:
			marker = warnStyle.Render("O")
		}
		fmt.Fprintf(w, "  %s %s %s %s\n", marker, shortPath(filepath.Base(m.Source)), subtleStyle.Render("→"), rel)
	}
	for _, s := range plan.Skipped {
		fmt.Fprintf(w, "  %s %s %s\n", subtleStyle.Render("-"), shortPath(s.Path), subtleStyle.Render("("+s.Reason+")"))
	}

	fmt.Fprintln(w)
	printKV(w, "files", fmt.Sprintf("%d (%s)", plan.Stats.TotalFiles, humanize.IBytes(uint64(plan.Stats.TotalSize))))
	printKV(w, "conflicts", plan.Stats.Conflicts)
	printKV(w, "skipped", plan.Stats.Skipped)

	exec := result.Execution
	if exec == nil {
		return
	}

	if exec.Copied > 0 {
		printKV(w, "copied", exec.Copied)
	} else {
		printKV(w, "moved", exec.Moved)
	}
	if exec.Overwritten > 0 {
		printKV(w, "overwritten", fmt.Sprintf("%d (originals kept as backups)", exec.Overwritten))
	}
	for _, fe := range exec.Errors {
		fmt.Fprintln(w, errorStyle.Render("  ✗ ")+fe.Error())
	}
	if result.ManifestID != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, successStyle.Render("Rollback manifest: ")+result.ManifestID)
		fmt.Fprintln(w, hintStyle.Render("  undo with: orgsafe rollback undo "+result.ManifestID))
	}
}
