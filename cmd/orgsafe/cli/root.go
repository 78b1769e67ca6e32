// Package cli implements the orgsafe command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"orgsafe/internal/audit"
	"orgsafe/internal/config"
	"orgsafe/internal/logging"
	"orgsafe/internal/organizer"
	"orgsafe/internal/pathguard"
	"orgsafe/internal/ratelimit"
	"orgsafe/internal/reader"
	"orgsafe/internal/rollback"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	verbose    bool
	configPath string
	logFile    string
}

// app is the set of services a command runs against. It is built once per
// invocation from the loaded configuration.
type app struct {
	cfg       *config.Config
	logger    *logging.AppLogger
	validator *pathguard.Validator
	reader    *reader.SecureFileReader
	organizer *organizer.Service
	rollback  *rollback.Service
}

func newApp(opts *globalOptions) (*app, error) {
	logFile := opts.logFile
	if logFile == "" {
		logFile = os.Getenv("ORGSAFE_LOG_FILE")
	}
	logger, err := logging.New(logging.Options{
		Verbose: opts.verbose || os.Getenv("DEBUG") != "",
		LogFile: logFile,
	})
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFrom(opts.configPath, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	if err := cfg.EnsureDataDirs(); err != nil {
		logger.Close()
		return nil, err
	}

	validator, err := pathguard.New(cfg.AllowedDirs, cfg.BlockedPatterns, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	sink := audit.NewLogSink(logger)
	rb := rollback.NewService(cfg.ManifestDir, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		validator: validator,
		reader: reader.New(validator, limiter, sink, logger, reader.Config{
			MaxReadBytes:    cfg.MaxReadBytes,
			MaxFileSize:     cfg.MaxFileSize,
			StreamThreshold: cfg.StreamThreshold,
		}),
		organizer: organizer.NewService(validator, limiter, sink, rb, cfg.BackupDir, logger),
		rollback:  rb,
	}, nil
}

func (a *app) Close() error {
	return a.logger.Close()
}

// withApp adapts a command body that needs the services.
func withApp(opts *globalOptions, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "orgsafe",
		Short: "Organize files without losing any of them",
		Long: `Orgsafe sorts files into category folders, finds duplicates and reads
files inside a configured set of allowed directories.

Every change is recorded in a rollback manifest so a whole run can be
undone with "orgsafe rollback undo <id>". Existing files are never
overwritten unless a strategy asks for it, and even then the original is
kept as a backup.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose debug logging")
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.ConfigPath(), "Path to the config file")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")

	root.AddGroup(
		&cobra.Group{ID: "core", Title: "File commands:"},
		&cobra.Group{ID: "manage", Title: "Management commands:"},
	)

	root.AddCommand(
		newValidateCmd(opts),
		newReadCmd(opts),
		newOrganizeCmd(opts),
		newDuplicatesCmd(opts),
		newRollbackCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	ctx, cancel := signalContext()
	defer cancel()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), formatError(err))
	}
	return err
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
