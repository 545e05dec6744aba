// Package cli implements the no-cloud command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/resolver"
	"github.com/gobeaver/nocloud/walker"

	// Register the drivers configuration documents may name.
	_ "github.com/gobeaver/nocloud/driver/local"
	_ "github.com/gobeaver/nocloud/driver/memory"
	_ "github.com/gobeaver/nocloud/driver/s3"
	_ "github.com/gobeaver/nocloud/driver/sftp"
)

// app is the state shared by every command of one invocation
type app struct {
	fs        afero.Fs
	stdout    io.Writer
	stderr    io.Writer
	passwords resolver.Passwords
	log       *logrus.Logger
	cfg       *nocloud.Config

	verbose     bool
	debug       bool
	concurrency int
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.passwords = terminalPasswords{out: os.Stderr}

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	if a.log == nil {
		a.log = logrus.New()
	}

	rootCmd := &cobra.Command{
		Use:   "no-cloud",
		Short: "Keep a tree of encrypted files in sync with your own storage.",
		Long: "no-cloud audits a directory tree for cleartext files and loose\n" +
			"permissions, encrypts and decrypts files, and pushes or pulls the\n" +
			"tree to the remote named by the nearest .no-cloud.yml document.",
		SilenceUsage: true,

		// Execute prints the error, so we silence errors here to avoid
		// double printing.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log progress")
	flags.BoolVar(&a.debug, "debug", false, "Log everything")
	flags.IntVarP(&a.concurrency, "concurrency", "j", 0, "Parallel transfers per remote (default from NOCLOUD_CONCURRENCY)")

	rootCmd.AddCommand(
		newAuditCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newEncryptCmd(a),
		newDecryptCmd(a),
		newRemoteCmd(a),
	)
	return rootCmd
}

// setup loads the environment config and sets the log level. Flags win
// over NOCLOUD_LOG_LEVEL.
func (a *app) setup() error {
	cfg, err := nocloud.GetConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	switch {
	case a.debug:
		level = logrus.DebugLevel
	case a.verbose:
		level = logrus.InfoLevel
	}
	a.log.SetLevel(level)
	a.log.SetOutput(a.stderr)
	return nil
}

func (a *app) walkOptions() []walker.Option {
	opts := []walker.Option{walker.WithLogger(a.log)}
	if patterns := a.cfg.IgnorePatterns(); len(patterns) > 0 {
		opts = append(opts, walker.WithIgnore(patterns...))
	}
	return opts
}

// targets expands the path arguments, defaulting to the working directory
func targets(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := homedir.Expand(arg)
		if err != nil {
			return nil, err
		}
		if p, err = filepath.Abs(p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
