package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gobeaver/nocloud/resolver"
	"github.com/gobeaver/nocloud/syncer"
)

func newPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push [path...]",
		Short: "Upload files to the remote configured for them.",
		Long: "Upload every file under each path to the remote named by the\n" +
			"nearest .no-cloud.yml, replacing remote objects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sync(cmd.Context(), args, (*syncer.Engine).Push)
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [path...]",
		Short: "Download files from the remote configured for them.",
		Long: "Download every remote object governed by a configuration at or\n" +
			"below each path, replacing local files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sync(cmd.Context(), args, (*syncer.Engine).Pull)
		},
	}
}

type syncFunc func(e *syncer.Engine, ctx context.Context, root string) (*syncer.SyncReport, error)

func (a *app) sync(ctx context.Context, args []string, run syncFunc) error {
	paths, err := targets(args)
	if err != nil {
		return err
	}

	// One resolver per invocation: encrypted documents ask for the
	// password once and configs are never reused across runs.
	r := resolver.New(a.fs,
		resolver.WithCipher(newCipher()),
		resolver.WithPasswords(resolver.Once(a.passwords)),
		resolver.WithLogger(a.log),
	)
	engine := syncer.New(a.fs, r,
		syncer.FromConfig(a.cfg),
		syncer.WithConcurrency(a.concurrency),
		syncer.WithLogger(a.log),
	)

	var failures []failure
	for _, p := range paths {
		report, err := run(engine, ctx, p)
		if err != nil {
			writeFailures(a.stderr, failures)
			return err
		}
		failures = append(failures, writeReport(a.stdout, report)...)
	}

	writeFailures(a.stderr, failures)
	return failedError("sync", len(failures))
}
