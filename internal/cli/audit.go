package cli

import (
	"github.com/spf13/cobra"

	"github.com/gobeaver/nocloud/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "audit [path...]",
		Short: "Report cleartext files and insecure permissions.",
		Long: "Walk each path and print one line per file that is not both\n" +
			"encrypted and mode 0600: 'c' marks cleartext, 'm' a wrong mode.\n" +
			"Modes are fixed unless --dry-run is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := targets(args)
			if err != nil {
				return err
			}

			auditor := audit.New(a.fs,
				audit.WithLogger(a.log),
				audit.WithWalkOptions(a.walkOptions()...),
				audit.OnFinding(func(f audit.Finding) { writeFinding(a.stdout, f) }),
			)

			var failures []failure
			for _, p := range paths {
				report, err := auditor.Audit(cmd.Context(), p, !dryRun)
				if err != nil {
					return err
				}
				for _, f := range report.Failed() {
					failures = append(failures, failure{path: f.Entry.Path, err: f.Err})
				}
			}

			writeFailures(a.stderr, failures)
			return failedError("audit", len(failures))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report only, do not fix modes")
	return cmd
}
