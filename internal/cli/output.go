package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/audit"
	"github.com/gobeaver/nocloud/syncer"
)

// failure is one row of the failed-path table
type failure struct {
	path string
	err  error
}

// writeFailures prints failed paths with their error kind
func writeFailures(w io.Writer, failures []failure) {
	if len(failures) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Path", "Kind", "Error"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, f := range failures {
		table.Append([]string{f.path, string(nocloud.Kind(f.err)), f.err.Error()})
	}
	table.Render()
}

// writeFinding prints an audit line, status code then path
func writeFinding(w io.Writer, f audit.Finding) {
	code := color.New(color.FgYellow, color.Bold).Sprint(f.State.Code())
	line := fmt.Sprintf("%s %s", code, f.Entry.Path)
	if f.Err != nil {
		line += color.RedString(" (%v)", f.Err)
	}
	fmt.Fprintln(w, line)
}

// writeReport prints the summary of a sync and returns its failures
func writeReport(w io.Writer, r *syncer.SyncReport) []failure {
	failed := r.Failed()
	summary := color.New(color.FgGreen)
	if len(failed) > 0 {
		summary = color.New(color.FgRed)
	}
	summary.Fprintln(w, r.Summary())

	failures := make([]failure, 0, len(failed))
	for _, o := range failed {
		failures = append(failures, failure{path: o.Path, err: o.Err})
	}
	return failures
}

func failedError(op string, n int) error {
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d failed", op, n)
}
