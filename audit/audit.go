// Package audit reports files that are stored in clear text or readable by
// others, and repairs their permissions.
package audit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/walker"
)

// Finding is a file that is not fully compliant. State is the state
// observed before any remediation.
type Finding struct {
	Entry nocloud.FileEntry
	State SecurityState
	Fixed bool
	Err   error
}

// String renders the report line, status code then path.
func (f Finding) String() string {
	return fmt.Sprintf("%s %s", f.State.Code(), f.Entry.Path)
}

// Report is the outcome of one audit.
type Report struct {
	Findings []Finding
	Scanned  int

	// Warnings collects subdirectories that could not be read.
	Warnings error
}

// Failed returns the findings whose remediation failed.
func (r *Report) Failed() []Finding {
	var failed []Finding
	for _, f := range r.Findings {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Auditor classifies every file of a tree, one at a time.
type Auditor struct {
	fs       afero.Fs
	log      logrus.FieldLogger
	walkOpts []walker.Option
	onFind   func(Finding)
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Auditor) { a.log = log }
}

// WithWalkOptions passes options to the directory walk.
func WithWalkOptions(opts ...walker.Option) Option {
	return func(a *Auditor) { a.walkOpts = append(a.walkOpts, opts...) }
}

// OnFinding registers a callback invoked for each finding as soon as it
// is produced, in traversal order.
func OnFinding(fn func(Finding)) Option {
	return func(a *Auditor) { a.onFind = fn }
}

// New creates an Auditor over fsys.
func New(fsys afero.Fs, opts ...Option) *Auditor {
	a := &Auditor{fs: fsys, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit walks root and reports every file that is not both encrypted and
// mode compliant. When fix is true the mode of each non-compliant file is
// set to the secure mask; a failed fix is recorded on the finding and the
// audit continues. File contents are never touched.
func (a *Auditor) Audit(ctx context.Context, root string, fix bool) (*Report, error) {
	report := &Report{}
	opts := append([]walker.Option{walker.WithLogger(a.log)}, a.walkOpts...)

	for entry, err := range walker.Walk(a.fs, root, opts...) {
		if err != nil {
			if walker.IsFatal(err) {
				return report, err
			}
			report.Warnings = multierr.Append(report.Warnings, err)
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: %w", nocloud.ErrCancelled, err)
		}

		report.Scanned++
		state := Classify(entry)
		if state.Compliant() {
			continue
		}

		finding := Finding{Entry: entry, State: state}
		if fix && !state.ModeCompliant {
			if err := Fix(a.fs, entry); err != nil {
				a.log.WithError(err).WithField("path", entry.Path).Warn("Failed to fix mode")
				finding.Err = err
			} else {
				a.log.WithField("path", entry.Path).Debug("Fixed mode")
				finding.Fixed = true
			}
		}

		report.Findings = append(report.Findings, finding)
		if a.onFind != nil {
			a.onFind(finding)
		}
	}

	return report, nil
}
