package syncer

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/walker"
)

// Push uploads every file under root to the backend of the configuration
// governing it, replacing the remote objects. Configuration documents are
// never uploaded.
//
// The returned error is non-nil only when the whole invocation failed: the
// root could not be walked, or no file has a configuration at all.
// Per-file failures are recorded in the report.
func (e *Engine) Push(ctx context.Context, root string) (*SyncReport, error) {
	root = filepath.Clean(root)
	report := e.newReport(OpPush, root)
	c := &collector{}
	defer func() {
		report.Outcomes = c.sorted()
		report.Finished = e.clock.Now()
	}()

	jobs, notFound, err := e.planPush(root, report, c)
	if err != nil {
		return report, err
	}
	if len(jobs) == 0 && notFound != nil {
		return report, notFound
	}

	e.run(ctx, jobs, c)
	return report, nil
}

// planPush walks root and groups files by configuration. Resolution
// failures are recorded directly. notFound is set when every resolution
// failed with ErrConfigNotFound.
func (e *Engine) planPush(root string, report *SyncReport, c *collector) (jobs []*scopeJob, notFound error, err error) {
	bySource := make(map[string]*scopeJob)
	allNotFound := true

	for entry, err := range walker.Walk(e.fs, root, append([]walker.Option{walker.WithLogger(e.log)}, e.walkOpts...)...) {
		if err != nil {
			if walker.IsFatal(err) {
				return nil, nil, err
			}
			report.Warnings = multierr.Append(report.Warnings, err)
			continue
		}
		if nocloud.IsConfigDocument(entry.Path) {
			continue
		}

		cfg, err := e.resolver.ResolveDir(entry.Dir)
		if err == nil {
			var key string
			if key, err = cfg.Key(entry.Path); err == nil {
				job, ok := bySource[cfg.Source]
				if !ok {
					job = e.pushJob(cfg)
					bySource[cfg.Source] = job
					jobs = append(jobs, job)
				}
				job.tasks = append(job.tasks, task{local: entry.Path, key: key})
				continue
			}
		}

		e.log.WithError(err).WithField("path", entry.Path).Debug("No usable configuration")
		c.add(Outcome{Path: entry.Path, Err: err})
		if !nocloud.IsConfigNotFound(err) {
			allNotFound = false
		} else if notFound == nil {
			notFound = err
		}
	}

	if !allNotFound {
		notFound = nil
	}
	e.log.WithFields(logrus.Fields{"root": root, "scopes": len(jobs)}).Debug("Planned push")
	return jobs, notFound, nil
}

func (e *Engine) pushJob(cfg *nocloud.RemoteConfig) *scopeJob {
	job := &scopeJob{dir: cfg.Scope, cfg: cfg}
	job.affected = func() []string {
		paths := make([]string, len(job.tasks))
		for i, t := range job.tasks {
			paths[i] = t.local
		}
		return paths
	}
	job.transfer = func(ctx context.Context, b nocloud.Backend, t task) error {
		return b.Put(ctx, t.local, t.key)
	}
	return job
}
