package syncer

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/walker"
)

// Pull downloads every remote object governed by a configuration at or
// below root, replacing local files unconditionally. Each scope lists only
// its own keys; keys that map under a nested scope are left to that scope.
//
// The returned error is non-nil only when no configuration governs root or
// anything below it.
func (e *Engine) Pull(ctx context.Context, root string) (*SyncReport, error) {
	root = filepath.Clean(root)
	report := e.newReport(OpPull, root)
	c := &collector{}
	defer func() {
		report.Outcomes = c.sorted()
		report.Finished = e.clock.Now()
	}()

	if info, err := e.fs.Stat(root); err == nil && info.Mode().IsRegular() {
		return report, e.pullFile(ctx, root, c)
	}

	table, err := e.scopes(root)
	if err != nil {
		return report, err
	}

	var jobs []*scopeJob
	for _, s := range table.Scopes() {
		jobs = append(jobs, e.pullJob(root, s, table))
	}
	e.log.WithFields(logrus.Fields{"root": root, "scopes": len(jobs)}).Debug("Planned pull")
	e.ungoverned(root, table, report, c)

	e.run(ctx, jobs, c)
	return report, nil
}

// pullFile restores a single file from the backend governing it
func (e *Engine) pullFile(ctx context.Context, path string, c *collector) error {
	cfg, err := e.resolver.Resolve(path)
	if nocloud.IsConfigNotFound(err) {
		return err
	}

	job := &scopeJob{
		dir:      filepath.Dir(path),
		cfg:      cfg,
		err:      err,
		affected: func() []string { return []string{path} },
		transfer: func(ctx context.Context, b nocloud.Backend, t task) error {
			return b.Get(ctx, t.key, t.local)
		},
	}
	if cfg != nil {
		job.dir = cfg.Scope
		key, err := cfg.Key(path)
		if err != nil {
			job.err = err
		}
		job.tasks = []task{{local: path, key: key}}
	}

	e.run(ctx, []*scopeJob{job}, c)
	return nil
}

// ungoverned records the local files under root that no scope in table
// claims, as push does for files it cannot resolve.
func (e *Engine) ungoverned(root string, table *nocloud.ScopeTable, report *SyncReport, c *collector) {
	if _, ok := table.Lookup(root); ok {
		return
	}
	if exists, _ := afero.DirExists(e.fs, root); !exists {
		return
	}
	for entry, err := range walker.Walk(e.fs, root, append([]walker.Option{walker.WithLogger(e.log)}, e.walkOpts...)...) {
		if err != nil {
			report.Warnings = multierr.Append(report.Warnings, err)
			continue
		}
		if nocloud.IsConfigDocument(entry.Path) {
			continue
		}
		if _, ok := table.Lookup(entry.Dir); ok {
			continue
		}
		_, err := e.resolver.ResolveDir(entry.Dir)
		if err == nil {
			continue
		}
		e.log.WithError(err).WithField("path", entry.Path).Debug("No usable configuration")
		c.add(Outcome{Path: entry.Path, Err: err})
	}
}

// scopes builds the table of configurations that govern root and the
// directories below it. A document that fails to load still claims its
// subtree, so its files are reported rather than pulled by an ancestor.
func (e *Engine) scopes(root string) (*nocloud.ScopeTable, error) {
	table := nocloud.NewScopeTable()

	cfg, rootErr := e.resolver.ResolveDir(root)
	switch {
	case rootErr == nil:
		_ = table.Add(&nocloud.Scope{Dir: cfg.Scope, Config: cfg})
	case !nocloud.IsConfigNotFound(rootErr):
		_ = table.Add(&nocloud.Scope{Dir: root, Err: rootErr})
	}

	// A root that does not exist yet is restored from the scope above it
	if exists, _ := afero.DirExists(e.fs, root); exists {
		dirs, err := e.resolver.FindDirs(root)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			if s, ok := table.Lookup(dir); ok && s.Dir == dir {
				continue
			}
			cfg, err := e.resolver.ResolveDir(dir)
			_ = table.Add(&nocloud.Scope{Dir: dir, Config: cfg, Err: err})
		}
	}

	if table.Len() == 0 {
		return nil, rootErr
	}
	return table, nil
}

func (e *Engine) pullJob(root string, s *nocloud.Scope, table *nocloud.ScopeTable) *scopeJob {
	job := &scopeJob{dir: s.Dir, cfg: s.Config, err: s.Err}

	// The part of the scope inside root
	base := s.Dir
	if nocloud.Within(s.Dir, root) {
		base = root
	}

	job.affected = func() []string {
		var paths []string
		for entry, err := range walker.Walk(e.fs, base, e.walkOpts...) {
			if err != nil {
				continue
			}
			if !nocloud.IsConfigDocument(entry.Path) && table.Governs(s.Dir, entry.Path) {
				paths = append(paths, entry.Path)
			}
		}
		if len(paths) == 0 {
			paths = []string{base}
		}
		return paths
	}

	job.plan = func(ctx context.Context, b nocloud.Backend) ([]task, error) {
		prefix, err := s.Config.ListPrefix(base)
		if err != nil {
			return nil, err
		}

		var keys []string
		err = e.withRetry(ctx, e.log.WithField("prefix", prefix), func(ctx context.Context) error {
			var err error
			keys, err = b.List(ctx, prefix)
			return err
		})
		if err != nil {
			return nil, err
		}

		var tasks []task
		for _, key := range keys {
			local, ok := s.Config.LocalPath(key)
			switch {
			case !ok, !nocloud.Within(root, local), nocloud.IsConfigDocument(local):
				continue
			case !table.Governs(s.Dir, local):
				e.log.WithFields(logrus.Fields{"key": key, "scope": s.Dir}).Debug("Skipping key owned by nested scope")
				continue
			}
			tasks = append(tasks, task{local: local, key: key})
		}
		return tasks, nil
	}

	job.transfer = func(ctx context.Context, b nocloud.Backend, t task) error {
		return b.Get(ctx, t.key, t.local)
	}
	return job
}
