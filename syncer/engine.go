// Package syncer pushes local trees to their remote backends and pulls
// them back. Files are grouped by the configuration that governs them;
// every group gets its own backend handle and a bounded worker pool.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/walker"
)

const (
	DefaultConcurrency = 4
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 200 * time.Millisecond
)

// ConfigResolver finds the configuration governing a path.
type ConfigResolver interface {
	Resolve(path string) (*nocloud.RemoteConfig, error)
	ResolveDir(dir string) (*nocloud.RemoteConfig, error)
	FindDirs(root string) ([]string, error)
}

// Engine runs push and pull operations.
type Engine struct {
	fs          afero.Fs
	resolver    ConfigResolver
	open        nocloud.DriverFactory
	concurrency int
	maxRetries  uint64
	baseDelay   time.Duration
	walkOpts    []walker.Option
	clock       clockwork.Clock
	log         logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency sets the worker pool size per scope.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRetry sets how often a transient failure is retried and the first
// backoff delay, which doubles on every attempt.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(e *Engine) {
		if maxRetries >= 0 {
			e.maxRetries = uint64(maxRetries)
		}
		if base > 0 {
			e.baseDelay = base
		}
	}
}

// WithWalkOptions passes options to the directory walker.
func WithWalkOptions(opts ...walker.Option) Option {
	return func(e *Engine) { e.walkOpts = append(e.walkOpts, opts...) }
}

// WithOpener replaces nocloud.Open as the way backend handles are opened.
func WithOpener(open nocloud.DriverFactory) Option {
	return func(e *Engine) { e.open = open }
}

// WithClock sets the clock used for report timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// FromConfig applies engine settings loaded from the environment.
func FromConfig(cfg *nocloud.Config) Option {
	return func(e *Engine) {
		WithConcurrency(cfg.Concurrency)(e)
		WithRetry(cfg.MaxRetries, cfg.BaseDelay())(e)
		if patterns := cfg.IgnorePatterns(); len(patterns) > 0 {
			WithWalkOptions(walker.WithIgnore(patterns...))(e)
		}
	}
}

// New creates an Engine over the local filesystem fsys.
func New(fsys afero.Fs, resolver ConfigResolver, opts ...Option) *Engine {
	e := &Engine{
		fs:          fsys,
		resolver:    resolver,
		open:        nocloud.Open,
		concurrency: DefaultConcurrency,
		maxRetries:  DefaultMaxRetries,
		baseDelay:   DefaultBaseDelay,
		clock:       clockwork.NewRealClock(),
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// task is one file transfer
type task struct {
	local string
	key   string
}

// scopeJob is the work for one configuration scope. Push jobs know their
// tasks up front; pull jobs discover them by listing the remote.
type scopeJob struct {
	dir   string
	cfg   *nocloud.RemoteConfig
	err   error
	tasks []task
	plan  func(ctx context.Context, b nocloud.Backend) ([]task, error)

	// affected lists the local paths reported when the scope fails
	// before any transfer starts.
	affected func() []string

	transfer func(ctx context.Context, b nocloud.Backend, t task) error
}

func (e *Engine) newReport(op Op, root string) *SyncReport {
	return &SyncReport{
		ID:      uuid.New(),
		Op:      op,
		Root:    root,
		Started: e.clock.Now(),
	}
}

// run executes the jobs in parallel and fills the report
func (e *Engine) run(ctx context.Context, jobs []*scopeJob, c *collector) {
	var g errgroup.Group
	for _, job := range jobs {
		g.Go(func() error {
			e.runScope(ctx, job, c)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) runScope(ctx context.Context, job *scopeJob, c *collector) {
	log := e.log.WithField("scope", job.dir)
	if job.cfg != nil {
		log = log.WithField("driver", job.cfg.Driver)
	}

	if job.err != nil {
		e.failScope(job, job.err, c)
		return
	}
	if ctx.Err() != nil {
		e.failScope(job, cancelled(ctx), c)
		return
	}

	b, err := e.open(ctx, job.cfg, e.fs)
	if err != nil {
		log.WithError(err).Warn("Failed to open backend")
		e.failScope(job, err, c)
		return
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("Failed to close backend")
		}
	}()

	tasks := job.tasks
	if job.plan != nil {
		tasks, err = job.plan(ctx, b)
		if err != nil {
			log.WithError(err).Warn("Failed to list remote")
			if ctx.Err() != nil {
				err = multierr.Append(cancelled(ctx), err)
			}
			e.failScope(job, err, c)
			return
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for _, t := range tasks {
		if ctx.Err() != nil {
			c.add(Outcome{Path: t.local, Key: t.key, Scope: job.dir, Err: cancelled(ctx)})
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				c.add(Outcome{Path: t.local, Key: t.key, Scope: job.dir, Err: cancelled(ctx)})
				return nil
			}
			err := e.withRetry(ctx, log.WithField("key", t.key), func(ctx context.Context) error {
				return job.transfer(ctx, b, t)
			})
			if err != nil {
				log.WithError(err).WithField("path", t.local).Warn("Transfer failed")
			} else {
				log.WithField("path", t.local).Debug("Transferred")
			}
			c.add(Outcome{Path: t.local, Key: t.key, Scope: job.dir, Err: err})
			return nil
		})
	}
	_ = g.Wait()
}

// failScope records err for every file the job would have transferred
func (e *Engine) failScope(job *scopeJob, err error, c *collector) {
	for _, p := range job.affected() {
		c.add(Outcome{Path: p, Scope: job.dir, Err: err})
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", nocloud.ErrCancelled, context.Cause(ctx))
}
