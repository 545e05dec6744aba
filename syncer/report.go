package syncer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op names a sync direction
type Op string

const (
	OpPush Op = "push"
	OpPull Op = "pull"
)

// Outcome is the result of one file transfer. Err is nil on success.
type Outcome struct {
	Path  string
	Key   string
	Scope string
	Err   error
}

// SyncReport collects the outcomes of one push or pull invocation.
type SyncReport struct {
	ID       uuid.UUID
	Op       Op
	Root     string
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome

	// Warnings holds non-fatal walk errors such as unreadable directories.
	Warnings error
}

// Failed returns the outcomes with an error.
func (r *SyncReport) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the outcomes without an error.
func (r *SyncReport) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o)
		}
	}
	return out
}

// Err returns a non-nil error when any file failed.
func (r *SyncReport) Err() error {
	if n := len(r.Failed()); n > 0 {
		return fmt.Errorf("%s: %d of %d files failed", r.Op, n, len(r.Outcomes))
	}
	return nil
}

// Summary is a one-line description for terminal output.
func (r *SyncReport) Summary() string {
	failed := len(r.Failed())
	return fmt.Sprintf("%s %s: %d succeeded, %d failed in %s",
		r.Op, r.Root, len(r.Outcomes)-failed, failed, r.Finished.Sub(r.Started).Round(time.Millisecond))
}

// collector gathers outcomes from concurrent workers
type collector struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *collector) add(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

// sorted returns the outcomes ordered by path so reports are stable
func (c *collector) sorted() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
