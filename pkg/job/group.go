package job

import (
	"context"
	"sync"
	"time"
)

// Group is a named set of sibling job ids used for bulk cancel/wait — a
// pipeline's constituent jobs, or a shell `&`-launched group, share one
// Group so a single cancel propagates to all of them.
type Group struct {
	mu     sync.RWMutex
	id     string
	name   string
	jobIDs []string
}

// NewGroup creates an empty group.
func NewGroup(id, name string) *Group {
	return &Group{id: id, name: name}
}

func (g *Group) ID() string   { return g.id }
func (g *Group) Name() string { return g.name }

// Add appends a job id to the group.
func (g *Group) Add(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.jobIDs = append(g.jobIDs, jobID)
}

// Remove drops a job id from the group, if present.
func (g *Group) Remove(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, id := range g.jobIDs {
		if id == jobID {
			g.jobIDs = append(g.jobIDs[:i], g.jobIDs[i+1:]...)
			return
		}
	}
}

// JobIDs returns a copy of the group's member ids.
func (g *Group) JobIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.jobIDs))
	copy(out, g.jobIDs)
	return out
}

// CancelGroup cancels every member job, continuing past individual
// failures (e.g. a member already terminal) and returning the first
// error encountered, if any.
func (c *Controller) CancelGroup(g *Group) error {
	var firstErr error
	for _, id := range g.JobIDs() {
		if err := c.CancelJob(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WaitGroup blocks until every member job has reached a terminal state
// or ctx is cancelled, polling every pollInterval, then returns their
// results in member order.
func (c *Controller) WaitGroup(ctx context.Context, g *Group, pollInterval time.Duration) []*Result {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		allDone := true
		for _, id := range g.JobIDs() {
			if j, ok := c.lookup(id); ok {
				switch j.Status() {
				case StatusCompleted, StatusFailed, StatusCancelled:
				default:
					allDone = false
				}
			}
		}
		if allDone {
			return c.GroupResults(g)
		}
		select {
		case <-ctx.Done():
			return c.GroupResults(g)
		case <-ticker.C:
		}
	}
}

// GroupResults returns the recorded results for every member job that has
// finished so far.
func (c *Controller) GroupResults(g *Group) []*Result {
	var out []*Result
	for _, id := range g.JobIDs() {
		if r, ok := c.GetJobResult(id); ok {
			out = append(out, r)
		}
	}
	return out
}
