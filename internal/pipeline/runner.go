// Package pipeline builds the per-render task graph (spec.md §4.4) and
// runs it to completion with the DAG runner (spec.md §4.6).
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/shirotsuki/phrase-renderer/internal/logging"
	"github.com/shirotsuki/phrase-renderer/internal/task"
)

// Listener receives task lifecycle events from the runner. The renderer
// facade implements this to translate task-level events into the
// higher-level event stream of spec.md §6 (spec.md §4.7: "an adapter that
// translates task-lifecycle events into the higher-level events").
type Listener interface {
	TaskStarted(t *task.Task, isCachedTask bool)
	TaskFinished(t *task.Task, isCachedTask bool, err error)
}

// Result is the DAG runner's outcome for one Run call.
type Result struct {
	Interrupted bool
}

// Runner drives a task.Graph to completion: cache probing, cache-vs-
// selector prioritization, skip propagation on failure, interruption, and
// task-lifecycle event emission (spec.md §4.6).
type Runner struct {
	graph                *task.Graph
	selector             Selector
	listener             Listener
	prioritizeCachedTask bool
	interruption         atomic.Bool

	log *slog.Logger
}

// NewRunner constructs a Runner over graph. If selector is nil, FIFOSelector
// is used (spec.md §9 open question 4: never a stub that returns nothing).
func NewRunner(graph *task.Graph, selector Selector, listener Listener, prioritizeCachedTask bool) *Runner {
	if selector == nil {
		selector = FIFOSelector{}
	}
	return &Runner{
		graph:                graph,
		selector:             selector,
		listener:             listener,
		prioritizeCachedTask: prioritizeCachedTask,
		log:                  logging.ForService("pipeline.runner"),
	}
}

// RequestInterruption flips the interruption flag; the runner checks it at
// the top of each loop iteration (spec.md §5). In-flight stage work is not
// cancelled.
func (r *Runner) RequestInterruption() {
	r.interruption.Store(true)
}

// Run executes the loop described in spec.md §4.6 to completion or
// interruption.
func (r *Runner) Run(ctx context.Context) Result {
	pendingCacheCheck := append([]*task.Task(nil), r.graph.RootTasks()...)
	for _, t := range pendingCacheCheck {
		if len(t.Dependencies) == 0 {
			t.RunStatus = task.Runnable
		}
	}

	var cachedRunnableStack []*task.Task
	interrupted := false

	for {
		if r.interruption.Load() {
			interrupted = true
			break
		}

		pendingCacheCheck, cachedRunnableStack = r.drainCacheChecks(ctx, pendingCacheCheck, cachedRunnableStack)

		chosen, isCachedTask := r.pickNext(cachedRunnableStack)
		if chosen == nil {
			break
		}
		if isCachedTask {
			cachedRunnableStack = cachedRunnableStack[:len(cachedRunnableStack)-1]
		}

		chosen.RunStatus = task.Running
		r.listener.TaskStarted(chosen, isCachedTask)
		r.log.Debug("task running", "id", chosen.ID, "kind", string(chosen.Kind), "isCachedTask", isCachedTask)

		err := chosen.Run(ctx)
		if err != nil {
			chosen.RunStatus = task.Failed
		} else {
			chosen.RunStatus = task.Success
		}
		r.listener.TaskFinished(chosen, isCachedTask, err)
		r.log.Debug("task finished", "id", chosen.ID, "status", chosen.RunStatus.String())

		pendingCacheCheck = r.propagate(chosen, pendingCacheCheck)
	}

	r.sweepRemainingToSkipped()
	return Result{Interrupted: interrupted}
}

// drainCacheChecks probes every cacheable task in queue, moving cache hits
// onto the cached-runnable stack, and clears the queue.
func (r *Runner) drainCacheChecks(ctx context.Context, queue []*task.Task, cachedStack []*task.Task) ([]*task.Task, []*task.Task) {
	for _, t := range queue {
		if !t.Cacheable || t.IsCached == nil {
			t.CacheStatus = task.NotCached
			continue
		}
		if t.IsCached(ctx) {
			t.CacheStatus = task.Cached
			cachedStack = append(cachedStack, t)
		} else {
			t.CacheStatus = task.NotCached
		}
	}
	return nil, cachedStack
}

// pickNext chooses the next task per spec.md §4.6 step 3: prefer the
// cached-runnable stack when prioritizeCachedTask is on, else defer to the
// selector over every currently Runnable task.
func (r *Runner) pickNext(cachedStack []*task.Task) (*task.Task, bool) {
	if r.prioritizeCachedTask && len(cachedStack) > 0 {
		return cachedStack[len(cachedStack)-1], true
	}

	runnable := r.runnableTasks()
	chosen := r.selector.Select(runnable)
	return chosen, false
}

func (r *Runner) runnableTasks() []*task.Task {
	var out []*task.Task
	for _, t := range r.graph.Tasks() {
		if t.RunStatus == task.Runnable {
			out = append(out, t)
		}
	}
	return out
}

// propagate applies spec.md §4.6's success/failure propagation for the
// just-finished task t, appending newly Runnable children to the
// pending-cache-check queue.
func (r *Runner) propagate(t *task.Task, pendingCacheCheck []*task.Task) []*task.Task {
	if t.RunStatus == task.Success {
		for _, c := range r.graph.Children(t) {
			if c.RunStatus == task.AwaitingDependencies && c.ParentsSettled() {
				c.RunStatus = task.Runnable
				pendingCacheCheck = append(pendingCacheCheck, c)
			}
		}
		return pendingCacheCheck
	}

	// Failure: propagate transitively via DFS.
	var visit func(c *task.Task)
	visit = func(c *task.Task) {
		if c.RunStatus != task.AwaitingDependencies {
			return
		}
		skip := false
		switch c.SkipPolicy {
		case task.AnyDependencyFailedOrSkipped:
			skip = c.AnyParentFailedOrSkipped()
		case task.AllDependenciesFailedOrSkipped:
			skip = c.AllParentsFailedOrSkipped()
		}
		if skip {
			c.RunStatus = task.Skipped
			for _, gc := range r.graph.Children(c) {
				visit(gc)
			}
			return
		}
		if c.ParentsSettled() {
			c.RunStatus = task.Runnable
			pendingCacheCheck = append(pendingCacheCheck, c)
		}
	}
	for _, c := range r.graph.Children(t) {
		visit(c)
	}
	return pendingCacheCheck
}

// sweepRemainingToSkipped marks every task left AwaitingDependencies or
// Runnable as Skipped on termination (spec.md §4.6).
func (r *Runner) sweepRemainingToSkipped() {
	for _, t := range r.graph.Tasks() {
		if t.RunStatus == task.AwaitingDependencies || t.RunStatus == task.Runnable {
			t.RunStatus = task.Skipped
		}
	}
}
