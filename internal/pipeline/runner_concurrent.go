package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/shirotsuki/phrase-renderer/internal/task"
)

// RunConcurrent drives graph the same way Run does — cache probing, skip
// propagation, interruption, sweep on termination — except every task that
// becomes Runnable within one propagation wave executes concurrently
// instead of one at a time. spec.md §5 permits parallelizing stages across
// phrases as long as writes to the shared phrase map and caches are
// serialized; StageContext.withPhraseLock and cache.Store's own locking do
// that, so this loop itself needs no extra synchronization beyond waiting
// for each wave to finish before propagating it.
//
// maxConcurrency caps how many tasks run at once within a wave; zero or
// negative means unbounded. Run remains the default pipeline.Runner mode
// and the one renderer.Renderer.Render drives; RunConcurrent is an
// additive mode for callers that want wall-clock parallelism across an
// otherwise single-threaded render.
func (r *Runner) RunConcurrent(ctx context.Context, maxConcurrency int) Result {
	pendingCacheCheck := append([]*task.Task(nil), r.graph.RootTasks()...)
	for _, t := range pendingCacheCheck {
		if len(t.Dependencies) == 0 {
			t.RunStatus = task.Runnable
		}
	}

	interrupted := false

	for {
		if r.interruption.Load() {
			interrupted = true
			break
		}

		pendingCacheCheck, _ = r.drainCacheChecks(ctx, pendingCacheCheck, nil)

		wave := r.runnableTasks()
		if len(wave) == 0 {
			break
		}

		var g errgroup.Group
		if maxConcurrency > 0 {
			g.SetLimit(maxConcurrency)
		}

		for _, t := range wave {
			t := t
			isCachedTask := t.CacheStatus == task.Cached
			t.RunStatus = task.Running
			r.listener.TaskStarted(t, isCachedTask)

			g.Go(func() error {
				err := t.Run(ctx)
				if err != nil {
					t.RunStatus = task.Failed
				} else {
					t.RunStatus = task.Success
				}
				r.listener.TaskFinished(t, isCachedTask, err)
				return nil
			})
		}
		_ = g.Wait()

		for _, t := range wave {
			pendingCacheCheck = r.propagate(t, pendingCacheCheck)
		}
	}

	r.sweepRemainingToSkipped()
	return Result{Interrupted: interrupted}
}
