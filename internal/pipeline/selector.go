package pipeline

import "github.com/shirotsuki/phrase-renderer/internal/task"

// Selector picks the next runnable task when no cache-priority task is
// available (spec.md §6). It must return a task whose RunStatus is
// Runnable, or nil to signal "no work right now" — the runner terminates
// normally when that happens with an empty cached-runnable stack.
//
// spec.md §9 open question 4 notes the source's playhead-aware selector is
// stubbed to always return nothing, and warns that a faithful port should
// not inherit that stub. FIFOSelector below is the real, non-stub default;
// callers that want playhead-proximity prioritization supply their own
// Selector.
type Selector interface {
	Select(runnable []*task.Task) *task.Task
}

// FIFOSelector returns the first runnable task in construction order.
type FIFOSelector struct{}

// Select implements Selector.
func (FIFOSelector) Select(runnable []*task.Task) *task.Task {
	if len(runnable) == 0 {
		return nil
	}
	return runnable[0]
}

var _ Selector = FIFOSelector{}
