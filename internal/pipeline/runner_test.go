package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shirotsuki/phrase-renderer/internal/task"
)

type recordingListener struct {
	started  []string
	finished []string
}

func (l *recordingListener) TaskStarted(t *task.Task, _ bool)  { l.started = append(l.started, t.ID) }
func (l *recordingListener) TaskFinished(t *task.Task, _ bool, _ error) {
	l.finished = append(l.finished, t.ID)
}

func noRun(context.Context) error { return nil }

func TestRunnerPropagatesAnyDependencyFailedOrSkipped(t *testing.T) {
	t.Parallel()

	failing := task.New(task.KindQuery, "p1", "t1", nil, task.AnyDependencyFailedOrSkipped, false,
		func(context.Context) error { return errors.New("boom") }, nil)
	dependent := task.New(task.KindPitch, "p1", "t1", []*task.Task{failing}, task.AnyDependencyFailedOrSkipped, false, noRun, nil)

	graph, err := task.NewGraph([]*task.Task{failing, dependent})
	require.NoError(t, err)

	runner := NewRunner(graph, nil, &recordingListener{}, false)
	result := runner.Run(context.Background())

	assert.False(t, result.Interrupted)
	assert.Equal(t, task.Failed, failing.RunStatus)
	assert.Equal(t, task.Skipped, dependent.RunStatus)
}

func TestRunnerAllDependenciesFailedOrSkippedRunsOnPartialSuccess(t *testing.T) {
	t.Parallel()

	ok := task.New(task.KindQuery, "p1", "t1", nil, task.AnyDependencyFailedOrSkipped, false, noRun, nil)
	failing := task.New(task.KindQuery, "p2", "t1", nil, task.AnyDependencyFailedOrSkipped, false,
		func(context.Context) error { return errors.New("boom") }, nil)
	adjust := task.New(task.KindPhonemeTimingAdjust, "", "t1", []*task.Task{ok, failing}, task.AllDependenciesFailedOrSkipped, false, noRun, nil)

	graph, err := task.NewGraph([]*task.Task{ok, failing, adjust})
	require.NoError(t, err)

	runner := NewRunner(graph, nil, &recordingListener{}, false)
	runner.Run(context.Background())

	assert.Equal(t, task.Success, ok.RunStatus)
	assert.Equal(t, task.Failed, failing.RunStatus)
	assert.Equal(t, task.Success, adjust.RunStatus, "adjust should still run since not every dependency failed")
}

func TestRunnerAllDependenciesFailedOrSkippedSkipsOnTotalFailure(t *testing.T) {
	t.Parallel()

	a := task.New(task.KindQuery, "p1", "t1", nil, task.AnyDependencyFailedOrSkipped, false,
		func(context.Context) error { return errors.New("boom") }, nil)
	b := task.New(task.KindQuery, "p2", "t1", nil, task.AnyDependencyFailedOrSkipped, false,
		func(context.Context) error { return errors.New("boom") }, nil)
	adjust := task.New(task.KindPhonemeTimingAdjust, "", "t1", []*task.Task{a, b}, task.AllDependenciesFailedOrSkipped, false, noRun, nil)

	graph, err := task.NewGraph([]*task.Task{a, b, adjust})
	require.NoError(t, err)

	runner := NewRunner(graph, nil, &recordingListener{}, false)
	runner.Run(context.Background())

	assert.Equal(t, task.Skipped, adjust.RunStatus)
}

func TestRunnerPrioritizesCachedTasks(t *testing.T) {
	t.Parallel()

	var order []string
	makeTask := func(id string, cached bool) *task.Task {
		t := task.New(task.KindQuery, id, "t1", nil, task.AnyDependencyFailedOrSkipped, true,
			func(context.Context) error { order = append(order, id); return nil },
			func(context.Context) bool { return cached })
		t.PhraseKey = id
		return t
	}
	uncached := makeTask("uncached", false)
	cached := makeTask("cached", true)

	graph, err := task.NewGraph([]*task.Task{uncached, cached})
	require.NoError(t, err)

	runner := NewRunner(graph, FIFOSelector{}, &recordingListener{}, true)
	runner.Run(context.Background())

	require.Len(t, order, 2)
	assert.Equal(t, "cached", order[0], "cached task should run before the uncached one when prioritizeCachedTask is set")
}

func TestRunnerRunConcurrentCompletesGraph(t *testing.T) {
	t.Parallel()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sc, _ := newTestStageContext(t)
	graph, err := Build(sc)
	require.NoError(t, err)

	runner := NewRunner(graph, nil, noopListener{}, true)
	result := runner.RunConcurrent(context.Background(), 4)

	assert.False(t, result.Interrupted)
	for _, tk := range graph.Tasks() {
		assert.Equal(t, task.Success, tk.RunStatus, "task %s should have succeeded", tk.ID)
	}
}

func TestRunnerRunConcurrentPropagatesFailure(t *testing.T) {
	t.Parallel()

	failing := task.New(task.KindQuery, "p1", "t1", nil, task.AnyDependencyFailedOrSkipped, false,
		func(context.Context) error { return errors.New("boom") }, nil)
	dependent := task.New(task.KindPitch, "p1", "t1", []*task.Task{failing}, task.AnyDependencyFailedOrSkipped, false, noRun, nil)

	graph, err := task.NewGraph([]*task.Task{failing, dependent})
	require.NoError(t, err)

	runner := NewRunner(graph, nil, &recordingListener{}, false)
	result := runner.RunConcurrent(context.Background(), 0)

	assert.False(t, result.Interrupted)
	assert.Equal(t, task.Failed, failing.RunStatus)
	assert.Equal(t, task.Skipped, dependent.RunStatus)
}

func TestRunnerRequestInterruptionStopsSchedulingAndSweepsSkipped(t *testing.T) {
	t.Parallel()

	ran := false
	first := task.New(task.KindQuery, "p1", "t1", nil, task.AnyDependencyFailedOrSkipped, false, noRun, nil)
	second := task.New(task.KindQuery, "p2", "t1", nil, task.AnyDependencyFailedOrSkipped, false,
		func(context.Context) error { ran = true; return nil }, nil)

	graph, err := task.NewGraph([]*task.Task{first, second})
	require.NoError(t, err)

	r := NewRunner(graph, nil, &recordingListener{}, false)
	r.RequestInterruption()
	result := r.Run(context.Background())

	assert.True(t, result.Interrupted)
	assert.False(t, ran, "no task should have run after interruption was requested before the loop started")
	assert.Equal(t, task.Skipped, first.RunStatus)
	assert.Equal(t, task.Skipped, second.RunStatus)
}
