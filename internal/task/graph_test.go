package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestNewGraphRejectsDanglingDependency(t *testing.T) {
	t.Parallel()

	outside := New(KindQuery, "p1", "t1", nil, AnyDependencyFailedOrSkipped, true, noop, nil)
	dependent := New(KindPitch, "p1", "t1", []*Task{outside}, AnyDependencyFailedOrSkipped, true, noop, nil)

	_, err := NewGraph([]*Task{dependent})
	require.Error(t, err)
}

func TestNewGraphRejectsCycle(t *testing.T) {
	t.Parallel()

	a := New(KindQuery, "p1", "t1", nil, AnyDependencyFailedOrSkipped, true, noop, nil)
	b := New(KindPitch, "p1", "t1", []*Task{a}, AnyDependencyFailedOrSkipped, true, noop, nil)
	a.Dependencies = []*Task{b} // manufacture a cycle after construction

	_, err := NewGraph([]*Task{a, b})
	require.Error(t, err)
}

func TestNewGraphRootTasksAndChildren(t *testing.T) {
	t.Parallel()

	query := New(KindQuery, "p1", "t1", nil, AnyDependencyFailedOrSkipped, true, noop, nil)
	adjust := New(KindPhonemeTimingAdjust, "", "t1", []*Task{query}, AllDependenciesFailedOrSkipped, false, noop, nil)
	pitch := New(KindPitch, "p1", "t1", []*Task{query, adjust}, AnyDependencyFailedOrSkipped, true, noop, nil)

	g, err := NewGraph([]*Task{query, adjust, pitch})
	require.NoError(t, err)

	roots := g.RootTasks()
	require.Len(t, roots, 1)
	assert.Equal(t, query.ID, roots[0].ID)

	children := g.Children(query)
	assert.Len(t, children, 2)
}

func TestParentSettlementHelpers(t *testing.T) {
	t.Parallel()

	a := New(KindQuery, "p1", "t1", nil, AnyDependencyFailedOrSkipped, true, noop, nil)
	b := New(KindQuery, "p2", "t1", nil, AnyDependencyFailedOrSkipped, true, noop, nil)
	adjust := New(KindPhonemeTimingAdjust, "", "t1", []*Task{a, b}, AllDependenciesFailedOrSkipped, false, noop, nil)

	assert.False(t, adjust.ParentsSettled())

	a.RunStatus = Success
	assert.False(t, adjust.ParentsSettled())
	assert.False(t, adjust.AllParentsFailedOrSkipped())

	b.RunStatus = Failed
	assert.True(t, adjust.ParentsSettled())
	assert.False(t, adjust.AllParentsFailedOrSkipped(), "one parent succeeded, so not ALL failed/skipped")

	a.RunStatus = Failed
	assert.True(t, adjust.AllParentsFailedOrSkipped())
	assert.True(t, adjust.AnyParentFailedOrSkipped())
}
