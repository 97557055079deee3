// Package task defines the DAG node type the pipeline builder instantiates
// and the runner schedules (spec.md §4.3). Tasks are a tagged variant of
// five concrete kinds rather than an interface hierarchy — spec.md §9
// notes the task "interface" is better modeled this way, and stage logic
// becomes a switch over Kind rather than dynamic dispatch.
package task

import (
	"context"

	"github.com/google/uuid"
)

// Kind identifies which of the five stage kinds a task runs.
type Kind string

const (
	KindQuery               Kind = "query"
	KindPhonemeTimingAdjust Kind = "phoneme-timing-adjust"
	KindPitch               Kind = "pitch"
	KindVolume              Kind = "volume"
	KindVoice               Kind = "voice"
)

// SkipPolicy governs how a task reacts to a failed or skipped dependency
// when the runner propagates failure (spec.md §4.6).
type SkipPolicy int

const (
	// AnyDependencyFailedOrSkipped skips the task if any single dependency
	// failed or was skipped — used by every per-phrase stage so one broken
	// upstream short-circuits the rest of that phrase's chain.
	AnyDependencyFailedOrSkipped SkipPolicy = iota
	// AllDependenciesFailedOrSkipped skips the task only once every
	// dependency has failed or been skipped — used by PhonemeTimingAdjust
	// so it still runs on any subset of successful queries.
	AllDependenciesFailedOrSkipped
)

// RunStatus is a task's position in its lifecycle.
type RunStatus int

const (
	AwaitingDependencies RunStatus = iota
	Runnable
	Running
	Success
	Failed
	Skipped
)

func (s RunStatus) String() string {
	switch s {
	case AwaitingDependencies:
		return "AwaitingDependencies"
	case Runnable:
		return "Runnable"
	case Running:
		return "Running"
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// Settled reports whether s is one of Success, Failed, or Skipped — the
// three terminal states the runner waits on when checking whether a
// task's parents have all settled (spec.md §4.6).
func (s RunStatus) Settled() bool {
	return s == Success || s == Failed || s == Skipped
}

// FailedOrSkipped reports whether s counts toward a dependent's skip
// policy check.
func (s RunStatus) FailedOrSkipped() bool {
	return s == Failed || s == Skipped
}

// CacheStatus is a cacheable task's cache-probe outcome.
type CacheStatus int

const (
	Unchecked CacheStatus = iota
	Cached
	NotCached
)

// RunFunc executes a task's stage logic. A non-nil error marks the task
// Failed; the runner never retries.
type RunFunc func(ctx context.Context) error

// IsCachedFunc probes whether a cacheable task's result is already
// present, without running the stage.
type IsCachedFunc func(ctx context.Context) bool

// Task is one DAG node: an immutable kind, dependency list, and skip
// policy, plus the mutable scheduling state the runner advances.
type Task struct {
	ID           string
	Kind         Kind
	PhraseKey    string // set for query/pitch/volume/voice tasks
	TrackID      string // set for phoneme-timing-adjust tasks (and carried by all, for event grouping)
	Dependencies []*Task
	SkipPolicy   SkipPolicy
	Cacheable    bool

	Run      RunFunc
	IsCached IsCachedFunc

	RunStatus   RunStatus
	CacheStatus CacheStatus
}

// New constructs a Task with a fresh id: the task's kind plus an 8-character
// truncated uuid, short enough to read in logs while staying unique within a
// single render.
func New(kind Kind, phraseKey, trackID string, deps []*Task, policy SkipPolicy, cacheable bool, run RunFunc, isCached IsCachedFunc) *Task {
	return &Task{
		ID:           string(kind) + "-" + uuid.NewString()[:8],
		Kind:         kind,
		PhraseKey:    phraseKey,
		TrackID:      trackID,
		Dependencies: deps,
		SkipPolicy:   policy,
		Cacheable:    cacheable,
		Run:          run,
		IsCached:     isCached,
		RunStatus:    AwaitingDependencies,
		CacheStatus:  Unchecked,
	}
}

// ParentsSettled reports whether every dependency has reached a terminal
// RunStatus.
func (t *Task) ParentsSettled() bool {
	for _, p := range t.Dependencies {
		if !p.RunStatus.Settled() {
			return false
		}
	}
	return true
}

// AnyParentFailedOrSkipped reports whether at least one dependency is
// Failed or Skipped.
func (t *Task) AnyParentFailedOrSkipped() bool {
	for _, p := range t.Dependencies {
		if p.RunStatus.FailedOrSkipped() {
			return true
		}
	}
	return false
}

// AllParentsFailedOrSkipped reports whether every dependency is Failed or
// Skipped. A task with no dependencies vacuously satisfies this, but no
// task in this pipeline is constructed that way under
// AllDependenciesFailedOrSkipped (PhonemeTimingAdjust always depends on at
// least one QueryGen task).
func (t *Task) AllParentsFailedOrSkipped() bool {
	for _, p := range t.Dependencies {
		if !p.RunStatus.FailedOrSkipped() {
			return false
		}
	}
	return true
}
