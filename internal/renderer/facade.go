// Package renderer implements the facade described in spec.md §4.7: it owns
// the four content-addressed caches, drives one render at a time, and
// translates DAG-runner task-lifecycle events into the higher-level event
// stream of spec.md §6.
package renderer

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/shirotsuki/phrase-renderer/internal/cache"
	"github.com/shirotsuki/phrase-renderer/internal/engine"
	stderrors "github.com/shirotsuki/phrase-renderer/internal/errors"
	"github.com/shirotsuki/phrase-renderer/internal/events"
	"github.com/shirotsuki/phrase-renderer/internal/logging"
	"github.com/shirotsuki/phrase-renderer/internal/metrics"
	"github.com/shirotsuki/phrase-renderer/internal/phrase"
	"github.com/shirotsuki/phrase-renderer/internal/pipeline"
	"github.com/shirotsuki/phrase-renderer/internal/score"
	"github.com/shirotsuki/phrase-renderer/internal/task"
)

// Result is the outcome of one Render call (spec.md §6 "Result type").
type Result struct {
	Complete    bool
	Interrupted bool
	Phrases     map[string]*phrase.Phrase
}

// Stats is a point-in-time summary of the most recently completed render: a
// host UI can show a progress summary ("12 cached, 3 rendered, 1 failed")
// beyond the raw event stream without subscribing to every event.
type Stats struct {
	TasksRun     int
	TasksCached  int
	TasksFailed  int
	TasksSkipped int
}

// Renderer is the process-wide facade: construct once, pass explicitly
// (spec.md §9 "Global mutable state" — no ambient singleton).
type Renderer struct {
	caches   *cache.Caches
	bus      *events.Bus
	client   engine.Client
	config   pipeline.Config
	selector pipeline.Selector
	metrics  *metrics.PipelineMetrics
	log      *slog.Logger

	mu          sync.Mutex
	isRendering bool
	active      *renderState
	lastStats   Stats
}

// renderState is the bookkeeping valid only for the currently in-flight
// Render call.
type renderState struct {
	sc     *pipeline.StageContext
	runner *pipeline.Runner

	cacheLoadPhaseOpen bool
	cacheLoadedSeen    map[string]struct{}

	trackQueryStarted   map[string]bool
	trackQueryRemaining map[string]int
	trackQueryResults   map[string]map[string]events.StageResult
}

// New constructs a Renderer with its own fresh set of caches.
func New(client engine.Client, config pipeline.Config, selector pipeline.Selector, m *metrics.PipelineMetrics) *Renderer {
	return &Renderer{
		caches:   cache.NewCaches(),
		bus:      events.NewBus(),
		client:   client,
		config:   config,
		selector: selector,
		metrics:  m,
		log:      logging.ForService("renderer"),
	}
}

// Subscribe registers l on the renderer's event bus (spec.md §6: listeners
// invoked synchronously, in registration order).
func (r *Renderer) Subscribe(l events.Listener) {
	r.bus.Subscribe(l)
}

// Caches exposes the renderer's cache bundle, e.g. for a host application
// reporting cache size in a status bar.
func (r *Renderer) Caches() *cache.Caches { return r.caches }

// Stats returns a snapshot of the most recently completed render. The zero
// value is returned before any render has finished.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStats
}

func usageError(message string) error {
	return stderrors.Newf("renderer: %s", message).
		Component("renderer").
		Category(stderrors.CategoryState).
		Build()
}

func programmerError(cause error) error {
	return stderrors.New(cause).
		Component("renderer").
		Category(stderrors.CategoryProgrammer).
		Build()
}

// Render implements spec.md §4.7: fails if a render is already in flight;
// otherwise extracts phrases, builds the task graph, drives the DAG runner
// to completion, and returns {complete, phrases} or {interrupted}.
func (r *Renderer) Render(ctx context.Context, snapshot score.Snapshot) (Result, error) {
	r.mu.Lock()
	if r.isRendering {
		r.mu.Unlock()
		return Result{}, usageError("render called while a render is already in progress")
	}
	r.isRendering = true
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveRendering.Set(1)
		defer r.metrics.ActiveRendering.Set(0)
	}

	defer func() {
		r.mu.Lock()
		r.isRendering = false
		r.active = nil
		r.mu.Unlock()
	}()

	r.bus.Publish(events.RenderingStarted{})

	phrases := phrase.Extract(snapshot, r.config.FirstRestMinDurationSeconds)
	byKey := make(map[string]*phrase.Phrase, len(phrases))
	for k, ph := range phrases {
		byKey[string(k)] = ph
	}

	sc := pipeline.NewStageContext(r.client, r.caches, snapshot, r.config, r.metrics, byKey)
	graph, err := pipeline.Build(sc)
	if err != nil {
		return Result{}, programmerError(err)
	}

	state := &renderState{
		sc:                  sc,
		cacheLoadPhaseOpen:  true,
		cacheLoadedSeen:     make(map[string]struct{}),
		trackQueryStarted:   make(map[string]bool),
		trackQueryRemaining: pipeline.QueryTaskCountByTrack(graph),
		trackQueryResults:   make(map[string]map[string]events.StageResult),
	}
	runner := pipeline.NewRunner(graph, r.selector, r, true)
	state.runner = runner

	r.mu.Lock()
	r.active = state
	r.mu.Unlock()

	r.log.Debug("render starting", "phrases", len(phrases), "tasks", len(graph.Tasks()))
	result := runner.Run(ctx)

	if state.cacheLoadPhaseOpen {
		r.flushCacheLoadFinished(state)
	}
	r.markSkippedPhrasesErrored(graph, byKey)

	r.mu.Lock()
	r.lastStats = statsFromGraph(graph)
	r.mu.Unlock()

	r.bus.Publish(events.RenderingCompleted{Interrupted: result.Interrupted})
	if r.metrics != nil {
		outcome := "complete"
		if result.Interrupted {
			outcome = "interrupted"
		}
		r.metrics.RecordRenderFinished(outcome)
	}

	if result.Interrupted {
		return Result{Interrupted: true}, nil
	}
	return Result{Complete: true, Phrases: byKey}, nil
}

// RequestInterruption flips the active render's interruption flag. It is a
// usage error to call this while no render is in flight (spec.md §7).
func (r *Renderer) RequestInterruption() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isRendering || r.active == nil {
		return usageError("requestInterruption called while idle")
	}
	r.active.runner.RequestInterruption()
	return nil
}

func (r *Renderer) activeState() *renderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// TaskStarted implements pipeline.Listener.
func (r *Renderer) TaskStarted(t *task.Task, isCachedTask bool) {
	state := r.activeState()
	if state == nil {
		return
	}

	if state.cacheLoadPhaseOpen {
		if !isCachedTask {
			r.flushCacheLoadFinished(state)
		} else if t.PhraseKey != "" {
			state.cacheLoadedSeen[t.PhraseKey] = struct{}{}
		}
	}

	switch t.Kind {
	case task.KindQuery:
		if !state.trackQueryStarted[t.TrackID] {
			state.trackQueryStarted[t.TrackID] = true
			r.bus.Publish(events.TrackQueryGenerationStarted{TrackID: t.TrackID})
		}
	case task.KindPitch:
		r.bus.Publish(events.PitchGenerationStarted{PhraseKey: t.PhraseKey})
	case task.KindVolume:
		r.bus.Publish(events.VolumeGenerationStarted{PhraseKey: t.PhraseKey})
	case task.KindVoice:
		r.bus.Publish(events.VoiceSynthesisStarted{PhraseKey: t.PhraseKey})
	}
}

// TaskFinished implements pipeline.Listener.
func (r *Renderer) TaskFinished(t *task.Task, isCachedTask bool, err error) {
	state := r.activeState()
	if state == nil {
		return
	}

	if r.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		r.metrics.RecordTaskFinished(string(t.Kind), outcome)
	}

	result := r.stageResultFor(state, t, err)

	switch t.Kind {
	case task.KindQuery:
		if state.trackQueryResults[t.TrackID] == nil {
			state.trackQueryResults[t.TrackID] = make(map[string]events.StageResult)
		}
		state.trackQueryResults[t.TrackID][t.PhraseKey] = result
		state.trackQueryRemaining[t.TrackID]--
		if state.trackQueryRemaining[t.TrackID] <= 0 {
			r.bus.Publish(events.TrackQueryGenerationFinished{
				TrackID:         t.TrackID,
				ResultsByPhrase: state.trackQueryResults[t.TrackID],
			})
		}
	case task.KindPitch:
		r.bus.Publish(events.PitchGenerationFinished{PhraseKey: t.PhraseKey, Result: result})
	case task.KindVolume:
		r.bus.Publish(events.VolumeGenerationFinished{PhraseKey: t.PhraseKey, Result: result})
	case task.KindVoice:
		r.bus.Publish(events.VoiceSynthesisFinished{PhraseKey: t.PhraseKey, Result: result})
	}
}

// stageResultFor reads the freshly written artifact slot for t's kind off
// its phrase. Safe without sc's internal lock: Listener callbacks run
// synchronously from within Runner.Run, on the same goroutine that writes
// phrase slots under pipeline.Runner's single-task-at-a-time loop.
func (r *Renderer) stageResultFor(state *renderState, t *task.Task, err error) events.StageResult {
	if err != nil {
		return events.StageResult{Success: false, Cause: err}
	}
	ph, ok := state.sc.Phrases[t.PhraseKey]
	if !ok {
		return events.StageResult{Success: true}
	}
	switch t.Kind {
	case task.KindQuery:
		return events.StageResult{Success: true, Key: string(ph.QueryKey), Artifact: ph.Query}
	case task.KindPitch:
		return events.StageResult{Success: true, Key: string(ph.PitchKey), Artifact: ph.Pitch}
	case task.KindVolume:
		return events.StageResult{Success: true, Key: string(ph.VolumeKey), Artifact: ph.Volume}
	case task.KindVoice:
		return events.StageResult{Success: true, Key: string(ph.VoiceKey), Artifact: ph.Voice}
	default:
		return events.StageResult{Success: true}
	}
}

// statsFromGraph tallies a finished graph's task outcomes into a Stats
// snapshot.
func statsFromGraph(graph *task.Graph) Stats {
	var s Stats
	for _, t := range graph.Tasks() {
		switch t.RunStatus {
		case task.Success:
			s.TasksRun++
			if t.CacheStatus == task.Cached {
				s.TasksCached++
			}
		case task.Failed:
			s.TasksFailed++
		case task.Skipped:
			s.TasksSkipped++
		}
	}
	return s
}

func (r *Renderer) flushCacheLoadFinished(state *renderState) {
	state.cacheLoadPhaseOpen = false
	phraseKeys := make([]string, 0, len(state.cacheLoadedSeen))
	for k := range state.cacheLoadedSeen {
		phraseKeys = append(phraseKeys, k)
	}
	sort.Strings(phraseKeys)
	r.bus.Publish(events.CacheLoadFinished{PhraseKeys: phraseKeys})
}

// markSkippedPhrasesErrored flags every phrase with at least one Failed or
// Skipped task as errored (spec.md §3 "Lifecycle"). Skipped tasks never run,
// so this can't happen from inside TaskFinished and needs its own pass once
// the runner has settled every task.
func (r *Renderer) markSkippedPhrasesErrored(graph *task.Graph, phrases map[string]*phrase.Phrase) {
	for _, t := range graph.Tasks() {
		if t.PhraseKey == "" {
			continue
		}
		if t.RunStatus == task.Failed || t.RunStatus == task.Skipped {
			if ph, ok := phrases[t.PhraseKey]; ok {
				ph.ErrorOccurredDuringRendering = true
			}
		}
	}
}
