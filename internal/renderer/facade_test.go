package renderer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirotsuki/phrase-renderer/internal/engine"
	"github.com/shirotsuki/phrase-renderer/internal/events"
	"github.com/shirotsuki/phrase-renderer/internal/pipeline"
	"github.com/shirotsuki/phrase-renderer/internal/score"
)

func testConfig() pipeline.Config {
	return pipeline.Config{
		EngineID:                    "default",
		SingingTeacherStyleID:       6000,
		FirstRestMinDurationSeconds: 0,
		LastRestDurationSeconds:     0.1,
		FadeOutDurationSeconds:      0.15,
		EditorFrameRate:             10,
	}
}

func oneNoteTrack(singer string) score.Snapshot {
	return score.Snapshot{
		Tempo: score.NewConstantTempoMap(480, 120),
		Tracks: []score.Track{{
			ID:     "t1",
			Singer: singer,
			Notes: []score.Note{
				{ID: "n1", Position: 0, Duration: 480, Number: 60, Lyric: "do"},
				{ID: "n2", Position: 480, Duration: 480, Number: 62, Lyric: "re"},
			},
		}},
		EngineFrameRates: map[string]float64{"default": 10},
		EditorFrameRate:  10,
	}
}

func twoPhraseTrack() score.Snapshot {
	snapshot := oneNoteTrack("alice")
	// A position gap after n2 (ends at 960) before n3 starts a new phrase.
	snapshot.Tracks[0].Notes = append(snapshot.Tracks[0].Notes,
		score.Note{ID: "n3", Position: 1920, Duration: 480, Number: 64, Lyric: "mi"},
		score.Note{ID: "n4", Position: 2400, Duration: 480, Number: 65, Lyric: "fa"},
	)
	return snapshot
}

func recordEvents(r *Renderer) *[]any {
	recorded := make([]any, 0)
	r.Subscribe(func(e any) { recorded = append(recorded, e) })
	return &recorded
}

// S1: a track with no singer still has its phrase extracted, but produces no
// tasks, so the render completes with every artifact slot left empty.
func TestRenderNoSingerCompletesWithEmptyPhraseSlots(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)
	recorded := recordEvents(r)

	result, err := r.Render(context.Background(), oneNoteTrack(""))
	require.NoError(t, err)

	assert.True(t, result.Complete)
	require.Len(t, result.Phrases, 1)
	for _, ph := range result.Phrases {
		assert.Nil(t, ph.Query)
		assert.Nil(t, ph.Pitch)
		assert.Nil(t, ph.Volume)
		assert.Nil(t, ph.Voice)
	}
	assert.Empty(t, client.Calls())

	require.Len(t, *recorded, 3)
	assert.IsType(t, events.RenderingStarted{}, (*recorded)[0])
	cacheLoad, ok := (*recorded)[1].(events.CacheLoadFinished)
	require.True(t, ok)
	assert.Empty(t, cacheLoad.PhraseKeys)
	completed, ok := (*recorded)[2].(events.RenderingCompleted)
	require.True(t, ok)
	assert.False(t, completed.Interrupted)
}

// S2: cold cache render exercises every engine operation exactly once per
// phrase and finishes with a populated voice artifact.
func TestRenderColdCacheRunsFullPipeline(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)
	recorded := recordEvents(r)

	result, err := r.Render(context.Background(), oneNoteTrack("alice"))
	require.NoError(t, err)

	require.True(t, result.Complete)
	require.Len(t, result.Phrases, 1)
	for _, ph := range result.Phrases {
		assert.NotEmpty(t, ph.Voice)
		assert.False(t, ph.ErrorOccurredDuringRendering)
	}

	assert.ElementsMatch(t, []string{
		"fetchFrameAudioQuery", "fetchSingFrameF0", "fetchSingFrameVolume", "frameSynthesis",
	}, client.Calls())

	require.NotEmpty(t, *recorded)
	last := (*recorded)[len(*recorded)-1]
	completed, ok := last.(events.RenderingCompleted)
	require.True(t, ok, "the event stream must end with renderingCompleted")
	assert.False(t, completed.Interrupted)

	var sawVoiceFinished bool
	for _, e := range *recorded {
		if vf, ok := e.(events.VoiceSynthesisFinished); ok {
			sawVoiceFinished = true
			assert.True(t, vf.Result.Success)
		}
	}
	assert.True(t, sawVoiceFinished, "voiceSynthesisFinished must have fired")
}

// S3: a second render of the same snapshot against the same renderer hits
// every cache and makes no further engine calls.
func TestRenderWarmCacheMakesNoEngineCalls(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)
	snapshot := oneNoteTrack("alice")

	_, err := r.Render(context.Background(), snapshot)
	require.NoError(t, err)
	callsAfterFirst := len(client.Calls())
	require.Positive(t, callsAfterFirst)

	result, err := r.Render(context.Background(), snapshot)
	require.NoError(t, err)

	require.True(t, result.Complete)
	require.Len(t, result.Phrases, 1)
	for _, ph := range result.Phrases {
		assert.NotEmpty(t, ph.Voice)
	}
	assert.Equal(t, callsAfterFirst, len(client.Calls()), "warm-cache render should not invoke the engine again")
}

// S4: adding a phrase to an already-rendered snapshot reuses the first
// phrase's cached artifacts and only calls the engine for the new one.
func TestRenderPhraseAddedReusesExistingCache(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)

	first, err := r.Render(context.Background(), oneNoteTrack("alice"))
	require.NoError(t, err)
	require.Len(t, first.Phrases, 1)
	var firstKey string
	for k := range first.Phrases {
		firstKey = k
	}
	callsAfterFirst := len(client.Calls())

	second, err := r.Render(context.Background(), twoPhraseTrack())
	require.NoError(t, err)
	require.Len(t, second.Phrases, 2)
	require.Contains(t, second.Phrases, firstKey, "the original phrase's key must be unchanged by the unrelated addition")

	// Exactly one new phrase went through the engine: 4 new calls.
	assert.Equal(t, callsAfterFirst+4, len(client.Calls()))
}

// S5: a query failure for one note id fails that phrase's entire chain and
// marks it errored.
func TestRenderSingleQueryFailureMarksPhraseErrored(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	client.FailQueryForNoteID["n1"] = assert.AnError

	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)
	result, err := r.Render(context.Background(), oneNoteTrack("alice"))
	require.NoError(t, err)

	require.True(t, result.Complete)
	require.Len(t, result.Phrases, 1)
	for _, ph := range result.Phrases {
		assert.True(t, ph.ErrorOccurredDuringRendering)
		assert.Nil(t, ph.Voice)
	}
}

func TestRenderUpdatesStatsSnapshot(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)

	assert.Equal(t, Stats{}, r.Stats(), "no render has happened yet")

	_, err := r.Render(context.Background(), oneNoteTrack("alice"))
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 5, stats.TasksRun, "query, adjust, pitch, volume, voice")
	assert.Equal(t, 0, stats.TasksCached)
	assert.Equal(t, 0, stats.TasksFailed)
	assert.Equal(t, 0, stats.TasksSkipped)

	_, err = r.Render(context.Background(), oneNoteTrack("alice"))
	require.NoError(t, err)

	warmStats := r.Stats()
	assert.Equal(t, 5, warmStats.TasksRun)
	assert.Equal(t, 4, warmStats.TasksCached, "every cacheable task hits the cache the second time")
}

// S6: interruption requested once the first task has started stops the
// runner before any later stage runs, leaving the rest of the chain
// skipped and the phrase flagged errored.
func TestRenderInterruptionStopsRemainingStages(t *testing.T) {
	t.Parallel()

	client := engine.NewFixtureClient()
	r := New(client, testConfig(), pipeline.FIFOSelector{}, nil)

	assert.Error(t, r.RequestInterruption(), "requesting interruption while idle is a usage error")

	r.Subscribe(func(e any) {
		if _, ok := e.(events.TrackQueryGenerationStarted); ok {
			_ = r.RequestInterruption()
		}
	})

	result, err := r.Render(context.Background(), oneNoteTrack("alice"))
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Len(t, client.Calls(), 1, "only the in-flight query call should have reached the engine")
}
