package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirotsuki/phrase-renderer/internal/engine"
	"github.com/shirotsuki/phrase-renderer/internal/phrase"
)

func onePhrase(t *testing.T) (*StageContext, *phrase.Phrase) {
	t.Helper()
	sc, phrases := newTestStageContext(t)
	require.Len(t, phrases, 1)
	var ph *phrase.Phrase
	for _, p := range phrases {
		ph = p
	}
	return sc, ph
}

func TestShiftF0(t *testing.T) {
	t.Parallel()

	f0 := []float64{100, 200, 0}
	up := shiftF0(f0, 12, true)
	assert.InDelta(t, 200, up[0], 1e-9)
	assert.InDelta(t, 400, up[1], 1e-9)
	assert.InDelta(t, 0, up[2], 1e-9)

	down := shiftF0(f0, 12, false)
	assert.InDelta(t, 50, down[0], 1e-9)
	assert.InDelta(t, 100, down[1], 1e-9)
}

func TestRunQueryGenPopulatesPhraseAndCache(t *testing.T) {
	t.Parallel()

	sc, ph := onePhrase(t)

	require.NoError(t, RunQueryGen(context.Background(), sc, ph))
	require.NotNil(t, ph.Query)
	assert.NotEmpty(t, ph.Query.Phonemes)
	assert.Equal(t, "pau", ph.Query.Phonemes[len(ph.Query.Phonemes)-1].Phoneme)
	assert.True(t, sc.Caches.Query.Has(ph.QueryKey))

	// Re-running against the same context must hit the cache and not invoke
	// the engine again.
	fc := sc.Engine.(*engine.FixtureClient)
	callsBefore := len(fc.Calls())
	require.NoError(t, RunQueryGen(context.Background(), sc, ph))
	assert.Equal(t, callsBefore, len(fc.Calls()), "cache hit should not invoke the engine again")
}

func TestFullStageChainProducesVoice(t *testing.T) {
	t.Parallel()

	sc, ph := onePhrase(t)
	ctx := context.Background()

	require.NoError(t, RunQueryGen(ctx, sc, ph))

	track, ok := sc.trackByID(ph.TrackID)
	require.True(t, ok)
	require.NoError(t, RunPhonemeTimingAdjust(ctx, sc, track, []*phrase.Phrase{ph}))
	require.NotNil(t, ph.PhonemeTimingAdjustedQuery)

	require.NoError(t, RunPitchGen(ctx, sc, ph))
	assert.Len(t, ph.Pitch, ph.PhonemeTimingAdjustedQuery.FrameCount())

	require.NoError(t, RunVolumeGen(ctx, sc, ph))
	assert.Len(t, ph.Volume, ph.PhonemeTimingAdjustedQuery.FrameCount())

	require.NoError(t, RunVoiceSynth(ctx, sc, ph))
	assert.NotEmpty(t, ph.Voice)
}

func TestMuteLastPauSectionRampsMultiFrame(t *testing.T) {
	t.Parallel()

	q := engine.Query{
		FrameRate: 10,
		Phonemes: []engine.FramePhoneme{
			{Phoneme: "a", FrameLength: 3},
			{Phoneme: "pau", FrameLength: 5},
		},
	}
	volume := []float64{1, 1, 1, 1, 1, 1, 1, 1}

	require.NoError(t, muteLastPauSection(volume, q, 0.3))

	// fadeOutDurationSeconds=0.3 * frameRate=10 -> f=3, s=3, l=5
	assert.InDelta(t, 1.0, volume[2], 1e-9, "frame before pau untouched")
	assert.InDelta(t, 1.0, volume[3], 1e-9, "ramp start at full volume")
	assert.InDelta(t, 0.5, volume[4], 1e-9)
	assert.InDelta(t, 0.0, volume[5], 1e-9, "ramp end at zero")
	assert.InDelta(t, 0.0, volume[6], 1e-9, "beyond ramp is silent")
	assert.InDelta(t, 0.0, volume[7], 1e-9)
}

func TestMuteLastPauSectionHalvesOnSingleFrameFade(t *testing.T) {
	t.Parallel()

	q := engine.Query{
		FrameRate: 10,
		Phonemes: []engine.FramePhoneme{
			{Phoneme: "a", FrameLength: 2},
			{Phoneme: "pau", FrameLength: 3},
		},
	}
	volume := []float64{1, 1, 1, 1, 1}

	require.NoError(t, muteLastPauSection(volume, q, 0.1))

	// f=1, s=2, l=3
	assert.InDelta(t, 0.5, volume[2], 1e-9)
	assert.InDelta(t, 0.0, volume[3], 1e-9)
	assert.InDelta(t, 0.0, volume[4], 1e-9)
}

func TestMuteLastPauSectionRejectsWrongLength(t *testing.T) {
	t.Parallel()

	q := engine.Query{
		FrameRate: 10,
		Phonemes: []engine.FramePhoneme{
			{Phoneme: "pau", FrameLength: 3},
		},
	}
	assert.Error(t, muteLastPauSection([]float64{1, 1}, q, 0.1))
}

func TestMuteLastPauSectionRejectsNonPauFinalPhoneme(t *testing.T) {
	t.Parallel()

	q := engine.Query{
		FrameRate: 10,
		Phonemes: []engine.FramePhoneme{
			{Phoneme: "k60", FrameLength: 3},
		},
	}
	assert.Error(t, muteLastPauSection([]float64{1, 1, 1}, q, 0.1))
}

func TestResizeArray(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{1, 2}, resizeArray([]float64{1, 2, 3}, 2))
	assert.Equal(t, []float64{1, 2, 3, 3}, resizeArray([]float64{1, 2, 3}, 4))
	assert.Equal(t, []float64{0, 0}, resizeArray(nil, 2))
}

func TestClipAgainstNextShrinksTrailingPau(t *testing.T) {
	t.Parallel()

	q := engine.Query{
		FrameRate: 10,
		Phonemes: []engine.FramePhoneme{
			{Phoneme: "a", FrameLength: 5},
			{Phoneme: "pau", FrameLength: 10},
		},
		F0:     make([]float64, 15),
		Volume: make([]float64, 15),
	}
	// phrase starts at t=0, total duration = 1.5s; next phrase starts at t=1.0s.
	clipAgainstNext(&q, 0, 1.0)

	end := float64(q.FrameCount()) / q.FrameRate
	assert.LessOrEqual(t, end, 1.0+1e-9)
	assert.GreaterOrEqual(t, q.Phonemes[len(q.Phonemes)-1].FrameLength, 1)
	assert.Len(t, q.F0, q.FrameCount())
	assert.Len(t, q.Volume, q.FrameCount())
}

func TestClipAgainstNextLeavesRoomWhenNoOvershoot(t *testing.T) {
	t.Parallel()

	q := engine.Query{
		FrameRate: 10,
		Phonemes: []engine.FramePhoneme{
			{Phoneme: "a", FrameLength: 5},
			{Phoneme: "pau", FrameLength: 5},
		},
	}
	clipAgainstNext(&q, 0, 5.0)
	assert.Equal(t, 5, q.Phonemes[len(q.Phonemes)-1].FrameLength)
}
