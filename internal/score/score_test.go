package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicksToSecondsConstantTempo(t *testing.T) {
	t.Parallel()

	tm := NewConstantTempoMap(480, 120)
	// one quarter note at 120bpm = 0.5s = 480 ticks
	assert.InDelta(t, 0.5, tm.TicksToSeconds(480), 1e-9)
	assert.InDelta(t, 1.0, tm.TicksToSeconds(960), 1e-9)
	assert.InDelta(t, 0.0, tm.TicksToSeconds(0), 1e-9)
}

func TestTicksToSecondsAcrossTempoChange(t *testing.T) {
	t.Parallel()

	tm := TempoMap{
		TicksPerQuarterNote: 480,
		Changes: []TempoChange{
			{Tick: 0, BPM: 120},
			{Tick: 960, BPM: 60},
		},
	}

	// first 960 ticks at 120bpm = 1.0s; next 480 ticks at 60bpm = 0.5s
	assert.InDelta(t, 1.5, tm.TicksToSeconds(1440), 1e-9)
}

func TestTrackHasSingerAndOverlap(t *testing.T) {
	t.Parallel()

	tr := Track{
		Singer:             "alto-1",
		OverlappingNoteIDs: map[string]struct{}{"n2": {}},
	}
	assert.True(t, tr.HasSinger())
	assert.True(t, tr.IsOverlapping("n2"))
	assert.False(t, tr.IsOverlapping("n1"))

	noSinger := Track{}
	assert.False(t, noSinger.HasSinger())
	assert.False(t, noSinger.IsOverlapping("n1"))
}

func TestSnapshotEngineFrameRateFallback(t *testing.T) {
	t.Parallel()

	s := Snapshot{EngineFrameRates: map[string]float64{"default": 93.75, "fast-engine": 200}}
	rate, ok := s.EngineFrameRate("fast-engine")
	assert.True(t, ok)
	assert.InDelta(t, 200, rate, 1e-9)

	rate, ok = s.EngineFrameRate("unknown-engine")
	assert.True(t, ok)
	assert.InDelta(t, 93.75, rate, 1e-9)
}
