// Package score defines the read-only score snapshot the renderer consumes
// for one render call, plus tick/second conversion against its tempo map.
// The tick→time relation is grounded in the same bpm/ticks-per-sample
// algebra as cbegin/mmlfm-go's sequencer (Sequencer.ticksPerSamp), adapted
// from that package's whole-note resolution convention to the explicit
// ticks-per-quarter-note field this score model carries.
package score

import "sort"

// Note is one scored note: a MIDI note number sounding from Position for
// Duration ticks, carrying the lyric syllable sung for it.
type Note struct {
	ID       string
	Position int64 // ticks
	Duration int64 // ticks
	Number   int   // MIDI note number
	Lyric    string
}

// End returns the tick immediately after the note ends.
func (n Note) End() int64 { return n.Position + n.Duration }

// TempoChange marks a tempo change taking effect at Tick.
type TempoChange struct {
	Tick int64
	BPM  float64
}

// TempoMap converts between ticks and seconds over a sequence of tempo
// changes. It must contain at least one entry at tick 0.
type TempoMap struct {
	TicksPerQuarterNote int64
	Changes             []TempoChange
}

// NewConstantTempoMap builds a TempoMap with a single, unchanging tempo.
func NewConstantTempoMap(tpqn int64, bpm float64) TempoMap {
	return TempoMap{
		TicksPerQuarterNote: tpqn,
		Changes:             []TempoChange{{Tick: 0, BPM: bpm}},
	}
}

func (tm TempoMap) sorted() []TempoChange {
	changes := make([]TempoChange, len(tm.Changes))
	copy(changes, tm.Changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Tick < changes[j].Tick })
	return changes
}

// TicksToSeconds converts an absolute tick position to seconds from the
// start of the score, integrating across every tempo change before it.
// secondsPerTick at a constant bpm is 60/(bpm*tpqn) — the same relation
// mmlfm-go's sequencer expresses as ticksPerSamp = bpm*resolution/(240*sampleRate),
// solved for seconds instead of samples.
func (tm TempoMap) TicksToSeconds(ticks int64) float64 {
	if tm.TicksPerQuarterNote <= 0 {
		return 0
	}
	changes := tm.sorted()
	if len(changes) == 0 {
		return 0
	}

	var seconds float64
	prevTick := changes[0].Tick
	prevBPM := changes[0].BPM
	for _, c := range changes[1:] {
		if c.Tick >= ticks {
			break
		}
		seconds += secondsForTickSpan(c.Tick-prevTick, prevBPM, tm.TicksPerQuarterNote)
		prevTick = c.Tick
		prevBPM = c.BPM
	}
	seconds += secondsForTickSpan(ticks-prevTick, prevBPM, tm.TicksPerQuarterNote)
	return seconds
}

// BPMAtTick returns the tempo in effect at the given tick.
func (tm TempoMap) BPMAtTick(tick int64) float64 {
	changes := tm.sorted()
	if len(changes) == 0 {
		return 0
	}
	bpm := changes[0].BPM
	for _, c := range changes {
		if c.Tick > tick {
			break
		}
		bpm = c.BPM
	}
	return bpm
}

// TicksForSeconds converts a duration in seconds to a tick span, using the
// tempo in effect at atTick. Used by the phrase extractor to floor a
// leading rest (given in seconds) back into ticks (spec.md §4.1 step 3).
func (tm TempoMap) TicksForSeconds(atTick int64, seconds float64) int64 {
	bpm := tm.BPMAtTick(atTick)
	if bpm <= 0 || tm.TicksPerQuarterNote <= 0 {
		return 0
	}
	return int64(seconds * bpm * float64(tm.TicksPerQuarterNote) / 60.0)
}

func secondsForTickSpan(tickSpan int64, bpm float64, tpqn int64) float64 {
	if tickSpan <= 0 || bpm <= 0 {
		return 0
	}
	return float64(tickSpan) * 60.0 / (bpm * float64(tpqn))
}

// PhonemeTimingEditKey identifies one phoneme-timing edit: the note it
// belongs to and the phoneme's index within that note's phonemes.
type PhonemeTimingEditKey struct {
	NoteID       string
	PhonemeIndex int
}

// Track is one singer's part of the score, plus the per-track adjustments
// and user edits the render pipeline consumes.
type Track struct {
	ID     string
	Singer string // empty means "no singer"; produces no tasks (spec §4.4)
	Notes  []Note

	// KeyRangeAdjustment is the track's transposition in semitones, applied
	// before each engine call and undone after (spec §4.5, GLOSSARY).
	KeyRangeAdjustment float64
	// VolumeRangeAdjustment is the track's gain in decibels, applied
	// multiplicatively after volume generation.
	VolumeRangeAdjustment float64

	// PitchEdits is a dense, frame-indexed f0 override sampled at the
	// editor frame rate.
	PitchEdits []float64

	// PhonemeTimingEdits is a per-note, per-phoneme-index offset in seconds.
	PhonemeTimingEdits map[PhonemeTimingEditKey]float64

	// OverlappingNoteIDs lists notes the snapshot has identified as
	// overlapping; the extractor drops them before phrasing (spec §4.1).
	OverlappingNoteIDs map[string]struct{}
}

// HasSinger reports whether this track has a singer assigned.
func (t Track) HasSinger() bool { return t.Singer != "" }

// IsOverlapping reports whether noteID was flagged as overlapping.
func (t Track) IsOverlapping(noteID string) bool {
	if t.OverlappingNoteIDs == nil {
		return false
	}
	_, ok := t.OverlappingNoteIDs[noteID]
	return ok
}

// Snapshot is the read-only input to one render call (spec §3).
type Snapshot struct {
	Tempo  TempoMap
	Tracks []Track

	// EngineFrameRates maps engine id to its frame rate in frames/second.
	EngineFrameRates map[string]float64
	// EditorFrameRate is the frame rate pitch edits are sampled at.
	EditorFrameRate float64
}

// EngineFrameRate looks up the frame rate for engineID, falling back to the
// "default" entry if present.
func (s Snapshot) EngineFrameRate(engineID string) (float64, bool) {
	if rate, ok := s.EngineFrameRates[engineID]; ok {
		return rate, true
	}
	rate, ok := s.EngineFrameRates["default"]
	return rate, ok
}
