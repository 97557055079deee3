package engine

import (
	"github.com/shirotsuki/phrase-renderer/internal/score"
)

// NoteForEngine is one slot of the sequence sent to the synthesis engine:
// either a keyed (sounding) note or a silent rest (HasKey false).
type NoteForEngine struct {
	HasKey      bool
	Key         int // MIDI note number, meaningful only if HasKey
	FrameLength int
	NoteID      string
	Lyric       string
}

// NoteDurationsSeconds converts each note's tick span to seconds via tm,
// the tempo-accurate input BuildNotesForEngine needs per note.
func NoteDurationsSeconds(notes []score.Note, tm score.TempoMap) []float64 {
	out := make([]float64, len(notes))
	for i, n := range notes {
		out[i] = tm.TicksToSeconds(n.End()) - tm.TicksToSeconds(n.Position)
	}
	return out
}

// BuildNotesForEngine implements the shared notes-for-engine preamble of
// spec.md §4.5: prepend a silent note sized from the leading rest, convert
// each score note to a keyed slot sized from its tempo-accurate duration in
// seconds (from NoteDurationsSeconds) at frameRate, append a silent
// trailing note sized from lastRestDurationSeconds, then enforce every
// frame length ≥ 1 by stealing frames from the next note.
func BuildNotesForEngine(
	notes []score.Note,
	noteDurationsSeconds []float64,
	leadingRestSeconds float64,
	lastRestDurationSeconds float64,
	frameRate float64,
) []NoteForEngine {
	out := make([]NoteForEngine, 0, len(notes)+2)

	out = append(out, NoteForEngine{
		HasKey:      false,
		FrameLength: secondsToFrames(leadingRestSeconds, frameRate),
	})

	for i, n := range notes {
		out = append(out, NoteForEngine{
			HasKey:      true,
			Key:         n.Number,
			FrameLength: secondsToFrames(noteDurationsSeconds[i], frameRate),
			NoteID:      n.ID,
			Lyric:       n.Lyric,
		})
	}

	out = append(out, NoteForEngine{
		HasKey:      false,
		FrameLength: secondsToFrames(lastRestDurationSeconds, frameRate),
	})

	enforceMinimumFrameLength(out)
	return out
}

func secondsToFrames(seconds, frameRate float64) int {
	frames := int(seconds*frameRate + 0.5)
	if frames < 0 {
		frames = 0
	}
	return frames
}

// enforceMinimumFrameLength walks left-to-right, stealing at most
// (1 - frameLength) frames from the next note so every frame length is at
// least 1 (spec.md §4.5).
func enforceMinimumFrameLength(notes []NoteForEngine) {
	for i := range notes {
		if notes[i].FrameLength >= 1 {
			continue
		}
		deficit := 1 - notes[i].FrameLength
		notes[i].FrameLength = 1
		if i+1 < len(notes) {
			notes[i+1].FrameLength -= deficit
		}
	}
}

// ShiftKeysDown returns a copy of notes with every keyed note's key shifted
// down by keyRangeAdjustment semitones (spec.md §4.5's pre-engine-call
// transposition, undone afterward on the returned f0/pitch arrays).
func ShiftKeysDown(notes []NoteForEngine, keyRangeAdjustment float64) []NoteForEngine {
	shifted := make([]NoteForEngine, len(notes))
	copy(shifted, notes)
	shift := int(keyRangeAdjustment)
	for i := range shifted {
		if shifted[i].HasKey {
			shifted[i].Key -= shift
		}
	}
	return shifted
}
