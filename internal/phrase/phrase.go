// Package phrase extracts phrases from a score snapshot (spec.md §4.1) and
// defines the Phrase value every pipeline stage reads and writes into.
package phrase

import (
	"github.com/shirotsuki/phrase-renderer/internal/engine"
	"github.com/shirotsuki/phrase-renderer/internal/keys"
	"github.com/shirotsuki/phrase-renderer/internal/score"
)

// Phrase is an immutable bundle computed from a contiguous run of
// non-overlapping notes belonging to one track (spec.md §3), plus the
// slots the pipeline fills in monotonically as its four stages succeed.
type Phrase struct {
	Key keys.Key

	TrackID           string
	Singer            string // empty means "no singer"
	FirstRestDuration int64  // ticks
	Notes             []score.Note
	StartTick         int64
	EndTick           int64
	StartTimeSeconds  float64

	// Slots, each written at most once as the pipeline progresses.
	QueryKey                   keys.Key
	Query                      *engine.Query
	PhonemeTimingAdjustedQuery *engine.Query
	PitchKey                   keys.Key
	Pitch                      []float64
	VolumeKey                  keys.Key
	Volume                     []float64
	VoiceKey                   keys.Key
	Voice                      engine.VoiceBlob

	ErrorOccurredDuringRendering bool
}

// HasSinger reports whether this phrase produces pipeline tasks at all
// (spec.md §4.4: a phrase without a singer produces no tasks).
func (p *Phrase) HasSinger() bool { return p.Singer != "" }

// phraseKeyBundle is the canonical input to the phrase key hash: exactly
// the four fields spec.md invariant 1 names.
type phraseKeyBundle struct {
	FirstRestDuration int64
	Notes             []score.Note
	StartTimeSeconds  float64
	TrackID           string
}

// ComputeKey hashes (leading-rest, notes, start-time, track-id), the
// tuple spec.md §4.1 step 5 and invariant 1 both name.
func ComputeKey(firstRestDuration int64, notes []score.Note, startTimeSeconds float64, trackID string) keys.Key {
	return keys.MustOf(phraseKeyBundle{
		FirstRestDuration: firstRestDuration,
		Notes:             notes,
		StartTimeSeconds:  startTimeSeconds,
		TrackID:           trackID,
	})
}
