package phrase

import (
	"sort"

	"github.com/shirotsuki/phrase-renderer/internal/keys"
	"github.com/shirotsuki/phrase-renderer/internal/score"
)

// Extract implements spec.md §4.1: for each track, drop overlapping notes,
// cut a new phrase at every tick gap, compute each phrase's leading rest
// and start time, and hash its key. Returns a mapping from phrase key to
// phrase (spec.md §3).
func Extract(snapshot score.Snapshot, firstRestMinDurationSeconds float64) map[keys.Key]*Phrase {
	result := make(map[keys.Key]*Phrase)
	for _, track := range snapshot.Tracks {
		for _, p := range extractTrack(track, snapshot.Tempo, firstRestMinDurationSeconds) {
			result[p.Key] = p
		}
	}
	return result
}

func extractTrack(track score.Track, tempo score.TempoMap, firstRestMinDurationSeconds float64) []*Phrase {
	notes := nonOverlappingNotesInOrder(track)
	if len(notes) == 0 {
		return nil
	}

	var phrases []*Phrase
	var run []score.Note
	var prevPhraseLastNoteEnd int64
	havePrevPhrase := false

	flush := func() {
		if len(run) == 0 {
			return
		}
		phrases = append(phrases, buildPhrase(track, tempo, run, prevPhraseLastNoteEnd, havePrevPhrase, firstRestMinDurationSeconds))
		prevPhraseLastNoteEnd = run[len(run)-1].End()
		havePrevPhrase = true
		run = nil
	}

	for i, n := range notes {
		if i > 0 {
			prev := notes[i-1]
			if n.Position != prev.Position+prev.Duration {
				flush()
			}
		}
		run = append(run, n)
	}
	flush()

	return phrases
}

func nonOverlappingNotesInOrder(track score.Track) []score.Note {
	notes := make([]score.Note, 0, len(track.Notes))
	for _, n := range track.Notes {
		if track.IsOverlapping(n.ID) {
			continue
		}
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Position < notes[j].Position })
	return notes
}

func buildPhrase(
	track score.Track,
	tempo score.TempoMap,
	notes []score.Note,
	prevPhraseLastNoteEnd int64,
	havePrevPhrase bool,
	firstRestMinDurationSeconds float64,
) *Phrase {
	firstNote := notes[0]
	lastNote := notes[len(notes)-1]

	quarterNoteTicks := tempo.TicksPerQuarterNote

	var gap int64
	if havePrevPhrase {
		gap = firstNote.Position - prevPhraseLastNoteEnd
	} else {
		gap = firstNote.Position
	}
	leadingRest := gap
	if leadingRest > quarterNoteTicks {
		leadingRest = quarterNoteTicks
	}
	if leadingRest < 0 {
		leadingRest = 0
	}

	minRestTicks := tempo.TicksForSeconds(firstNote.Position, firstRestMinDurationSeconds)
	if leadingRest < minRestTicks {
		leadingRest = minRestTicks
	}
	if leadingRest < 1 {
		leadingRest = 1
	}

	startTick := firstNote.Position - leadingRest
	startTimeSeconds := tempo.TicksToSeconds(startTick)

	key := ComputeKey(leadingRest, notes, startTimeSeconds, track.ID)

	return &Phrase{
		Key:               key,
		TrackID:           track.ID,
		Singer:            track.Singer,
		FirstRestDuration: leadingRest,
		Notes:             append([]score.Note(nil), notes...),
		StartTick:         startTick,
		EndTick:           lastNote.End(),
		StartTimeSeconds:  startTimeSeconds,
	}
}
