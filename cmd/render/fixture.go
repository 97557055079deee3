package render

import "github.com/shirotsuki/phrase-renderer/internal/score"

// snapshotDocument is the on-disk JSON shape for a score snapshot fed to
// `render --score`. It mirrors score.Snapshot field-for-field except for a
// track's map-typed fields (the struct-keyed phoneme-timing edits and the
// overlapping-note set), which are flattened to JSON-friendly slices here
// and rebuilt by toSnapshot.
type snapshotDocument struct {
	Tempo struct {
		TicksPerQuarterNote int64 `json:"ticksPerQuarterNote"`
		Changes             []struct {
			Tick int64   `json:"tick"`
			BPM  float64 `json:"bpm"`
		} `json:"changes"`
	} `json:"tempo"`

	Tracks []trackDocument `json:"tracks"`

	EngineFrameRates map[string]float64 `json:"engineFrameRates"`
	EditorFrameRate  float64            `json:"editorFrameRate"`
}

type trackDocument struct {
	ID     string `json:"id"`
	Singer string `json:"singer"`
	Notes  []struct {
		ID       string `json:"id"`
		Position int64  `json:"position"`
		Duration int64  `json:"duration"`
		Number   int    `json:"number"`
		Lyric    string `json:"lyric"`
	} `json:"notes"`

	KeyRangeAdjustment    float64   `json:"keyRangeAdjustment"`
	VolumeRangeAdjustment float64   `json:"volumeRangeAdjustment"`
	PitchEdits            []float64 `json:"pitchEdits"`

	PhonemeTimingEdits []struct {
		NoteID        string  `json:"noteId"`
		PhonemeIndex  int     `json:"phonemeIndex"`
		OffsetSeconds float64 `json:"offsetSeconds"`
	} `json:"phonemeTimingEdits"`

	OverlappingNoteIDs []string `json:"overlappingNoteIds"`
}

func (d *snapshotDocument) toSnapshot() score.Snapshot {
	tempo := score.TempoMap{TicksPerQuarterNote: d.Tempo.TicksPerQuarterNote}
	for _, c := range d.Tempo.Changes {
		tempo.Changes = append(tempo.Changes, score.TempoChange{Tick: c.Tick, BPM: c.BPM})
	}

	tracks := make([]score.Track, 0, len(d.Tracks))
	for _, td := range d.Tracks {
		track := score.Track{
			ID:                    td.ID,
			Singer:                td.Singer,
			KeyRangeAdjustment:    td.KeyRangeAdjustment,
			VolumeRangeAdjustment: td.VolumeRangeAdjustment,
			PitchEdits:            td.PitchEdits,
		}
		for _, n := range td.Notes {
			track.Notes = append(track.Notes, score.Note{
				ID:       n.ID,
				Position: n.Position,
				Duration: n.Duration,
				Number:   n.Number,
				Lyric:    n.Lyric,
			})
		}
		if len(td.PhonemeTimingEdits) > 0 {
			track.PhonemeTimingEdits = make(map[score.PhonemeTimingEditKey]float64, len(td.PhonemeTimingEdits))
			for _, e := range td.PhonemeTimingEdits {
				track.PhonemeTimingEdits[score.PhonemeTimingEditKey{NoteID: e.NoteID, PhonemeIndex: e.PhonemeIndex}] = e.OffsetSeconds
			}
		}
		if len(td.OverlappingNoteIDs) > 0 {
			track.OverlappingNoteIDs = make(map[string]struct{}, len(td.OverlappingNoteIDs))
			for _, id := range td.OverlappingNoteIDs {
				track.OverlappingNoteIDs[id] = struct{}{}
			}
		}
		tracks = append(tracks, track)
	}

	return score.Snapshot{
		Tempo:            tempo,
		Tracks:           tracks,
		EngineFrameRates: d.EngineFrameRates,
		EditorFrameRate:  d.EditorFrameRate,
	}
}
