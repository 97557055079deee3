// Package engine defines the four-operation synthesis engine API the
// pipeline depends on (spec.md §6) and an HTTP-backed implementation built
// on internal/httpclient.
package engine

// FramePhoneme is one phoneme slot of a frame audio query: a
// phoneme symbol sounding for FrameLength frames, optionally tied back to
// the score note it came from.
type FramePhoneme struct {
	Phoneme     string `json:"phoneme"`
	FrameLength int    `json:"frameLength"`
	NoteID      string `json:"noteId,omitempty"`
}

// Query is the engine's frame audio query: per-frame phonemes plus dense
// f0/volume arrays, one value per frame (spec.md §3).
type Query struct {
	Phonemes  []FramePhoneme `json:"phonemes"`
	FrameRate float64        `json:"frameRate"`
	F0        []float64      `json:"f0"`
	Volume    []float64      `json:"volume"`
}

// Clone returns a deep copy so stage logic can mutate a working copy
// without aliasing the cached original (spec.md §4.5: volume/voice
// generation each clone the query before installing generated arrays).
func (q Query) Clone() Query {
	clone := Query{FrameRate: q.FrameRate}
	clone.Phonemes = append([]FramePhoneme(nil), q.Phonemes...)
	clone.F0 = append([]float64(nil), q.F0...)
	clone.Volume = append([]float64(nil), q.Volume...)
	return clone
}

// FrameCount returns the total number of frames across all phonemes.
func (q Query) FrameCount() int {
	total := 0
	for _, p := range q.Phonemes {
		total += p.FrameLength
	}
	return total
}

// VoiceBlob is an opaque encoded audio payload returned by frameSynthesis.
type VoiceBlob []byte
