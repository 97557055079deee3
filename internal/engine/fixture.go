package engine

import (
	"context"
	"fmt"
	"sync"
)

// FixtureClient is an in-memory Client that synthesizes deterministic
// placeholder artifacts instead of calling a real engine. It backs
// cmd/render's --fixture mode and the pipeline/renderer test suites,
// standing in for the network collaborator those tests must not depend on.
type FixtureClient struct {
	mu sync.Mutex

	// FailQueryForNoteID, keyed by the note id of the first keyed (sounding)
	// note in the notes-for-engine sequence, makes FetchFrameAudioQuery fail
	// for that call — used to drive spec.md scenario S5 (single query fails).
	FailQueryForNoteID map[string]error

	calls []string
}

// NewFixtureClient returns a FixtureClient with no configured failures.
func NewFixtureClient() *FixtureClient {
	return &FixtureClient{FailQueryForNoteID: map[string]error{}}
}

// Calls returns the operation names invoked so far, in order — useful for
// asserting "zero engine calls on a warm-cache render" (spec.md §8.4).
func (f *FixtureClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FixtureClient) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func firstKeyedNoteID(notes []NoteForEngine) string {
	for _, n := range notes {
		if n.HasKey {
			return n.NoteID
		}
	}
	return ""
}

func (f *FixtureClient) FetchFrameAudioQuery(_ context.Context, _ string, _ int, frameRate float64, notes []NoteForEngine) (Query, error) {
	f.record("fetchFrameAudioQuery")

	if err, ok := f.FailQueryForNoteID[firstKeyedNoteID(notes)]; ok {
		return Query{}, err
	}

	phonemes := make([]FramePhoneme, 0, len(notes))
	frameCount := 0
	for _, n := range notes {
		phoneme := "pau"
		if n.HasKey {
			phoneme = fmt.Sprintf("k%d", n.Key)
		}
		phonemes = append(phonemes, FramePhoneme{Phoneme: phoneme, FrameLength: n.FrameLength, NoteID: n.NoteID})
		frameCount += n.FrameLength
	}

	f0 := make([]float64, frameCount)
	volume := make([]float64, frameCount)
	idx := 0
	for _, n := range notes {
		pitch := 0.0
		if n.HasKey {
			pitch = float64(n.Key)
		}
		for i := 0; i < n.FrameLength; i++ {
			f0[idx] = pitch
			volume[idx] = 1.0
			idx++
		}
	}

	return Query{Phonemes: phonemes, FrameRate: frameRate, F0: f0, Volume: volume}, nil
}

func (f *FixtureClient) FetchSingFrameF0(_ context.Context, _ string, _ int, _ []NoteForEngine, query Query) ([]float64, error) {
	f.record("fetchSingFrameF0")
	return append([]float64(nil), query.F0...), nil
}

func (f *FixtureClient) FetchSingFrameVolume(_ context.Context, _ string, _ int, _ []NoteForEngine, query Query) ([]float64, error) {
	f.record("fetchSingFrameVolume")
	return append([]float64(nil), query.Volume...), nil
}

func (f *FixtureClient) FrameSynthesis(_ context.Context, _ string, _ int, query Query) (VoiceBlob, error) {
	f.record("frameSynthesis")
	blob := make(VoiceBlob, query.FrameCount())
	for i := range blob {
		blob[i] = byte(i)
	}
	return blob, nil
}

var _ Client = (*FixtureClient)(nil)
