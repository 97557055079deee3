package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shirotsuki/phrase-renderer/internal/engine"
	stderrors "github.com/shirotsuki/phrase-renderer/internal/errors"
	"github.com/shirotsuki/phrase-renderer/internal/keys"
	"github.com/shirotsuki/phrase-renderer/internal/phrase"
	"github.com/shirotsuki/phrase-renderer/internal/score"
	"github.com/shirotsuki/phrase-renderer/internal/task"
)

func stageError(kind, reason string, cause error) error {
	b := stderrors.Newf("%s: %s", kind, reason).
		Component("pipeline.stages").
		Category(stderrors.CategoryValidation)
	if cause != nil {
		b = b.Context("cause", cause.Error())
	}
	return b.Build()
}

// recordCacheLookup reports a cache probe outcome to sc.Metrics, when one
// is configured.
func recordCacheLookup(sc *StageContext, kind string, hit bool) {
	if sc.Metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	sc.Metrics.RecordCacheLookup(kind, result)
}

func engineFrameRate(sc *StageContext) (float64, error) {
	rate, ok := sc.Snapshot.EngineFrameRate(sc.Config.EngineID)
	if !ok {
		return 0, stageError("query", fmt.Sprintf("no frame rate configured for engine %q", sc.Config.EngineID), nil)
	}
	return rate, nil
}

func shiftF0(f0 []float64, semitones float64, up bool) []float64 {
	factor := math.Pow(2, semitones/12)
	if !up {
		factor = 1 / factor
	}
	out := make([]float64, len(f0))
	for i, v := range f0 {
		out[i] = v * factor
	}
	return out
}

// --- Query generation (spec.md §4.5 "Query generation") ---

type queryKeyBundle struct {
	PhraseKey          string
	EngineID           string
	StyleID            int
	FrameRate          float64
	KeyRangeAdjustment float64
}

func queryKey(ph *phrase.Phrase, sc *StageContext, frameRate, keyRangeAdjustment float64) keys.Key {
	return keys.MustOf(queryKeyBundle{
		PhraseKey:          string(ph.Key),
		EngineID:           sc.Config.EngineID,
		StyleID:            sc.Config.SingingTeacherStyleID,
		FrameRate:          frameRate,
		KeyRangeAdjustment: keyRangeAdjustment,
	})
}

// RunQueryGen executes the query stage for one phrase and writes its
// Query/QueryKey slots.
func RunQueryGen(ctx context.Context, sc *StageContext, ph *phrase.Phrase) error {
	track, ok := sc.trackByID(ph.TrackID)
	if !ok {
		return stageError("query", fmt.Sprintf("unknown track %q", ph.TrackID), nil)
	}

	frameRate, err := engineFrameRate(sc)
	if err != nil {
		return err
	}

	key := queryKey(ph, sc, frameRate, track.KeyRangeAdjustment)
	if cached, ok := sc.Caches.Query.Get(key); ok {
		recordCacheLookup(sc, string(task.KindQuery), true)
		sc.withPhraseLock(func() {
			ph.QueryKey = key
			q := cached.Clone()
			ph.Query = &q
		})
		return nil
	}
	recordCacheLookup(sc, string(task.KindQuery), false)

	durations := engine.NoteDurationsSeconds(ph.Notes, sc.Snapshot.Tempo)
	leadingRestSeconds := sc.Snapshot.Tempo.TicksToSeconds(ph.StartTick+ph.FirstRestDuration) - sc.Snapshot.Tempo.TicksToSeconds(ph.StartTick)
	notes := engine.BuildNotesForEngine(ph.Notes, durations, leadingRestSeconds, sc.Config.LastRestDurationSeconds, frameRate)
	shiftedNotes := engine.ShiftKeysDown(notes, track.KeyRangeAdjustment)

	query, err := sc.Engine.FetchFrameAudioQuery(ctx, sc.Config.EngineID, sc.Config.SingingTeacherStyleID, frameRate, shiftedNotes)
	if err != nil {
		return err
	}
	query.F0 = shiftF0(query.F0, track.KeyRangeAdjustment, true)

	sc.Caches.Query.Set(key, query)
	sc.withPhraseLock(func() {
		ph.QueryKey = key
		q := query.Clone()
		ph.Query = &q
	})
	return nil
}

// IsQueryCached reports whether ph's query artifact is already cached,
// without invoking the engine.
func IsQueryCached(sc *StageContext, ph *phrase.Phrase) task.IsCachedFunc {
	return func(ctx context.Context) bool {
		track, ok := sc.trackByID(ph.TrackID)
		if !ok {
			return false
		}
		frameRate, err := engineFrameRate(sc)
		if err != nil {
			return false
		}
		return sc.Caches.Query.Has(queryKey(ph, sc, frameRate, track.KeyRangeAdjustment))
	}
}

// --- Phoneme-timing adjust (spec.md §4.5 "Phoneme-timing adjust", §9 open question 1) ---

type phonemeTimingEntry struct {
	phrase    *phrase.Phrase
	startTime float64
	query     engine.Query
}

// RunPhonemeTimingAdjust implements the per-track batch pass: apply the
// user's phoneme-timing edits to each successful query, then shrink each
// phrase's trailing pau so its end time does not cross the next phrase's
// start time (see clipAgainstNext for the limit on how far it shrinks).
func RunPhonemeTimingAdjust(ctx context.Context, sc *StageContext, track score.Track, phrasesInOrder []*phrase.Phrase) error {
	entries := make([]*phonemeTimingEntry, 0, len(phrasesInOrder))
	sc.withPhraseLock(func() {
		for _, ph := range phrasesInOrder {
			if ph.Query == nil {
				continue
			}
			entries = append(entries, &phonemeTimingEntry{phrase: ph, startTime: ph.StartTimeSeconds, query: ph.Query.Clone()})
		}
	})
	if len(entries) == 0 {
		return stageError("phoneme-timing-adjust", "no successful queries for track", nil)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].startTime < entries[j].startTime })

	for _, e := range entries {
		applyPhonemeTimingEdits(&e.query, e.phrase.Notes, track.PhonemeTimingEdits)
	}
	for i := 0; i+1 < len(entries); i++ {
		clipAgainstNext(&entries[i].query, entries[i].startTime, entries[i+1].startTime)
	}

	sc.withPhraseLock(func() {
		for _, e := range entries {
			adjusted := e.query
			e.phrase.PhonemeTimingAdjustedQuery = &adjusted
		}
	})
	return nil
}

// applyPhonemeTimingEdits offsets each phoneme's frame length by the user
// edit recorded for (note id, phoneme index within that note), clamped so
// no phoneme shrinks below one frame.
func applyPhonemeTimingEdits(q *engine.Query, notes []score.Note, edits map[score.PhonemeTimingEditKey]float64) {
	if len(edits) == 0 {
		return
	}
	noteIndex := make(map[string]int)
	for i := range q.Phonemes {
		noteID := q.Phonemes[i].NoteID
		if noteID == "" {
			continue
		}
		idx := noteIndex[noteID]
		noteIndex[noteID] = idx + 1

		delta, ok := edits[score.PhonemeTimingEditKey{NoteID: noteID, PhonemeIndex: idx}]
		if !ok {
			continue
		}
		deltaFrames := int(math.Round(delta * q.FrameRate))
		newLen := q.Phonemes[i].FrameLength + deltaFrames
		if newLen < 1 {
			newLen = 1
		}
		q.Phonemes[i].FrameLength = newLen
	}
	resizeFrameArrays(q)
}

// clipAgainstNext shrinks the trailing phoneme (the final pau) of q so that
// startTime plus q's new total duration does not exceed nextStart. The pau
// never drops below one frame and no other phoneme is touched, so when the
// overshoot is larger than the pau can give up, q still ends after nextStart.
func clipAgainstNext(q *engine.Query, startTime, nextStart float64) {
	if len(q.Phonemes) == 0 || q.FrameRate <= 0 {
		return
	}
	total := q.FrameCount()
	end := startTime + float64(total)/q.FrameRate
	if end <= nextStart {
		return
	}
	overshootFrames := int(math.Ceil((end - nextStart) * q.FrameRate))
	last := len(q.Phonemes) - 1
	reducible := q.Phonemes[last].FrameLength - 1
	if reducible < 0 {
		reducible = 0
	}
	if overshootFrames > reducible {
		overshootFrames = reducible
	}
	q.Phonemes[last].FrameLength -= overshootFrames
	resizeFrameArrays(q)
}

// resizeFrameArrays keeps f0/volume at exactly q.FrameCount() entries after
// a phoneme frame-length edit (spec.md invariant 3), padding by repeating
// the last sample or truncating from the tail.
func resizeFrameArrays(q *engine.Query) {
	total := q.FrameCount()
	q.F0 = resizeArray(q.F0, total)
	q.Volume = resizeArray(q.Volume, total)
}

func resizeArray(arr []float64, newLen int) []float64 {
	if len(arr) == newLen {
		return arr
	}
	if len(arr) > newLen {
		return arr[:newLen]
	}
	out := make([]float64, newLen)
	copy(out, arr)
	pad := 0.0
	if len(arr) > 0 {
		pad = arr[len(arr)-1]
	}
	for i := len(arr); i < newLen; i++ {
		out[i] = pad
	}
	return out
}

// --- Pitch generation (spec.md §4.5 "Pitch generation") ---

type pitchKeyBundle struct {
	AdjustedQuery      engine.Query
	EngineID           string
	StyleID            int
	KeyRangeAdjustment float64
}

func pitchKey(sc *StageContext, adjusted engine.Query, keyRangeAdjustment float64) keys.Key {
	return keys.MustOf(pitchKeyBundle{
		AdjustedQuery:      adjusted,
		EngineID:           sc.Config.EngineID,
		StyleID:            sc.Config.SingingTeacherStyleID,
		KeyRangeAdjustment: keyRangeAdjustment,
	})
}

func baseQuery(ph *phrase.Phrase) (*engine.Query, error) {
	if ph.PhonemeTimingAdjustedQuery != nil {
		return ph.PhonemeTimingAdjustedQuery, nil
	}
	if ph.Query != nil {
		return ph.Query, nil
	}
	return nil, stageError("pitch", "phrase has no query to derive notes-for-engine from", nil)
}

// RunPitchGen executes the pitch stage and writes Pitch/PitchKey.
func RunPitchGen(ctx context.Context, sc *StageContext, ph *phrase.Phrase) error {
	track, ok := sc.trackByID(ph.TrackID)
	if !ok {
		return stageError("pitch", fmt.Sprintf("unknown track %q", ph.TrackID), nil)
	}

	var adjusted engine.Query
	sc.withPhraseLock(func() {
		q, qErr := baseQuery(ph)
		if qErr == nil {
			adjusted = q.Clone()
		}
	})
	if len(adjusted.Phonemes) == 0 {
		return stageError("pitch", "phrase has no query to derive notes-for-engine from", nil)
	}

	key := pitchKey(sc, adjusted, track.KeyRangeAdjustment)
	if cached, ok := sc.Caches.Pitch.Get(key); ok {
		recordCacheLookup(sc, string(task.KindPitch), true)
		sc.withPhraseLock(func() {
			ph.PitchKey = key
			ph.Pitch = append([]float64(nil), cached...)
		})
		return nil
	}
	recordCacheLookup(sc, string(task.KindPitch), false)

	durations := engine.NoteDurationsSeconds(ph.Notes, sc.Snapshot.Tempo)
	leadingRestSeconds := sc.Snapshot.Tempo.TicksToSeconds(ph.StartTick+ph.FirstRestDuration) - sc.Snapshot.Tempo.TicksToSeconds(ph.StartTick)
	notes := engine.BuildNotesForEngine(ph.Notes, durations, leadingRestSeconds, sc.Config.LastRestDurationSeconds, adjusted.FrameRate)
	shiftedNotes := engine.ShiftKeysDown(notes, track.KeyRangeAdjustment)

	f0, err := sc.Engine.FetchSingFrameF0(ctx, sc.Config.EngineID, sc.Config.SingingTeacherStyleID, shiftedNotes, adjusted)
	if err != nil {
		return err
	}
	f0 = shiftF0(f0, track.KeyRangeAdjustment, true)

	sc.Caches.Pitch.Set(key, f0)
	sc.withPhraseLock(func() {
		ph.PitchKey = key
		ph.Pitch = append([]float64(nil), f0...)
	})
	return nil
}

// IsPitchCached probes the pitch cache without invoking the engine. It
// returns false (forcing the stage to run and resolve its own error) if the
// phrase's query is not yet populated.
func IsPitchCached(sc *StageContext, ph *phrase.Phrase) task.IsCachedFunc {
	return func(ctx context.Context) bool {
		track, ok := sc.trackByID(ph.TrackID)
		if !ok {
			return false
		}
		var adjusted engine.Query
		sc.withPhraseLock(func() {
			if q, err := baseQuery(ph); err == nil {
				adjusted = q.Clone()
			}
		})
		if len(adjusted.Phonemes) == 0 {
			return false
		}
		return sc.Caches.Pitch.Has(pitchKey(sc, adjusted, track.KeyRangeAdjustment))
	}
}

// --- Volume generation (spec.md §4.5 "Volume generation") ---

type volumeKeyBundle struct {
	AdjustedQuery          engine.Query
	Pitch                  []float64
	PitchEdits             []float64
	EngineID               string
	StyleID                int
	KeyRangeAdjustment     float64
	VolumeRangeAdjustment  float64
	FadeOutDurationSeconds float64
}

func volumeKey(sc *StageContext, adjusted engine.Query, pitch, pitchEdits []float64, track score.Track) keys.Key {
	return keys.MustOf(volumeKeyBundle{
		AdjustedQuery:          adjusted,
		Pitch:                  pitch,
		PitchEdits:             pitchEdits,
		EngineID:               sc.Config.EngineID,
		StyleID:                sc.Config.SingingTeacherStyleID,
		KeyRangeAdjustment:     track.KeyRangeAdjustment,
		VolumeRangeAdjustment:  track.VolumeRangeAdjustment,
		FadeOutDurationSeconds: sc.Config.FadeOutDurationSeconds,
	})
}

// phrasePitchEdits slices track.PitchEdits (dense, sampled at the editor
// frame rate over the whole track timeline) down to the frames spanned by
// ph, or nil if there is no edit coverage there. A zero value in
// PitchEdits is the "no edit at this frame" sentinel.
func phrasePitchEdits(ph *phrase.Phrase, track score.Track, editorFrameRate float64, durationSeconds float64) []float64 {
	if editorFrameRate <= 0 || len(track.PitchEdits) == 0 {
		return nil
	}
	startFrame := int(math.Round(ph.StartTimeSeconds * editorFrameRate))
	frameSpan := int(math.Round(durationSeconds * editorFrameRate))
	if startFrame >= len(track.PitchEdits) || frameSpan <= 0 {
		return nil
	}
	end := startFrame + frameSpan
	if end > len(track.PitchEdits) {
		end = len(track.PitchEdits)
	}
	return append([]float64(nil), track.PitchEdits[startFrame:end]...)
}

// applyPitchEdits overrides f0 samples with editor-frame-rate pitch edits
// resampled to the query's own frame rate. Zero entries in edits mean "no
// edit at this editor frame".
func applyPitchEdits(f0 []float64, edits []float64, queryFrameRate, editorFrameRate float64) {
	if len(edits) == 0 || queryFrameRate <= 0 || editorFrameRate <= 0 {
		return
	}
	for i := range f0 {
		editorIdx := int(math.Round(float64(i) / queryFrameRate * editorFrameRate))
		if editorIdx < 0 || editorIdx >= len(edits) {
			continue
		}
		if v := edits[editorIdx]; v != 0 {
			f0[i] = v
		}
	}
}

// muteLastPauSection implements spec.md §4.5's trailing-pau fade-out,
// reproducing the F=1 halving tiebreaker of §9 open question 2 verbatim
// rather than treating it as a derivable limit of the ramp formula.
func muteLastPauSection(volume []float64, query engine.Query, fadeOutDurationSeconds float64) error {
	if len(query.Phonemes) == 0 {
		return stageError("volume", "query has no phonemes", nil)
	}
	last := query.Phonemes[len(query.Phonemes)-1]
	if last.Phoneme != "pau" {
		return stageError("volume", "final phoneme is not pau", nil)
	}
	if len(volume) != query.FrameCount() {
		return stageError("volume", "volume length does not equal query frame total", nil)
	}

	s := query.FrameCount() - last.FrameLength
	l := last.FrameLength

	f := int(math.Round(fadeOutDurationSeconds * query.FrameRate))
	if f < 0 {
		f = 0
	}
	if f > l {
		f = l
	}

	if f == 1 {
		volume[s] *= 0.5
	} else if f > 1 {
		for i := 0; i < f; i++ {
			ramp := 1 - float64(i)/float64(f-1)
			volume[s+i] *= ramp
		}
	}
	for i := s + f; i < s+l; i++ {
		volume[i] = 0
	}
	return nil
}

// RunVolumeGen executes the volume stage and writes Volume/VolumeKey.
func RunVolumeGen(ctx context.Context, sc *StageContext, ph *phrase.Phrase) error {
	track, ok := sc.trackByID(ph.TrackID)
	if !ok {
		return stageError("volume", fmt.Sprintf("unknown track %q", ph.TrackID), nil)
	}

	var adjusted engine.Query
	var pitch []float64
	sc.withPhraseLock(func() {
		if q, err := baseQuery(ph); err == nil {
			adjusted = q.Clone()
		}
		pitch = append([]float64(nil), ph.Pitch...)
	})
	if len(adjusted.Phonemes) == 0 {
		return stageError("volume", "phrase has no query", nil)
	}
	if len(pitch) == 0 {
		return stageError("volume", "phrase has no pitch", nil)
	}

	durationSeconds := float64(adjusted.FrameCount()) / adjusted.FrameRate
	pitchEdits := phrasePitchEdits(ph, track, sc.Config.EditorFrameRate, durationSeconds)

	key := volumeKey(sc, adjusted, pitch, pitchEdits, track)
	if cached, ok := sc.Caches.Volume.Get(key); ok {
		recordCacheLookup(sc, string(task.KindVolume), true)
		sc.withPhraseLock(func() {
			ph.VolumeKey = key
			ph.Volume = append([]float64(nil), cached...)
		})
		return nil
	}
	recordCacheLookup(sc, string(task.KindVolume), false)

	working := adjusted.Clone()
	working.F0 = append([]float64(nil), pitch...)
	applyPitchEdits(working.F0, pitchEdits, working.FrameRate, sc.Config.EditorFrameRate)

	durations := engine.NoteDurationsSeconds(ph.Notes, sc.Snapshot.Tempo)
	leadingRestSeconds := sc.Snapshot.Tempo.TicksToSeconds(ph.StartTick+ph.FirstRestDuration) - sc.Snapshot.Tempo.TicksToSeconds(ph.StartTick)
	notes := engine.BuildNotesForEngine(ph.Notes, durations, leadingRestSeconds, sc.Config.LastRestDurationSeconds, working.FrameRate)
	shiftedNotes := engine.ShiftKeysDown(notes, track.KeyRangeAdjustment)
	working.F0 = shiftF0(working.F0, track.KeyRangeAdjustment, false)

	volume, err := sc.Engine.FetchSingFrameVolume(ctx, sc.Config.EngineID, sc.Config.SingingTeacherStyleID, shiftedNotes, working)
	if err != nil {
		return err
	}
	gain := math.Pow(10, track.VolumeRangeAdjustment/20)
	for i := range volume {
		volume[i] *= gain
	}

	if err := muteLastPauSection(volume, adjusted, sc.Config.FadeOutDurationSeconds); err != nil {
		return err
	}

	sc.Caches.Volume.Set(key, volume)
	sc.withPhraseLock(func() {
		ph.VolumeKey = key
		ph.Volume = append([]float64(nil), volume...)
	})
	return nil
}

// IsVolumeCached probes the volume cache without invoking the engine.
func IsVolumeCached(sc *StageContext, ph *phrase.Phrase) task.IsCachedFunc {
	return func(ctx context.Context) bool {
		track, ok := sc.trackByID(ph.TrackID)
		if !ok {
			return false
		}
		var adjusted engine.Query
		var pitch []float64
		sc.withPhraseLock(func() {
			if q, err := baseQuery(ph); err == nil {
				adjusted = q.Clone()
			}
			pitch = append([]float64(nil), ph.Pitch...)
		})
		if len(adjusted.Phonemes) == 0 || len(pitch) == 0 {
			return false
		}
		durationSeconds := float64(adjusted.FrameCount()) / adjusted.FrameRate
		pitchEdits := phrasePitchEdits(ph, track, sc.Config.EditorFrameRate, durationSeconds)
		return sc.Caches.Volume.Has(volumeKey(sc, adjusted, pitch, pitchEdits, track))
	}
}

// --- Voice synthesis (spec.md §4.5 "Voice synthesis") ---

type voiceKeyBundle struct {
	AdjustedQuery engine.Query
	Pitch         []float64
	Volume        []float64
	PitchEdits    []float64
	EngineID      string
	StyleID       int
}

func voiceKey(sc *StageContext, adjusted engine.Query, pitch, volume, pitchEdits []float64) keys.Key {
	return keys.MustOf(voiceKeyBundle{
		AdjustedQuery: adjusted,
		Pitch:         pitch,
		Volume:        volume,
		PitchEdits:    pitchEdits,
		EngineID:      sc.Config.EngineID,
		StyleID:       sc.Config.SingingTeacherStyleID,
	})
}

// RunVoiceSynth executes the voice synthesis stage and writes Voice/VoiceKey.
func RunVoiceSynth(ctx context.Context, sc *StageContext, ph *phrase.Phrase) error {
	track, ok := sc.trackByID(ph.TrackID)
	if !ok {
		return stageError("voice", fmt.Sprintf("unknown track %q", ph.TrackID), nil)
	}

	var adjusted engine.Query
	var pitch, volume []float64
	sc.withPhraseLock(func() {
		if q, err := baseQuery(ph); err == nil {
			adjusted = q.Clone()
		}
		pitch = append([]float64(nil), ph.Pitch...)
		volume = append([]float64(nil), ph.Volume...)
	})
	if len(adjusted.Phonemes) == 0 {
		return stageError("voice", "phrase has no query", nil)
	}
	if len(pitch) == 0 || len(volume) == 0 {
		return stageError("voice", "phrase has no pitch or volume", nil)
	}

	durationSeconds := float64(adjusted.FrameCount()) / adjusted.FrameRate
	pitchEdits := phrasePitchEdits(ph, track, sc.Config.EditorFrameRate, durationSeconds)

	key := voiceKey(sc, adjusted, pitch, volume, pitchEdits)
	if cached, ok := sc.Caches.Voice.Get(key); ok {
		recordCacheLookup(sc, string(task.KindVoice), true)
		sc.withPhraseLock(func() {
			ph.VoiceKey = key
			ph.Voice = append(engine.VoiceBlob(nil), cached...)
		})
		return nil
	}
	recordCacheLookup(sc, string(task.KindVoice), false)

	working := adjusted.Clone()
	working.F0 = append([]float64(nil), pitch...)
	applyPitchEdits(working.F0, pitchEdits, working.FrameRate, sc.Config.EditorFrameRate)
	working.Volume = append([]float64(nil), volume...)

	voice, err := sc.Engine.FrameSynthesis(ctx, sc.Config.EngineID, sc.Config.SingingTeacherStyleID, working)
	if err != nil {
		return err
	}

	sc.Caches.Voice.Set(key, voice)
	sc.withPhraseLock(func() {
		ph.VoiceKey = key
		ph.Voice = append(engine.VoiceBlob(nil), voice...)
	})
	return nil
}

// IsVoiceCached probes the voice cache without invoking the engine.
func IsVoiceCached(sc *StageContext, ph *phrase.Phrase) task.IsCachedFunc {
	return func(ctx context.Context) bool {
		track, ok := sc.trackByID(ph.TrackID)
		if !ok {
			return false
		}
		var adjusted engine.Query
		var pitch, volume []float64
		sc.withPhraseLock(func() {
			if q, err := baseQuery(ph); err == nil {
				adjusted = q.Clone()
			}
			pitch = append([]float64(nil), ph.Pitch...)
			volume = append([]float64(nil), ph.Volume...)
		})
		if len(adjusted.Phonemes) == 0 || len(pitch) == 0 || len(volume) == 0 {
			return false
		}
		durationSeconds := float64(adjusted.FrameCount()) / adjusted.FrameRate
		pitchEdits := phrasePitchEdits(ph, track, sc.Config.EditorFrameRate, durationSeconds)
		return sc.Caches.Voice.Has(voiceKey(sc, adjusted, pitch, volume, pitchEdits))
	}
}
