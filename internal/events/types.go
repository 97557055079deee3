// Package events implements the renderer's one-subscriber-model event bus:
// listeners are invoked synchronously, in registration order, exactly as
// spec.md §6 requires. Rendering events must be observed in a strict,
// reproducible order by a host UI, so there is no buffering and no
// background dispatch goroutine.
package events

// StageResult is the per-task outcome shape used by every *GenerationFinished
// event: either a successful artifact keyed by its content key, or an error
// with its cause.
type StageResult struct {
	Success  bool
	Key      string
	Artifact any
	Cause    error
}

// RenderingStarted fires once per render() call, before the extractor runs.
type RenderingStarted struct{}

// CacheLoadFinished fires once the contiguous prefix of cached-task starts
// ends, carrying every phrase key whose artifacts were loaded from cache.
type CacheLoadFinished struct {
	PhraseKeys []string
}

// TrackQueryGenerationStarted fires on the first queryGeneration task started
// for a track.
type TrackQueryGenerationStarted struct {
	TrackID string
}

// TrackQueryGenerationFinished fires once every outstanding queryGeneration
// task for a track has finished, carrying all per-phrase results together.
type TrackQueryGenerationFinished struct {
	TrackID         string
	ResultsByPhrase map[string]StageResult
}

// PitchGenerationStarted fires once per phrase.
type PitchGenerationStarted struct {
	PhraseKey string
}

// PitchGenerationFinished fires once per phrase.
type PitchGenerationFinished struct {
	PhraseKey string
	Result    StageResult
}

// VolumeGenerationStarted fires once per phrase.
type VolumeGenerationStarted struct {
	PhraseKey string
}

// VolumeGenerationFinished fires once per phrase.
type VolumeGenerationFinished struct {
	PhraseKey string
	Result    StageResult
}

// VoiceSynthesisStarted fires once per phrase.
type VoiceSynthesisStarted struct {
	PhraseKey string
}

// VoiceSynthesisFinished fires once per phrase.
type VoiceSynthesisFinished struct {
	PhraseKey string
	Result    StageResult
}

// RenderingCompleted fires exactly once, as the final event of any render,
// whether it completed or was interrupted.
type RenderingCompleted struct {
	Interrupted bool
}
