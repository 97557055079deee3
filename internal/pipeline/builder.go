package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/shirotsuki/phrase-renderer/internal/phrase"
	"github.com/shirotsuki/phrase-renderer/internal/task"
)

// Build implements spec.md §4.4: given a populated phrase map, produce one
// task graph covering every track's QueryGen/PhonemeTimingAdjust/PitchGen/
// VolumeGen/VoiceSynth tasks. Phrases without a singer produce no tasks.
func Build(sc *StageContext) (*task.Graph, error) {
	byTrack := make(map[string][]*phrase.Phrase)
	var trackOrder []string
	for _, ph := range sc.Phrases {
		if !ph.HasSinger() {
			continue
		}
		if _, seen := byTrack[ph.TrackID]; !seen {
			trackOrder = append(trackOrder, ph.TrackID)
		}
		byTrack[ph.TrackID] = append(byTrack[ph.TrackID], ph)
	}
	sort.Strings(trackOrder)

	var tasks []*task.Task
	for _, trackID := range trackOrder {
		phrases := byTrack[trackID]
		sort.Slice(phrases, func(i, j int) bool { return phrases[i].StartTimeSeconds < phrases[j].StartTimeSeconds })
		tasks = append(tasks, buildTrackTasks(sc, trackID, phrases)...)
	}

	return task.NewGraph(tasks)
}

func buildTrackTasks(sc *StageContext, trackID string, phrases []*phrase.Phrase) []*task.Task {
	queryTasks := make([]*task.Task, len(phrases))
	for i, ph := range phrases {
		ph := ph
		queryTasks[i] = task.New(
			task.KindQuery,
			string(ph.Key),
			trackID,
			nil,
			task.AnyDependencyFailedOrSkipped,
			true,
			timedRun(sc, string(task.KindQuery), func(ctx context.Context) error {
				return RunQueryGen(ctx, sc, ph)
			}),
			IsQueryCached(sc, ph),
		)
	}

	track, _ := sc.trackByID(trackID)
	adjust := task.New(
		task.KindPhonemeTimingAdjust,
		"",
		trackID,
		append([]*task.Task(nil), queryTasks...),
		task.AllDependenciesFailedOrSkipped,
		false,
		timedRun(sc, string(task.KindPhonemeTimingAdjust), func(ctx context.Context) error {
			return RunPhonemeTimingAdjust(ctx, sc, track, phrases)
		}),
		nil,
	)

	out := append([]*task.Task(nil), queryTasks...)
	out = append(out, adjust)

	for i, ph := range phrases {
		ph := ph
		pitchTask := task.New(
			task.KindPitch,
			string(ph.Key),
			trackID,
			[]*task.Task{queryTasks[i], adjust},
			task.AnyDependencyFailedOrSkipped,
			true,
			timedRun(sc, string(task.KindPitch), func(ctx context.Context) error {
				return RunPitchGen(ctx, sc, ph)
			}),
			IsPitchCached(sc, ph),
		)

		volumeTask := task.New(
			task.KindVolume,
			string(ph.Key),
			trackID,
			[]*task.Task{pitchTask},
			task.AnyDependencyFailedOrSkipped,
			true,
			timedRun(sc, string(task.KindVolume), func(ctx context.Context) error {
				return RunVolumeGen(ctx, sc, ph)
			}),
			IsVolumeCached(sc, ph),
		)

		voiceTask := task.New(
			task.KindVoice,
			string(ph.Key),
			trackID,
			[]*task.Task{volumeTask},
			task.AnyDependencyFailedOrSkipped,
			true,
			timedRun(sc, string(task.KindVoice), func(ctx context.Context) error {
				return RunVoiceSynth(ctx, sc, ph)
			}),
			IsVoiceCached(sc, ph),
		)

		out = append(out, pitchTask, volumeTask, voiceTask)
	}

	return out
}

// QueryTaskCountByTrack counts how many KindQuery tasks each track has in
// graph — the renderer facade primes its per-track outstanding-count with
// this before running, so it knows when to emit trackQueryGenerationFinished
// (spec.md §4.7).
func QueryTaskCountByTrack(graph *task.Graph) map[string]int {
	counts := make(map[string]int)
	for _, t := range graph.Tasks() {
		if t.Kind == task.KindQuery {
			counts[t.TrackID]++
		}
	}
	return counts
}

// timedRun wraps a stage RunFunc so its wall-clock duration reaches
// sc.Metrics, when one is configured.
func timedRun(sc *StageContext, kind string, fn task.RunFunc) task.RunFunc {
	if sc.Metrics == nil {
		return fn
	}
	return func(ctx context.Context) error {
		start := time.Now()
		err := fn(ctx)
		sc.Metrics.ObserveStageDuration(kind, time.Since(start).Seconds())
		return err
	}
}
