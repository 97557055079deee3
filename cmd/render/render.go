// Package render implements the "render" subcommand: load a JSON score
// snapshot fixture, drive one renderer.Renderer.Render call, and print the
// event stream plus the final result summary.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shirotsuki/phrase-renderer/internal/conf"
	"github.com/shirotsuki/phrase-renderer/internal/engine"
	"github.com/shirotsuki/phrase-renderer/internal/events"
	"github.com/shirotsuki/phrase-renderer/internal/httpclient"
	"github.com/shirotsuki/phrase-renderer/internal/pipeline"
	"github.com/shirotsuki/phrase-renderer/internal/renderer"
	"github.com/shirotsuki/phrase-renderer/internal/score"
)

// Command builds the render subcommand over settings.
func Command(settings *conf.Settings) *cobra.Command {
	var scorePath string
	var fixture bool
	var engineID string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a score snapshot through the incremental phrase pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), settings, scorePath, engineID, fixture)
		},
	}

	cmd.Flags().StringVar(&scorePath, "score", "", "path to a JSON score snapshot (see cmd/render/fixture.go for the document shape)")
	cmd.Flags().BoolVar(&fixture, "fixture", false, "use the in-memory fixture engine instead of a real HTTP engine")
	cmd.Flags().StringVar(&engineID, "engine-id", "default", "engine id looked up in the score's engine frame rate table")
	_ = cmd.MarkFlagRequired("score")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, scorePath, engineID string, fixture bool) error {
	data, err := os.ReadFile(scorePath)
	if err != nil {
		return fmt.Errorf("reading score snapshot %s: %w", scorePath, err)
	}

	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing score snapshot %s: %w", scorePath, err)
	}
	snapshot := doc.toSnapshot()
	applyConfiguredFrameRateFallback(&snapshot, settings, engineID)

	var client engine.Client
	if fixture {
		client = engine.NewFixtureClient()
	} else {
		client = engine.NewHTTPClient(httpclient.New(&httpclient.Config{DefaultTimeout: settings.EngineTimeout()}), settings.Engine.BaseURL)
	}

	cfg := pipeline.Config{
		EngineID:                    engineID,
		SingingTeacherStyleID:       settings.Render.SingingTeacherStyleID,
		FirstRestMinDurationSeconds: settings.Render.FirstRestMinDurationSeconds,
		LastRestDurationSeconds:     settings.Render.LastRestDurationSeconds,
		FadeOutDurationSeconds:      settings.Render.FadeOutDurationSeconds,
		EditorFrameRate:             settings.Engine.EditorFrameRate,
	}

	r := renderer.New(client, cfg, pipeline.FIFOSelector{}, nil)
	r.Subscribe(printEvent)

	result, err := r.Render(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if result.Interrupted {
		fmt.Println("result: interrupted")
		return nil
	}
	fmt.Printf("result: complete, %d phrases\n", len(result.Phrases))
	return nil
}

// applyConfiguredFrameRateFallback fills in snapshot.EngineFrameRates[engineID]
// from settings.Engine.FrameRates when the snapshot document itself is silent
// on that engine's frame rate. Score snapshots are expected to carry their own
// rate, but a fixture author can omit it and rely on the configured default
// instead.
func applyConfiguredFrameRateFallback(snapshot *score.Snapshot, settings *conf.Settings, engineID string) {
	if _, ok := snapshot.EngineFrameRates[engineID]; ok {
		return
	}
	rate, ok := settings.Engine.FrameRates[engineID]
	if !ok {
		return
	}
	if snapshot.EngineFrameRates == nil {
		snapshot.EngineFrameRates = make(map[string]float64)
	}
	snapshot.EngineFrameRates[engineID] = rate
}

func printEvent(event any) {
	switch e := event.(type) {
	case events.RenderingStarted:
		fmt.Println("renderingStarted")
	case events.CacheLoadFinished:
		fmt.Printf("cacheLoadFinished phrases=%d\n", len(e.PhraseKeys))
	case events.TrackQueryGenerationStarted:
		fmt.Printf("trackQueryGenerationStarted track=%s\n", e.TrackID)
	case events.TrackQueryGenerationFinished:
		fmt.Printf("trackQueryGenerationFinished track=%s results=%d\n", e.TrackID, len(e.ResultsByPhrase))
	case events.PitchGenerationStarted:
		fmt.Printf("pitchGenerationStarted phrase=%s\n", e.PhraseKey)
	case events.PitchGenerationFinished:
		fmt.Printf("pitchGenerationFinished phrase=%s success=%v\n", e.PhraseKey, e.Result.Success)
	case events.VolumeGenerationStarted:
		fmt.Printf("volumeGenerationStarted phrase=%s\n", e.PhraseKey)
	case events.VolumeGenerationFinished:
		fmt.Printf("volumeGenerationFinished phrase=%s success=%v\n", e.PhraseKey, e.Result.Success)
	case events.VoiceSynthesisStarted:
		fmt.Printf("voiceSynthesisStarted phrase=%s\n", e.PhraseKey)
	case events.VoiceSynthesisFinished:
		fmt.Printf("voiceSynthesisFinished phrase=%s success=%v\n", e.PhraseKey, e.Result.Success)
	case events.RenderingCompleted:
		fmt.Printf("renderingCompleted interrupted=%v\n", e.Interrupted)
	}
}
