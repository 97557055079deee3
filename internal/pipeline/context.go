package pipeline

import (
	"sync"

	"github.com/shirotsuki/phrase-renderer/internal/cache"
	"github.com/shirotsuki/phrase-renderer/internal/engine"
	"github.com/shirotsuki/phrase-renderer/internal/metrics"
	"github.com/shirotsuki/phrase-renderer/internal/phrase"
	"github.com/shirotsuki/phrase-renderer/internal/score"
)

// Config is the subset of conf.Settings.Render/Engine stage logic needs,
// passed explicitly rather than importing internal/conf directly — stage
// logic stays testable without viper or a config file on disk.
type Config struct {
	EngineID                    string
	SingingTeacherStyleID       int
	FirstRestMinDurationSeconds float64
	LastRestDurationSeconds     float64
	FadeOutDurationSeconds      float64
	EditorFrameRate             float64
}

// StageContext is the shared state one Build call's stage closures read
// and write: the engine client, the four caches, the score snapshot, and
// the phrase map being populated. Writes to the phrase map and to each
// phrase are guarded by mu so Runner.RunConcurrent (spec.md §5: "must
// serialize writes to the shared phrase map and the caches") is safe.
type StageContext struct {
	Engine   engine.Client
	Caches   *cache.Caches
	Snapshot score.Snapshot
	Config   Config
	Metrics  *metrics.PipelineMetrics

	mu      sync.Mutex
	Phrases map[string]*phrase.Phrase // keyed by phrase.Key string form
}

// NewStageContext builds a StageContext over phrases, grouping nothing
// itself — Build derives per-track task sets from the same map.
func NewStageContext(eng engine.Client, caches *cache.Caches, snapshot score.Snapshot, cfg Config, m *metrics.PipelineMetrics, phrases map[string]*phrase.Phrase) *StageContext {
	return &StageContext{
		Engine:   eng,
		Caches:   caches,
		Snapshot: snapshot,
		Config:   cfg,
		Metrics:  m,
		Phrases:  phrases,
	}
}

// trackByID returns the score.Track for trackID.
func (c *StageContext) trackByID(trackID string) (score.Track, bool) {
	for _, t := range c.Snapshot.Tracks {
		if t.ID == trackID {
			return t, true
		}
	}
	return score.Track{}, false
}

func (c *StageContext) withPhraseLock(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}
