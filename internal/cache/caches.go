package cache

import "github.com/shirotsuki/phrase-renderer/internal/engine"

// Caches bundles the renderer facade's four content-key→artifact stores
// (spec.md §4.7): query, pitch, volume, and voice. Constructed once per
// facade and shared across every render call on it (spec.md §9).
type Caches struct {
	Query  *Store[engine.Query]
	Pitch  *Store[[]float64]
	Volume *Store[[]float64]
	Voice  *Store[engine.VoiceBlob]
}

// NewCaches builds four empty stores.
func NewCaches() *Caches {
	return &Caches{
		Query:  NewStore[engine.Query](),
		Pitch:  NewStore[[]float64](),
		Volume: NewStore[[]float64](),
		Voice:  NewStore[engine.VoiceBlob](),
	}
}
