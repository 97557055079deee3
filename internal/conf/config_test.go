package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchesSpecOptions(t *testing.T) {
	t.Parallel()

	d := Default()
	assert.Equal(t, 6000, d.Render.SingingTeacherStyleID)
	assert.InDelta(t, 0.12, d.Render.FirstRestMinDurationSeconds, 1e-9)
	assert.InDelta(t, 0.5, d.Render.LastRestDurationSeconds, 1e-9)
	assert.InDelta(t, 0.15, d.Render.FadeOutDurationSeconds, 1e-9)
}

func TestDefaultLogRotation(t *testing.T) {
	t.Parallel()

	d := Default()
	assert.Equal(t, RotationSize, d.Log.Rotation)
	assert.Greater(t, d.Log.MaxSizeBytes, int64(0))
}

func TestSettingReturnsDefaultsWithoutLoad(t *testing.T) {
	t.Parallel()

	s := Setting()
	assert.NotNil(t, s)
}

func TestEngineTimeoutConversion(t *testing.T) {
	t.Parallel()

	s := Default()
	s.Engine.TimeoutSeconds = 2.5
	assert.Equal(t, float64(2500_000_000), float64(s.EngineTimeout()))
}
