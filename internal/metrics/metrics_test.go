package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineMetricsRegistersAllCollectors(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)
	require.NotNil(t, m)

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)
}

func TestRecordTaskFinishedIncrementsCounter(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.RecordTaskFinished("pitch", "success")
	m.RecordTaskFinished("pitch", "success")

	value := counterValue(t, m.TasksTotal.WithLabelValues("pitch", "success"))
	assert.InDelta(t, 2, value, 1e-9)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	_, err = NewPipelineMetrics(registry)
	assert.Error(t, err)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
