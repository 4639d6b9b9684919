package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordRun(StatusSuccess, 12.5)
	m.RecordChunkWrite(0.25)
	m.IncChunkWriteRetry()
	m.AddEntriesSnapshotted(1000)
	m.SetLastSnapshotL1Batch(42)
	m.RecordAPIRequest("/snapshots", 200, 0.01)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.chunksWritten))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.chunkWriteRetries))
	assert.Equal(t, float64(1000), testutil.ToFloat64(m.entriesSnapshotted))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.lastSnapshotL1Batch))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.apiRequests.WithLabelValues("/snapshots", "200")))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register metric")
}

func TestNewWithLabels_AppliesConstantLabels(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{ChainID: 324, Environment: "staging"})
	require.NoError(t, err)

	m.SetLastSnapshotL1Batch(42)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "last_snapshot_l1_batch") {
			continue
		}
		found = true
		labels := map[string]string{}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		assert.Equal(t, "324", labels["chain_id"])
		assert.Equal(t, "staging", labels["environment"])
	}
	assert.True(t, found)
}

func TestLabels_EmptyValuesOmitted(t *testing.T) {
	t.Parallel()
	labels := Labels{ChainID: 0, Environment: "", Region: "us-east-1"}
	promLabels := labels.toPrometheusLabels()
	assert.Equal(t, prometheus.Labels{"region": "us-east-1"}, promLabels)
}
