package metrics

import (
	"os"
	"path/filepath"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := New()

	c.RecordEmitted()
	c.RecordEmitted()
	c.RecordConsumed()
	c.RunFinished(OutcomeCompleted)
	c.RunFinished(OutcomeAborted)
	c.RunFinished(OutcomeAborted)
	c.SetCapacity(8)

	assert.Equal(t, 2.0, promtestutil.ToFloat64(c.emitted))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.consumed))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.runs.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(c.runs.WithLabelValues(OutcomeAborted)))
	assert.Equal(t, 8.0, promtestutil.ToFloat64(c.capacity))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordEmitted()
		c.RecordConsumed()
		c.RunFinished(OutcomeFailed)
		c.SetCapacity(1)
	})
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	c.RecordEmitted()
	c.RunFinished(OutcomeFailed)

	path := filepath.Join(t.TempDir(), "paysim.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "paysim_records_emitted_total 1")
	assert.Contains(t, string(data), `paysim_runs_total{outcome="failed"} 1`)
}
