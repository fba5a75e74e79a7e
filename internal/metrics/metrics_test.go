package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTask(t *testing.T) {
	before := testutil.ToFloat64(taskResults.WithLabelValues("daily_snapshot", "skipped"))
	RecordTask("daily_snapshot", "skipped", time.Millisecond)
	RecordTask("daily_snapshot", "skipped", time.Millisecond)
	after := testutil.ToFloat64(taskResults.WithLabelValues("daily_snapshot", "skipped"))
	assert.Equal(t, before+2, after)
}

func TestRecordNetworkSnapshot(t *testing.T) {
	RecordNetworkSnapshot(70_000, 15_000, 500_000_000_000)
	assert.Equal(t, float64(70_000), testutil.ToFloat64(networkChannels))
	assert.Equal(t, float64(15_000), testutil.ToFloat64(networkNodes))
	assert.Equal(t, float64(500_000_000_000), testutil.ToFloat64(networkCapacity))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "error", outcome(true).String())
	assert.Equal(t, "success", outcome(false).String())
}
