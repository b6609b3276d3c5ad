package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksRecordEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)
	require.NotNil(t, h)

	h.TopologyRefreshed(3, 15*time.Millisecond)
	h.TopologyRefreshed(4, 5*time.Millisecond)
	h.TopologyUnavailable(errors.New("empty"))
	h.TopologySelfHeal("corrupt")
	h.CacheWriteFailed("k", errors.New("disk full"))
	h.SweepCompleted(7, nil)
	h.SweepCompleted(0, errors.New("walk"))
	h.ApproximateRoute(100, 0)
	h.NodeDialFailed("127.0.0.1:7000", errors.New("refused"))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.refreshesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.refreshesTotal.WithLabelValues("unavailable")))
	assert.Equal(t, 4.0, testutil.ToFloat64(h.topologyNodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.selfHealsTotal.WithLabelValues("corrupt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.cacheWriteErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.sweepsTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.sweepsTotal.WithLabelValues("false")))
	assert.Equal(t, 7.0, testutil.ToFloat64(h.sweptEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.approxRoutes))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.dialErrors.WithLabelValues("127.0.0.1:7000")))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = New(reg)
	require.Panics(t, func() { _ = New(reg) })
}
