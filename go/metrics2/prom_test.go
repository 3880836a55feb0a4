package metrics2

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "a_b_c", clean("a.b-c"))
}

func TestGetCounter_SameNameAndTags_SharesValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newPromClientWithRegisterer(reg)

	a := c.GetCounter("ticks.total", map[string]string{"result": "ok"})
	a.Inc(2)
	b := c.GetCounter("ticks.total", map[string]string{"result": "ok"})
	b.Inc(3)
	other := c.GetCounter("ticks.total", map[string]string{"result": "conflict"})
	other.Inc(1)

	assert.Equal(t, int64(5), a.Get())
	assert.Equal(t, int64(1), other.Get())
	require.Len(t, c.int64GaugeVecs, 1)
	assert.Equal(t, 5.0, testutil.ToFloat64(c.int64GaugeVecs["ticks_total [result]"].WithLabelValues("ok")))

	a.Reset()
	assert.Equal(t, int64(0), b.Get())
}

func TestNewTimer_StopObservesOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newPromClientWithRegisterer(reg)

	tm := c.NewTimer("tick_latency", map[string]string{"stage": "poll"})
	d := tm.Stop()
	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))

	n, err := testutil.GatherAndCount(reg, "tick_latency")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandler_ServesDefaultClientMetrics(t *testing.T) {
	GetCounter("handler_test_requests").Inc(3)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "handler_test_requests 3")
}

func TestGetFloat64SummaryMetric_ObservesIntoRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newPromClientWithRegisterer(reg)

	s := c.GetFloat64SummaryMetric("poll_seconds", map[string]string{"runner": "command"})
	s.Observe(1.5)
	s.Observe(2.5)
	assert.Same(t, s, c.GetFloat64SummaryMetric("poll_seconds", map[string]string{"runner": "command"}))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	require.Len(t, mfs[0].GetMetric(), 1)
	assert.Equal(t, uint64(2), mfs[0].GetMetric()[0].GetSummary().GetSampleCount())
	assert.Equal(t, 4.0, mfs[0].GetMetric()[0].GetSummary().GetSampleSum())
}

func TestGetInt64Metric_UpdateIsVisibleAsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newPromClientWithRegisterer(reg)

	g := c.GetInt64Metric("queue_waiting", map[string]string{"prefix": "culprit"})
	g.Update(7)
	assert.Equal(t, int64(7), g.Get())
	assert.Equal(t, 7.0, testutil.ToFloat64(c.int64GaugeVecs["queue_waiting [prefix]"].WithLabelValues("culprit")))
}
