package metrics2

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.skia.org/culprit/go/sklog"
)

var (
	// invalidChar is used to force metric and tag names to conform to Prometheus's restrictions.
	invalidChar = regexp.MustCompile("([^a-zA-Z0-9_:])")
)

func clean(s string) string {
	return invalidChar.ReplaceAllLiteralString(s, "_")
}

// promInt64 tracks the value itself since prometheus gauges can't be read back.
type promInt64 struct {
	i     int64
	gauge prometheus.Gauge
}

func (m *promInt64) Get() int64 {
	return atomic.LoadInt64(&m.i)
}

func (m *promInt64) Update(v int64) {
	atomic.StoreInt64(&m.i, v)
	m.gauge.Set(float64(v))
}

type promCounter struct {
	*promInt64
}

func (pc promCounter) Inc(i int64) {
	pc.gauge.Add(float64(i))
	atomic.AddInt64(&pc.i, i)
}

func (pc promCounter) Reset() {
	pc.Update(0)
}

type promFloat64Summary struct {
	summary prometheus.Observer
}

func (m *promFloat64Summary) Observe(v float64) {
	m.summary.Observe(v)
}

type promClient struct {
	mutex            sync.Mutex
	registerer       prometheus.Registerer
	int64GaugeVecs   map[string]*prometheus.GaugeVec
	int64Gauges      map[string]*promInt64
	summaryVecs      map[string]*prometheus.SummaryVec
	float64Summaries map[string]*promFloat64Summary
}

func newPromClient() *promClient {
	return newPromClientWithRegisterer(prometheus.DefaultRegisterer)
}

func newPromClientWithRegisterer(r prometheus.Registerer) *promClient {
	return &promClient{
		registerer:       r,
		int64GaugeVecs:   map[string]*prometheus.GaugeVec{},
		int64Gauges:      map[string]*promInt64{},
		summaryVecs:      map[string]*prometheus.SummaryVec{},
		float64Summaries: map[string]*promFloat64Summary{},
	}
}

// commonGet returns the clean measurement name, the clean labels, the sorted
// label keys, a key for the single metric, and a key for its vector.
func commonGet(measurement string, tags ...map[string]string) (string, prometheus.Labels, []string, string, string) {
	measurement = clean(measurement)
	labels := prometheus.Labels{}
	for _, t := range tags {
		for k, v := range t {
			labels[clean(k)] = v
		}
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	metricKey := []string{measurement}
	for _, k := range keys {
		metricKey = append(metricKey, k, labels[k])
	}
	return measurement, labels, keys, strings.Join(metricKey, "-"), measurement + " [" + strings.Join(keys, " ") + "]"
}

func (p *promClient) GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return p.getInt64(name, tags...)
}

func (p *promClient) getInt64(name string, tags ...map[string]string) *promInt64 {
	measurement, labels, keys, metricKey, vecKey := commonGet(name, tags...)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if ret, ok := p.int64Gauges[metricKey]; ok {
		return ret
	}
	vec, ok := p.int64GaugeVecs[vecKey]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: measurement, Help: measurement}, keys)
		if err := p.registerer.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", measurement, err)
		}
		p.int64GaugeVecs[vecKey] = vec
	}
	gauge, err := vec.GetMetricWith(labels)
	if err != nil {
		sklog.Fatalf("Failed to get gauge: %s", err)
	}
	ret := &promInt64{gauge: gauge}
	p.int64Gauges[metricKey] = ret
	return ret
}

func (p *promClient) GetCounter(name string, tags ...map[string]string) Counter {
	return promCounter{promInt64: p.getInt64(name, tags...)}
}

func (p *promClient) GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	measurement, labels, keys, metricKey, vecKey := commonGet(name, tags...)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if ret, ok := p.float64Summaries[metricKey]; ok {
		return ret
	}
	vec, ok := p.summaryVecs[vecKey]
	if !ok {
		vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       measurement,
			Help:       measurement,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, keys)
		if err := p.registerer.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q %v: %s", measurement, labels, err)
		}
		p.summaryVecs[vecKey] = vec
	}
	summary, err := vec.GetMetricWith(labels)
	if err != nil {
		sklog.Fatalf("Failed to get summary: %s", err)
	}
	ret := &promFloat64Summary{summary: summary}
	p.float64Summaries[metricKey] = ret
	return ret
}

func (p *promClient) NewTimer(name string, tags ...map[string]string) Timer {
	return newTimer(p, name, tags...)
}

var _ Int64Metric = (*promInt64)(nil)
var _ Counter = promCounter{}
var _ Float64SummaryMetric = (*promFloat64Summary)(nil)
var _ Client = (*promClient)(nil)

// Handler serves the metrics of the default client in the Prometheus text
// format.
func Handler() http.Handler {
	return promhttp.Handler()
}
