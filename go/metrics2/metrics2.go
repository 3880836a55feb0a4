// Package metrics2 reports counters and timings to Prometheus.
package metrics2

// Int64Metric is a gauge holding an int64.
type Int64Metric interface {
	Get() int64
	Update(v int64)
}

// Counter is a metric which only changes by increments.
type Counter interface {
	Get() int64
	Inc(i int64)
	Reset()
}

// Float64SummaryMetric accumulates observations into quantiles.
type Float64SummaryMetric interface {
	Observe(v float64)
}

// Client creates metrics. Asking twice for the same name and tags returns the
// same metric.
type Client interface {
	GetInt64Metric(name string, tags ...map[string]string) Int64Metric
	GetCounter(name string, tags ...map[string]string) Counter
	GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric
	NewTimer(name string, tags ...map[string]string) Timer
}

var defaultClient Client = newPromClient()

// GetInt64Metric uses the default client.
func GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return defaultClient.GetInt64Metric(name, tags...)
}

// GetCounter uses the default client.
func GetCounter(name string, tags ...map[string]string) Counter {
	return defaultClient.GetCounter(name, tags...)
}

// GetFloat64SummaryMetric uses the default client.
func GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	return defaultClient.GetFloat64SummaryMetric(name, tags...)
}

// NewTimer uses the default client.
func NewTimer(name string, tags ...map[string]string) Timer {
	return defaultClient.NewTimer(name, tags...)
}
