package metrics2

import "time"

// Timer reports a single duration, in seconds, when Stop is called.
type Timer interface {
	Start()
	Stop() time.Duration
}

type timer struct {
	begin   time.Time
	summary Float64SummaryMetric
}

func newTimer(c Client, name string, tags ...map[string]string) Timer {
	t := &timer{
		summary: c.GetFloat64SummaryMetric(name, tags...),
	}
	t.Start()
	return t
}

// Start resets the beginning of the interval.
func (t *timer) Start() {
	t.begin = time.Now()
}

// Stop reports the time elapsed since Start.
func (t *timer) Stop() time.Duration {
	d := time.Since(t.begin)
	t.summary.Observe(d.Seconds())
	return d
}
