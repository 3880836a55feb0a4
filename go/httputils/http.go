// Package httputils builds HTTP clients that retry, count requests, and
// optionally turn non-2xx responses into errors.
package httputils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/sklog"
)

const (
	DIAL_TIMEOUT    = time.Minute
	REQUEST_TIMEOUT = 5 * time.Minute

	// Exponential backoff defaults.
	INITIAL_INTERVAL     = 500 * time.Millisecond
	RANDOMIZATION_FACTOR = 0.5
	BACKOFF_MULTIPLIER   = 1.5
	MAX_INTERVAL         = 60 * time.Second
	MAX_ELAPSED_TIME     = 5 * time.Minute

	MAX_BYTES_IN_RESPONSE_BODY = 10 * 1024 //10 KB
)

var (
	serverErr = errors.New("Server error")
	clientErr = errors.New("Client error")
)

// HealthCheckHandler returns 200 OK with an empty body, appropriate
// for a healtcheck endpoint.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
}

// ClientConfig represents options for the behavior of an http.Client. Each
// field, when set, modifies the default http.Client behavior.
//
// Example:
// client := DefaultClientConfig().WithoutRetries().Client()
type ClientConfig struct {
	// DialTimeout, if non-zero, sets the dialer timeout.
	DialTimeout time.Duration

	// RequestTimeout, if non-zero, sets the http.Client.Timeout.
	RequestTimeout time.Duration

	// Retries, if non-nil, retries requests until a non-5xx response is
	// received.
	Retries *BackOffConfig

	// Response2xxOnly, if true, transforms non-2xx HTTP responses to an error
	// return value.
	Response2xxOnly bool

	// Metrics, if true, counts requests per host.
	Metrics bool
}

// DefaultClientConfig returns a ClientConfig with reasonable defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:    DIAL_TIMEOUT,
		RequestTimeout: REQUEST_TIMEOUT,
		Retries:        DefaultBackOffConfig(),
		Metrics:        true,
	}
}

// With2xxOnly returns a new ClientConfig where non-2xx responses cause an error.
func (c ClientConfig) With2xxOnly() ClientConfig {
	c.Response2xxOnly = true
	return c
}

// WithoutRetries returns a new ClientConfig where requests are not retried.
func (c ClientConfig) WithoutRetries() ClientConfig {
	c.Retries = nil
	return c
}

// WithRetries returns a new ClientConfig that retries with the given config.
func (c ClientConfig) WithRetries(b *BackOffConfig) ClientConfig {
	c.Retries = b
	return c
}

// Client returns a new http.Client as configured by the ClientConfig.
func (c ClientConfig) Client() *http.Client {
	var t http.RoundTripper = http.DefaultTransport
	if c.DialTimeout != 0 {
		t = &http.Transport{
			DialContext: (&net.Dialer{Timeout: c.DialTimeout}).DialContext,
		}
	}
	if c.Retries != nil {
		retries := *c.Retries
		if c.RequestTimeout != 0 && retries.MaxElapsedTime > c.RequestTimeout {
			sklog.Warningf("Setting ClientConfig.Retries.MaxElapsedTime to value of ClientConfig.RequestTimeout. Was %s, now %s.", retries.MaxElapsedTime, c.RequestTimeout)
			retries.MaxElapsedTime = c.RequestTimeout
		}
		t = NewConfiguredBackOffTransport(&retries, t)
	}
	if c.Response2xxOnly {
		t = Response2xxOnlyTransport{t}
	}
	if c.Metrics {
		t = NewMetricsTransport(t)
	}
	return &http.Client{
		Transport: t,
		Timeout:   c.RequestTimeout,
	}
}

// Response2xxOnlyTransport is a RoundTripper that transforms non-2xx HTTP
// responses to an error return value.
type Response2xxOnlyTransport struct {
	http.RoundTripper
}

// RoundTrip implements the RoundTripper interface.
func (t Response2xxOnlyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(req)
	if err == nil && resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, fmt.Errorf("Got error response status code %d from the HTTP %s request to %s\nResponse: %s", resp.StatusCode, req.Method, req.URL, ReadAndClose(resp.Body))
	}
	return resp, err
}

// BackOffConfig configures the exponential backoff of a BackOffTransport.
type BackOffConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	RandomizationFactor float64
	Multiplier          float64
}

// DefaultBackOffConfig returns the default retry policy.
func DefaultBackOffConfig() *BackOffConfig {
	return &BackOffConfig{
		InitialInterval:     INITIAL_INTERVAL,
		MaxInterval:         MAX_INTERVAL,
		MaxElapsedTime:      MAX_ELAPSED_TIME,
		RandomizationFactor: RANDOMIZATION_FACTOR,
		Multiplier:          BACKOFF_MULTIPLIER,
	}
}

// NewBackOff returns a backoff.BackOff following the config.
func (c *BackOffConfig) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	b.RandomizationFactor = c.RandomizationFactor
	b.Multiplier = c.Multiplier
	b.Reset()
	return b
}

// BackOffTransport retries requests that fail or get a 5xx response.
type BackOffTransport struct {
	Transport     http.RoundTripper
	backOffConfig *BackOffConfig
}

// NewConfiguredBackOffTransport creates a BackOffTransport with the specified
// config, wrapping the given base RoundTripper.
//
// With the defaults the retry interval starts at 0.5s, randomized by 50%,
// and grows by 1.5x up to one minute between tries, giving up after five
// minutes in total.
func NewConfiguredBackOffTransport(config *BackOffConfig, base http.RoundTripper) http.RoundTripper {
	return &BackOffTransport{
		Transport:     base,
		backOffConfig: config,
	}
}

// RoundTrip implements the RoundTripper interface.
func (t *BackOffTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	backOffClient := backoff.WithContext(t.backOffConfig.NewBackOff(), req.Context())
	// Keep a copy of the body so it can be sent again.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("Failed to read request body: %v", err)
		}
	}

	var resp *http.Response
	var err error
	roundTripOp := func() error {
		if req.Body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		resp, err = t.Transport.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			// This error will be retried.
			return serverErr
		} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(clientErr)
		}
		return nil
	}
	notifyFunc := func(notifyErr error, wait time.Duration) {
		if notifyErr == serverErr {
			sklog.Warningf("Got server error status code %d while making the HTTP %s request to %s\nResponse: %s", resp.StatusCode, req.Method, req.URL, ReadAndClose(resp.Body))
		} else {
			sklog.Warningf("Got error while making the round trip to %s: %s. Retrying HTTP request after sleeping for %s", req.URL, notifyErr, wait)
		}
		resp = nil
	}

	// Overall return values are those of the final call to t.Transport.RoundTrip.
	if err := backoff.RetryNotify(roundTripOp, backOffClient, notifyFunc); err == nil || err == clientErr {
		return resp, nil
	} else if err == serverErr {
		sklog.Warningf("Final attempt got server error status code %d in spite of exponential backoff while making the HTTP %s request to %s", resp.StatusCode, req.Method, req.URL)
		return resp, nil
	} else {
		sklog.Warningf("Final attempt failed in spite of exponential backoff for HTTP %s request to %s: %s", req.Method, req.URL, err)
		return nil, err
	}
}

// ReadAndClose reads the content of a ReadCloser (e.g. http Response), and
// returns it as a quoted string. If the reader was nil or there was a
// problem, it returns the empty string. The reader is always closed.
func ReadAndClose(r io.ReadCloser) string {
	if r == nil {
		return ""
	}
	defer func() {
		if err := r.Close(); err != nil {
			sklog.Warningf("Failed to close response body: %s", err)
		}
	}()
	b, err := io.ReadAll(io.LimitReader(r, MAX_BYTES_IN_RESPONSE_BODY))
	if err != nil {
		sklog.Warningf("There was a potential problem reading the response body: %s", err)
		return ""
	}
	return fmt.Sprintf("%q", string(b))
}

// MetricsTransport counts requests per host.
type MetricsTransport struct {
	rt       http.RoundTripper
	mutex    sync.Mutex
	counters map[string]metrics2.Counter
}

func (mt *MetricsTransport) getCounter(host string) metrics2.Counter {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()
	c, ok := mt.counters[host]
	if !ok {
		c = metrics2.GetCounter("http_request_metrics", map[string]string{
			"host": host,
		})
		mt.counters[host] = c
	}
	return c
}

// RoundTrip implements the RoundTripper interface.
func (mt *MetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mt.getCounter(req.URL.Host).Inc(1)
	return mt.rt.RoundTrip(req)
}

// NewMetricsTransport returns a MetricsTransport which wraps rt.
func NewMetricsTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	// Don't double count.
	if m, ok := rt.(*MetricsTransport); ok {
		return m
	}
	return &MetricsTransport{
		counters: map[string]metrics2.Counter{},
		rt:       rt,
	}
}
