package httputils

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse2xxOnly(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.URL.Query().Get("code"))
		assert.NoError(t, err)
		w.WriteHeader(code)
	}))
	defer s.Close()
	test := func(c *http.Client, code int, expectError bool) {
		resp, err := c.Get(s.URL + "/get?code=" + strconv.Itoa(code))
		if expectError {
			assert.Error(t, err)
		} else {
			require.NoError(t, err)
			assert.Equal(t, code, resp.StatusCode)
			ReadAndClose(resp.Body)
		}
	}
	c := s.Client()
	test(c, http.StatusOK, false)
	test(c, http.StatusNotFound, false)
	test(c, http.StatusServiceUnavailable, false)
	c = &http.Client{Transport: Response2xxOnlyTransport{s.Client().Transport}}
	test(c, http.StatusOK, false)
	test(c, http.StatusNotFound, true)
	test(c, http.StatusServiceUnavailable, true)
}

var mockRoundTripErr = errors.New("Can not round trip on a one-way street.")

type mockRoundTripper struct {
	// responseCodes gives the response for subsequent requests. The last one
	// is repeated. 0 means return mockRoundTripErr.
	responseCodes []int
	bodies        []string
}

func (t *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		t.bodies = append(t.bodies, string(b))
	}
	code := t.responseCodes[0]
	if len(t.responseCodes) > 1 {
		t.responseCodes = t.responseCodes[1:]
	}
	if code == 0 {
		return nil, mockRoundTripErr
	}
	w := httptest.NewRecorder()
	w.WriteHeader(code)
	return w.Result(), nil
}

func fastBackOff() *BackOffConfig {
	return &BackOffConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      200 * time.Millisecond,
		RandomizationFactor: RANDOMIZATION_FACTOR,
		Multiplier:          BACKOFF_MULTIPLIER,
	}
}

func TestBackOffTransport(t *testing.T) {
	test := func(codes []int, expectErr bool) {
		wrapped := &mockRoundTripper{responseCodes: codes}
		bt := NewConfiguredBackOffTransport(fastBackOff(), wrapped)
		resp, err := bt.RoundTrip(httptest.NewRequest("GET", "http://example.com/foo", nil))
		if expectErr {
			assert.Equal(t, mockRoundTripErr, err, "codes %v", codes)
			return
		}
		require.NoError(t, err, "codes %v", codes)
		assert.Equal(t, codes[len(codes)-1], resp.StatusCode, "codes %v", codes)
		ReadAndClose(resp.Body)
	}
	// No retries.
	test([]int{http.StatusOK}, false)
	test([]int{http.StatusNotFound}, false)
	// Some retries before a non-retriable status code.
	test([]int{http.StatusServiceUnavailable, http.StatusOK}, false)
	test([]int{http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusNotFound}, false)
	// Retries exhausted for server error.
	test([]int{http.StatusInternalServerError}, false)
	// Transport errors.
	test([]int{0, http.StatusOK}, false)
	test([]int{0, 0, http.StatusOK}, false)
	test([]int{http.StatusInternalServerError, 0}, true)
}

func TestBackOffTransport_ResendsBody(t *testing.T) {
	wrapped := &mockRoundTripper{responseCodes: []int{http.StatusBadGateway, http.StatusOK}}
	bt := NewConfiguredBackOffTransport(fastBackOff(), wrapped)
	resp, err := bt.RoundTrip(httptest.NewRequest("POST", "http://example.com/foo", strings.NewReader("payload")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"payload", "payload"}, wrapped.bodies)
}

func TestClientConfig_2xxOnlyWithRetries(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer s.Close()

	c := DefaultClientConfig().WithRetries(fastBackOff()).With2xxOnly().Client()
	resp, err := c.Get(s.URL)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, ReadAndClose(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewMetricsTransport_NoDoubleWrap(t *testing.T) {
	mt := NewMetricsTransport(nil)
	assert.Same(t, mt, NewMetricsTransport(mt))
}

func TestReadAndClose_Nil(t *testing.T) {
	assert.Equal(t, "", ReadAndClose(nil))
}

func TestHealthCheckHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthCheckHandler(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
