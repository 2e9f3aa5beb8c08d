package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testController(t *testing.T, opts Options) *Controller {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewController(opts, logger)
}

func TestController_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := testController(t, Options{
		MaxAttempts:      4,
		BackoffBase:      time.Millisecond,
		BreakerThreshold: 5,
	})

	body, err := c.Get(context.Background(), "test", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, BreakerClosed, c.BreakerState("test"))
}

func TestController_PermanentStatusNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := testController(t, Options{
		MaxAttempts:      4,
		BackoffBase:      time.Millisecond,
		BreakerThreshold: 5,
	})

	_, err := c.Get(context.Background(), "test", server.URL)
	assert.ErrorIs(t, err, ErrPermanentStatus)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestController_BreakerOpensAndRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := testController(t, Options{
		MaxAttempts:      1,
		BackoffBase:      time.Millisecond,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	})

	ctx := context.Background()
	_, err := c.Get(ctx, "dead", server.URL)
	assert.Error(t, err)
	_, err = c.Get(ctx, "dead", server.URL)
	assert.Error(t, err)

	assert.Equal(t, BreakerOpen, c.BreakerState("dead"))
	_, err = c.Get(ctx, "dead", server.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// Another source is unaffected.
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	}))
	defer ok.Close()

	body, err := c.Get(ctx, "alive", ok.URL)
	require.NoError(t, err)
	assert.Equal(t, "fine", string(body))
}

func TestController_PolitenessSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := testController(t, Options{
		Politeness:       50 * time.Millisecond,
		MaxAttempts:      1,
		BreakerThreshold: 5,
	})

	ctx := context.Background()
	start := time.Now()
	_, err := c.Get(ctx, "test", server.URL)
	require.NoError(t, err)
	_, err = c.Get(ctx, "test", server.URL)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestController_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := testController(t, Options{
		MaxAttempts:      3,
		BackoffBase:      time.Hour,
		BreakerThreshold: 5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Get(ctx, "test", server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
