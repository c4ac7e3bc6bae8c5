package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingPass(n *atomic.Int64, err error) PassFunc {
	return func(ctx context.Context) error {
		n.Add(1)
		return err
	}
}

// Test NewDaemon constructor
func TestNewDaemon(t *testing.T) {
	var n atomic.Int64
	daemon, err := NewDaemon(Config{Interval: 5 * time.Minute, Logger: zerolog.Nop()}, countingPass(&n, nil))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, daemon.interval)
	assert.Equal(t, "pending", daemon.Health().LastStatus)

	_, err = NewDaemon(Config{}, countingPass(&n, nil))
	assert.ErrorContains(t, err, "interval must be positive")

	_, err = NewDaemon(Config{Interval: time.Minute}, nil)
	assert.Error(t, err)
}

// Test daemon stops gracefully
func TestDaemon_GracefulShutdown(t *testing.T) {
	var n atomic.Int64
	daemon, err := NewDaemon(Config{Interval: time.Minute, Logger: zerolog.Nop()}, countingPass(&n, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- daemon.Start(ctx)
	}()

	require.Eventually(t, func() bool { return daemon.PassCount() >= 1 }, 2*time.Second, 10*time.Millisecond,
		"first batch runs immediately")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Daemon did not shutdown within timeout")
	}
}

// Test batches run at interval
func TestDaemon_PassLoop(t *testing.T) {
	var n atomic.Int64
	daemon, err := NewDaemon(Config{Interval: 50 * time.Millisecond, Logger: zerolog.Nop()}, countingPass(&n, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = daemon.Start(ctx)
	}()

	require.Eventually(t, func() bool { return daemon.PassCount() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, n.Load(), daemon.PassCount())
	assert.Equal(t, "success", daemon.Health().LastStatus)
}

func TestDaemon_FailedPassRecorded(t *testing.T) {
	var n atomic.Int64
	daemon, err := NewDaemon(Config{Interval: time.Hour, Logger: zerolog.Nop()}, countingPass(&n, errors.New("AccessDenied")))
	require.NoError(t, err)

	daemon.runPass(context.Background())

	health := daemon.Health()
	assert.Equal(t, "failed", health.LastStatus)
	assert.Equal(t, "AccessDenied", health.LastError)
	assert.Equal(t, int64(1), health.Passes)
	require.NotNil(t, health.LastRun)
}

// Test health endpoints are accessible
func TestDaemon_HealthEndpoints(t *testing.T) {
	var n atomic.Int64
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sweeper_resources_evaluated_total 1\n"))
	})
	daemon, err := NewDaemon(Config{Interval: time.Hour, MetricsHandler: metrics, Logger: zerolog.Nop()}, countingPass(&n, nil))
	require.NoError(t, err)

	server := httptest.NewServer(daemon.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/-/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "not ready before the first batch")

	daemon.runPass(context.Background())

	for _, path := range []string{"/-/healthy", "/-/ready", "/metrics"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int64(1), health.Passes)
}

// Test metrics server starts on a random port
func TestDaemon_MetricsServer(t *testing.T) {
	var n atomic.Int64
	daemon, err := NewDaemon(Config{Interval: time.Hour, MetricsAddr: "127.0.0.1:0", Logger: zerolog.Nop()}, countingPass(&n, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- daemon.Start(ctx)
	}()

	require.Eventually(t, func() bool { return daemon.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/-/healthy", daemon.Addr()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-errCh)
}
