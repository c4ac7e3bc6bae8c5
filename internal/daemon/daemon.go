// Package daemon runs batches on an interval and serves metrics and health.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds daemon configuration
type Config struct {
	Interval    time.Duration
	MetricsAddr string
	// MetricsHandler serves /metrics; defaults to promhttp.Handler()
	MetricsHandler http.Handler
	Metrics        *DaemonMetrics
	Logger         zerolog.Logger
}

// PassFunc runs one full batch
type PassFunc func(ctx context.Context) error

// Daemon runs continuous cleanup passes
type Daemon struct {
	interval    time.Duration
	metricsAddr string
	pass        PassFunc
	handler     http.Handler
	metrics     *DaemonMetrics
	logger      zerolog.Logger
	startTime   time.Time
	passCount   atomic.Int64
	listenAddr  atomic.Value

	mu         sync.RWMutex
	lastStatus string
	lastError  string
	lastRun    time.Time
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config, pass PassFunc) (*Daemon, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("daemon interval must be positive, got %s", config.Interval)
	}
	if pass == nil {
		return nil, errors.New("daemon needs a pass function")
	}

	handler := config.MetricsHandler
	if handler == nil {
		handler = promhttp.Handler()
	}

	return &Daemon{
		interval:    config.Interval,
		metricsAddr: config.MetricsAddr,
		pass:        pass,
		handler:     handler,
		metrics:     config.Metrics,
		logger:      config.Logger,
		startTime:   time.Now(),
		lastStatus:  "pending",
	}, nil
}

// Start runs the scheduler, the HTTP server and the signal handler until one of them
// stops or ctx is cancelled
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group

	g.Add(func() error {
		return d.schedule(ctx)
	}, func(error) {
		cancel()
	})

	if d.metricsAddr != "" {
		ln, err := net.Listen("tcp", d.metricsAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", d.metricsAddr, err)
		}
		d.listenAddr.Store(ln.Addr().String())
		server := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}

		g.Add(func() error {
			d.logger.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err := g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		d.logger.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) schedule(ctx context.Context) error {
	d.runPass(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runPass(ctx)
		}
	}
}

func (d *Daemon) runPass(ctx context.Context) {
	start := time.Now()
	err := d.pass(ctx)
	duration := time.Since(start)
	d.passCount.Add(1)

	status := "success"
	if err != nil {
		status = "failed"
		d.logger.Error().Err(err).Dur("duration", duration).Msg("scheduled batch finished with errors")
	} else {
		d.logger.Info().Dur("duration", duration).Msg("scheduled batch finished")
	}

	d.metrics.RecordPass(ctx, status, duration)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastStatus = status
	d.lastRun = start.UTC()
	d.lastError = ""
	if err != nil {
		d.lastError = err.Error()
	}
}

// Handler serves /metrics, /health and the Prometheus-style probes
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.handler)
	mux.HandleFunc("/health", d.serveHealth)
	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		if d.PassCount() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (d *Daemon) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.Health())
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	health := HealthStatus{
		Status:     "healthy",
		Uptime:     int64(time.Since(d.startTime).Seconds()),
		Passes:     d.passCount.Load(),
		LastStatus: d.lastStatus,
		LastError:  d.lastError,
	}
	if !d.lastRun.IsZero() {
		lastRun := d.lastRun
		health.LastRun = &lastRun
	}
	return health
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status     string     `json:"status"`
	Uptime     int64      `json:"uptime_seconds"`
	Passes     int64      `json:"passes"`
	LastStatus string     `json:"last_status"`
	LastError  string     `json:"last_error,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
}

// PassCount returns total batches run
func (d *Daemon) PassCount() int64 {
	return d.passCount.Load()
}

// Addr returns the address the metrics server listens on, once started
func (d *Daemon) Addr() string {
	addr, _ := d.listenAddr.Load().(string)
	return addr
}
