package reconcile

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Daemon repeats full runs on a fixed interval.
type Daemon struct {
	driver   *Driver
	interval time.Duration
	logger   *log.Logger
	ready    atomic.Bool
}

func NewDaemon(driver *Driver, interval time.Duration, logger *log.Logger) (*Daemon, error) {
	if driver == nil {
		return nil, errors.New("driver is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Daemon{driver: driver, interval: interval, logger: logger}, nil
}

// Run syncs immediately and then once per interval until ctx is cancelled. Failed runs are
// logged and retried on the next tick.
func (d *Daemon) Run(ctx context.Context) error {
	d.runOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

// Ready reports whether at least one run has completed.
func (d *Daemon) Ready() bool {
	return d.ready.Load()
}

func (d *Daemon) runOnce(ctx context.Context) {
	report, err := d.driver.Sync(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.logger.Printf("ERROR run %s failed: %v", report.ID, err)
	} else {
		d.logger.Printf("INFO run %s pushed %d hosts, removed %d in %s",
			report.ID, len(report.Uploaded), len(report.Removed), report.Duration())
	}
	d.ready.Store(true)
}

// Routes exposes health, readiness and metrics endpoints.
func (d *Daemon) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready() {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "first run not finished", http.StatusServiceUnavailable)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}
