package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/nats-io/nats.go"

	"factsync/pkg/apiclient"
	"factsync/pkg/bus"
	"factsync/pkg/db"
	gos3 "factsync/pkg/s3"
	"factsync/services/factsync/internal/config"
	"factsync/services/foreman"
	"factsync/services/inventory"
	"factsync/services/puppetdb"
	"factsync/services/reconcile"
)

// app holds the wired clients and sinks for one invocation.
type app struct {
	cfg        config.Config
	logger     *log.Logger
	driver     *reconcile.Driver
	metrics    *reconcile.Metrics
	middleware func(http.Handler) http.Handler
	closers    []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: reconcile.NewMetrics()}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	if !cfg.TLS.Verify {
		logger.Printf("WARN tls verification is disabled for puppetdb and foreman")
	}

	httpClient, err := apiclient.NewHTTPClient(cfg.ClientOptions())
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}

	source, err := puppetdb.NewClient(cfg.PuppetDB.URL, httpClient, logger)
	if err != nil {
		return err
	}
	sink, err := foreman.NewClient(cfg.Foreman.URL, foreman.Credentials{
		Username: cfg.Foreman.Username,
		Password: cfg.Foreman.Password,
	}, httpClient)
	if err != nil {
		return err
	}

	observers := []reconcile.Observer{a.metrics}

	if cfg.Journal.DatabaseURL != "" {
		obs, err := a.openJournal(ctx, cfg.Journal.DatabaseURL)
		if err != nil {
			return err
		}
		observers = append(observers, obs)
	}

	if cfg.Events.NATSURL != "" {
		b, err := bus.New(cfg.Events.NATSURL, nats.Name(serviceName))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		err = b.EnsureStream(ctx, bus.StreamConfig{
			Name:     cfg.Events.Stream,
			Subjects: []string{reconcile.EventSubjects},
			MaxAge:   cfg.Events.MaxAge,
		})
		if err != nil {
			return err
		}
		obs, err := reconcile.NewEventObserver(b)
		if err != nil {
			return err
		}
		observers = append(observers, obs)
	}

	if cfg.Archive.Bucket != "" {
		store, err := gos3.NewClientFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		obs, err := reconcile.NewArchiveObserver(store, cfg.Archive.Bucket, cfg.Archive.AgeRecipient)
		if err != nil {
			return err
		}
		observers = append(observers, obs)
	}

	a.driver, err = reconcile.NewDriver(source, sink, logger, reconcile.Options{
		PerPage:                 cfg.Foreman.PerPage,
		ContinueOnUnmanageError: cfg.Cleanup.ContinueOnUnmanageError,
		Observers:               observers,
	})
	return err
}

func (a *app) openJournal(ctx context.Context, dsn string) (*reconcile.JournalObserver, error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	journal, err := inventory.NewJournal(pool)
	if err != nil {
		return nil, err
	}
	return reconcile.NewJournalObserver(journal)
}

// pushMetrics sends the one-shot run metrics to the configured Pushgateway.
func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(context.WithoutCancel(ctx), a.cfg.Metrics.PushgatewayURL, serviceName); err != nil {
		a.logger.Printf("WARN push metrics: %v", err)
	}
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
