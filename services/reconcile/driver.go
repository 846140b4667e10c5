package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"factsync/pkg/apiclient"
	"factsync/services/foreman"
	"factsync/services/inventory"
)

// FactSource is the read side of a run: PuppetDB.
type FactSource interface {
	ListHosts(ctx context.Context) (inventory.HostSet, error)
	GetFacts(ctx context.Context, host string) ([]inventory.Fact, error)
}

// FactSink is the write side of a run: Foreman.
type FactSink interface {
	ListHosts(ctx context.Context, perPage int) (inventory.HostSet, error)
	UploadFacts(ctx context.Context, doc inventory.Document) (foreman.Response, error)
	DeleteHost(ctx context.Context, host string) error
	UnmanageHost(ctx context.Context, host string) (foreman.Response, error)
}

// Options tunes a Driver.
type Options struct {
	// PerPage is the page size for the single Foreman host listing.
	PerPage int
	// ContinueOnUnmanageError keeps cleaning up stale hosts after an unmanage call fails.
	// When false the first failure aborts the rest of the cleanup and is returned.
	ContinueOnUnmanageError bool
	Observers               []Observer
	Now                     func() time.Time
}

// Driver pushes PuppetDB facts into Foreman and removes hosts PuppetDB no longer knows.
// Every remote call is made sequentially.
type Driver struct {
	source FactSource
	sink   FactSink
	logger *log.Logger
	opts   Options
}

// NewDriver wires a Driver from its dependencies.
func NewDriver(source FactSource, sink FactSink, logger *log.Logger, opts Options) (*Driver, error) {
	if source == nil {
		return nil, errors.New("fact source is required")
	}
	if sink == nil {
		return nil, errors.New("fact sink is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.PerPage <= 0 {
		opts.PerPage = foreman.DefaultPerPage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Driver{source: source, sink: sink, logger: logger, opts: opts}, nil
}

// PushHost uploads the facts of a single host. An upload Foreman rejects is logged and
// reported through ok=false rather than an error; a PuppetDB failure is returned.
func (d *Driver) PushHost(ctx context.Context, host string) (foreman.Response, bool, error) {
	if host == "" {
		return nil, false, errors.New("host is required")
	}

	report := d.newReport(ModeSingle)

	facts, err := d.source.GetFacts(ctx, host)
	if err != nil {
		d.finish(ctx, report, err)
		return nil, false, err
	}

	doc := inventory.Squash(host, facts)
	resp, err := d.sink.UploadFacts(ctx, doc)
	if err != nil {
		d.logger.Printf("WARN could not push %s: %v", host, err)
		report.UploadFailures = append(report.UploadFailures, HostError{Host: host, Error: err.Error()})
		d.finish(ctx, report, nil)
		return nil, false, nil
	}

	report.Uploaded = append(report.Uploaded, host)
	d.factsPushed(ctx, report.ID, doc)
	d.finish(ctx, report, nil)
	return resp, true, nil
}

// Sync runs a full reconciliation: push facts for every PuppetDB host, then delete and
// unmanage every Foreman host PuppetDB does not report. The returned report is never nil.
func (d *Driver) Sync(ctx context.Context) (*Report, error) {
	report := d.newReport(ModeFull)
	err := d.sync(ctx, report)
	d.finish(ctx, report, err)
	return report, err
}

func (d *Driver) sync(ctx context.Context, report *Report) error {
	puppetdbHosts, err := d.source.ListHosts(ctx)
	if err != nil {
		return err
	}
	foremanHosts, err := d.sink.ListHosts(ctx, d.opts.PerPage)
	if err != nil {
		return err
	}
	report.PuppetDBHosts = puppetdbHosts.Len()
	report.ForemanHosts = foremanHosts.Len()

	for _, host := range puppetdbHosts.Sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := d.pushOne(ctx, host)
		if err != nil {
			d.logger.Printf("WARN could not push %s: %v", host, err)
			report.UploadFailures = append(report.UploadFailures, HostError{Host: host, Error: err.Error()})
			continue
		}
		report.Uploaded = append(report.Uploaded, host)
		d.factsPushed(ctx, report.ID, doc)
	}

	report.Delta = inventory.Delta(puppetdbHosts, foremanHosts).Sorted()
	for _, host := range report.Delta {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.removeOne(ctx, report, host); err != nil {
			return fmt.Errorf("clean up stale hosts: %w", err)
		}
	}
	return nil
}

func (d *Driver) pushOne(ctx context.Context, host string) (inventory.Document, error) {
	facts, err := d.source.GetFacts(ctx, host)
	if err != nil {
		return inventory.Document{}, err
	}
	doc := inventory.Squash(host, facts)
	if _, err := d.sink.UploadFacts(ctx, doc); err != nil {
		return inventory.Document{}, err
	}
	return doc, nil
}

// removeOne deletes host and then flags it unmanaged. The host counts as removed only when
// the delete succeeded and the unmanage succeeded or found the host already gone. Only an
// unmanage failure that should stop the cleanup is returned.
func (d *Driver) removeOne(ctx context.Context, report *Report, host string) error {
	deleted := true
	if err := d.sink.DeleteHost(ctx, host); err != nil {
		d.logger.Printf("WARN could not delete %s: %v", host, err)
		report.DeleteFailures = append(report.DeleteFailures, HostError{Host: host, Error: err.Error()})
		deleted = false
	}

	_, err := d.sink.UnmanageHost(ctx, host)
	switch {
	case err == nil:
	case apiclient.IsStatus(err, http.StatusNotFound):
		d.logger.Printf("INFO host %s already gone from foreman", host)
	default:
		report.UnmanageFailures = append(report.UnmanageFailures, HostError{Host: host, Error: err.Error()})
		if !d.opts.ContinueOnUnmanageError {
			return err
		}
		d.logger.Printf("WARN could not unmanage %s: %v", host, err)
		return nil
	}

	if deleted {
		report.Removed = append(report.Removed, host)
	}
	return nil
}

func (d *Driver) newReport(mode Mode) *Report {
	return &Report{
		ID:        uuid.New(),
		Mode:      mode,
		StartedAt: d.opts.Now().UTC(),
	}
}

func (d *Driver) finish(ctx context.Context, report *Report, err error) {
	report.FinishedAt = d.opts.Now().UTC()
	if err != nil {
		report.Error = err.Error()
	}
	// Observers still run when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, obs := range d.opts.Observers {
		if obsErr := obs.RunFinished(ctx, report); obsErr != nil {
			d.logger.Printf("WARN %s: record run %s: %v", obs.Name(), report.ID, obsErr)
		}
	}
}

func (d *Driver) factsPushed(ctx context.Context, runID uuid.UUID, doc inventory.Document) {
	for _, obs := range d.opts.Observers {
		if err := obs.FactsPushed(ctx, runID, doc); err != nil {
			d.logger.Printf("WARN %s: record facts for %s: %v", obs.Name(), doc.Name, err)
		}
	}
}
