package reconcile

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	gos3 "factsync/pkg/s3"
	"factsync/services/foreman"
	"factsync/services/inventory"
)

type fakeSource struct {
	hosts   []string
	facts   map[string][]inventory.Fact
	listErr error
	factErr map[string]error
}

func (f *fakeSource) ListHosts(context.Context) (inventory.HostSet, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return inventory.NewHostSet(f.hosts...), nil
}

func (f *fakeSource) GetFacts(_ context.Context, host string) ([]inventory.Fact, error) {
	if err := f.factErr[host]; err != nil {
		return nil, err
	}
	return f.facts[host], nil
}

type fakeSink struct {
	hosts       []string
	listErr     error
	uploadErr   map[string]error
	deleteErr   map[string]error
	unmanageErr map[string]error

	perPage  int
	calls    []string
	uploaded []inventory.Document
}

func (f *fakeSink) ListHosts(_ context.Context, perPage int) (inventory.HostSet, error) {
	f.perPage = perPage
	if f.listErr != nil {
		return nil, f.listErr
	}
	return inventory.NewHostSet(f.hosts...), nil
}

func (f *fakeSink) UploadFacts(_ context.Context, doc inventory.Document) (foreman.Response, error) {
	f.calls = append(f.calls, "upload:"+doc.Name)
	if err := f.uploadErr[doc.Name]; err != nil {
		return nil, err
	}
	f.uploaded = append(f.uploaded, doc)
	return foreman.Response{"name": doc.Name}, nil
}

func (f *fakeSink) DeleteHost(_ context.Context, host string) error {
	f.calls = append(f.calls, "delete:"+host)
	return f.deleteErr[host]
}

func (f *fakeSink) UnmanageHost(_ context.Context, host string) (foreman.Response, error) {
	f.calls = append(f.calls, "unmanage:"+host)
	if err := f.unmanageErr[host]; err != nil {
		return nil, err
	}
	return foreman.Response{"name": host, "managed": false}, nil
}

type recordingObserver struct {
	pushed  []string
	reports []*Report
	err     error
}

func (o *recordingObserver) Name() string { return "recording" }

func (o *recordingObserver) FactsPushed(_ context.Context, _ uuid.UUID, doc inventory.Document) error {
	o.pushed = append(o.pushed, doc.Name)
	return o.err
}

func (o *recordingObserver) RunFinished(_ context.Context, report *Report) error {
	o.reports = append(o.reports, report)
	return o.err
}

type fakeStore struct {
	mu      sync.Mutex
	objects []gos3.Object
	err     error
}

func (s *fakeStore) Put(_ context.Context, obj gos3.Object) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.objects = append(s.objects, obj)
	return "digest", nil
}

type publishedEvent struct {
	subject string
	payload any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, subj string, v any) error {
	p.events = append(p.events, publishedEvent{subject: subj, payload: v})
	return p.err
}

func newTestDriver(t *testing.T, source FactSource, sink FactSink, opts Options) (*Driver, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	if opts.Now == nil {
		start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		var tick int
		opts.Now = func() time.Time {
			tick++
			return start.Add(time.Duration(tick) * time.Second)
		}
	}
	driver, err := NewDriver(source, sink, log.New(&logs, "", 0), opts)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	return driver, &logs
}
