package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"factsync/services/inventory"
)

// EventSubjects matches every subject EventObserver publishes on.
const EventSubjects = "factsync.>"

const (
	factsUploadedSubject = "factsync.facts.uploaded"
	hostsRemovedSubject  = "factsync.hosts.removed"
	runsFinishedSubject  = "factsync.runs.finished"
)

// Publisher sends JSON events. *bus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

type factsUploadedEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	Host      string    `json:"host"`
	FactCount int       `json:"fact_count"`
}

type hostRemovedEvent struct {
	RunID uuid.UUID `json:"run_id"`
	Host  string    `json:"host"`
}

type runFinishedEvent struct {
	RunID            uuid.UUID `json:"run_id"`
	Mode             Mode      `json:"mode"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Uploaded         int       `json:"uploaded"`
	UploadFailures   int       `json:"upload_failures"`
	Removed          int       `json:"removed"`
	UnmanageFailures int       `json:"unmanage_failures"`
	Error            string    `json:"error,omitempty"`
}

// EventObserver announces pushed facts, removed hosts and finished runs on the bus.
type EventObserver struct {
	pub Publisher
}

func NewEventObserver(pub Publisher) (*EventObserver, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	return &EventObserver{pub: pub}, nil
}

func (o *EventObserver) Name() string { return "events" }

func (o *EventObserver) FactsPushed(ctx context.Context, runID uuid.UUID, doc inventory.Document) error {
	return o.pub.Publish(ctx, factsUploadedSubject, factsUploadedEvent{
		RunID:     runID,
		Host:      doc.Name,
		FactCount: len(doc.Facts),
	})
}

func (o *EventObserver) RunFinished(ctx context.Context, report *Report) error {
	var errs []error
	for _, host := range report.Removed {
		if err := o.pub.Publish(ctx, hostsRemovedSubject, hostRemovedEvent{RunID: report.ID, Host: host}); err != nil {
			errs = append(errs, err)
		}
	}
	err := o.pub.Publish(ctx, runsFinishedSubject, runFinishedEvent{
		RunID:            report.ID,
		Mode:             report.Mode,
		StartedAt:        report.StartedAt,
		FinishedAt:       report.FinishedAt,
		Uploaded:         len(report.Uploaded),
		UploadFailures:   len(report.UploadFailures),
		Removed:          len(report.Removed),
		UnmanageFailures: len(report.UnmanageFailures),
		Error:            report.Error,
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
