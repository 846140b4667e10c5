package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"factsync/services/inventory"
)

// Observer receives the results of a run. Observer errors are logged by the driver and never
// change the outcome of the run.
type Observer interface {
	Name() string
	// FactsPushed is called after Foreman accepted doc.
	FactsPushed(ctx context.Context, runID uuid.UUID, doc inventory.Document) error
	// RunFinished is called once per run, including runs that aborted.
	RunFinished(ctx context.Context, report *Report) error
}

// JournalRecorder persists run history. *inventory.Journal implements it.
type JournalRecorder interface {
	RecordFacts(ctx context.Context, runID uuid.UUID, host string, facts map[string]any) (map[string]map[string]any, error)
	RecordRemoval(ctx context.Context, runID uuid.UUID, host string) error
	RecordRun(ctx context.Context, run inventory.RunRecord) error
}

// JournalObserver writes pushed snapshots, removals and run summaries to the journal.
type JournalObserver struct {
	journal JournalRecorder
}

func NewJournalObserver(journal JournalRecorder) (*JournalObserver, error) {
	if journal == nil {
		return nil, errors.New("journal is required")
	}
	return &JournalObserver{journal: journal}, nil
}

func (o *JournalObserver) Name() string { return "journal" }

func (o *JournalObserver) FactsPushed(ctx context.Context, runID uuid.UUID, doc inventory.Document) error {
	_, err := o.journal.RecordFacts(ctx, runID, doc.Name, doc.Facts)
	return err
}

func (o *JournalObserver) RunFinished(ctx context.Context, report *Report) error {
	var errs []error
	for _, host := range report.Removed {
		if err := o.journal.RecordRemoval(ctx, report.ID, host); err != nil {
			errs = append(errs, err)
		}
	}
	err := o.journal.RecordRun(ctx, inventory.RunRecord{
		ID:         report.ID,
		Mode:       string(report.Mode),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Uploaded:   len(report.Uploaded),
		Failed:     len(report.UploadFailures),
		Removed:    len(report.Removed),
		Error:      report.Error,
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
