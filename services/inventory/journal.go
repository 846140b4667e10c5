package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"factsync/pkg/db"
)

const (
	auditActor       = "factsync"
	auditFactsPushed = "facts_pushed"
	auditHostRemoved = "host_removed"
)

// RunRecord summarises one reconcile run for the sync_runs table.
type RunRecord struct {
	ID         uuid.UUID
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Uploaded   int
	Failed     int
	Removed    int
	Error      string
}

// Journal records pushed fact snapshots and host removals in Postgres, writing an audit
// entry describing what changed for each host.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal constructs a Journal backed by pool.
func NewJournal(pool *pgxpool.Pool) (*Journal, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &Journal{pool: pool}, nil
}

// RecordFacts stores the snapshot pushed for host and returns the changes relative to the
// previous snapshot recorded for the same host.
func (j *Journal) RecordFacts(ctx context.Context, runID uuid.UUID, host string, facts map[string]any) (map[string]map[string]any, error) {
	if host == "" {
		return nil, errors.New("host is required")
	}
	if facts == nil {
		facts = map[string]any{}
	}

	previous, err := j.previousSnapshot(ctx, host)
	if err != nil && !pgxscan.NotFound(err) {
		return nil, err
	}

	snapshotBytes, err := json.Marshal(facts)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(ctx, j.pool, `
INSERT INTO host_facts (id, run_id, host, snapshot, created_at)
VALUES ($1, $2, $3, $4::jsonb, $5)
`, uuid.New(), runID, host, snapshotBytes, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	current, err := decodeSnapshot(snapshotBytes)
	if err != nil {
		return nil, err
	}
	diff := Diff(previous, current)
	details := map[string]any{
		"run_id":  runID.String(),
		"changes": diff,
	}
	if err := j.insertAudit(ctx, auditFactsPushed, host, details); err != nil {
		return nil, err
	}
	return diff, nil
}

// RecordRemoval writes an audit entry for a host deleted from Foreman.
func (j *Journal) RecordRemoval(ctx context.Context, runID uuid.UUID, host string) error {
	return j.insertAudit(ctx, auditHostRemoved, host, map[string]any{
		"run_id": runID.String(),
	})
}

// RecordRun inserts the summary row for a finished run.
func (j *Journal) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := db.Exec(ctx, j.pool, `
INSERT INTO sync_runs (id, mode, started_at, finished_at, uploaded, failed, removed, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`, run.ID, run.Mode, run.StartedAt, run.FinishedAt, run.Uploaded, run.Failed, run.Removed, run.Error)
	return err
}

func (j *Journal) previousSnapshot(ctx context.Context, host string) (map[string]any, error) {
	var raw []byte
	err := db.Get(ctx, j.pool, &raw, `
SELECT snapshot
FROM host_facts
WHERE host = $1
ORDER BY created_at DESC
LIMIT 1
`, host)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	return decodeSnapshot(raw)
}

// decodeSnapshot reads a stored snapshot with numbers kept as json.Number, the form fact
// values arrive in from PuppetDB.
func decodeSnapshot(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var snapshot map[string]any
	if err := dec.Decode(&snapshot); err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return snapshot, nil
}

func (j *Journal) insertAudit(ctx context.Context, action, obj string, details map[string]any) error {
	detailsBytes, err := json.Marshal(details)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, j.pool, `
INSERT INTO audit (actor, action, obj, details)
VALUES ($1, $2, $3, $4::jsonb)
`, auditActor, action, obj, detailsBytes)
	return err
}
