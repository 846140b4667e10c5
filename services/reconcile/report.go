package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// Mode identifies how a run was started.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeSingle Mode = "single"
)

// HostError pairs a host with the error that stopped its processing.
type HostError struct {
	Host  string `json:"host"`
	Error string `json:"error"`
}

// Report describes the outcome of one run.
type Report struct {
	ID               uuid.UUID   `json:"id"`
	Mode             Mode        `json:"mode"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
	PuppetDBHosts    int         `json:"puppetdb_hosts"`
	ForemanHosts     int         `json:"foreman_hosts"`
	Uploaded         []string    `json:"uploaded"`
	UploadFailures   []HostError `json:"upload_failures"`
	Delta            []string    `json:"delta"`
	Removed          []string    `json:"removed"`
	DeleteFailures   []HostError `json:"delete_failures"`
	UnmanageFailures []HostError `json:"unmanage_failures"`
	Error            string      `json:"error,omitempty"`
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run finished without aborting.
func (r *Report) Succeeded() bool {
	return r.Error == ""
}
