// Package status records the state of data generation runs and guards
// against two runs overlapping.
package status

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of a generation run
type State string

const (
	// Never means no run has been recorded
	Never State = "never"
	// Scheduled means a run was requested and has not started
	Scheduled State = "scheduled"
	// Running means a run holds the lock
	Running State = "running"
	// Success means the last run finished without error
	Success State = "success"
	// Failed means the last run returned an error
	Failed State = "failed"
)

// ErrBusy is returned by Acquire while another run holds the lock
var ErrBusy = errors.New("data generation already running")

// Status is the last recorded generation state
type Status struct {
	State      State      `json:"state"`
	RunID      string     `json:"run_id,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Contacts   int64      `json:"contacts,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Store defines the interface for status backends
type Store interface {
	// Acquire takes the generation lock for runID. The lock expires after
	// ttl so a crashed run cannot block generation forever.
	Acquire(ctx context.Context, runID string, ttl time.Duration) error

	// Release gives up the lock if runID still holds it
	Release(ctx context.Context, runID string) error

	// Get returns the last recorded status
	Get(ctx context.Context) (Status, error)

	// Set records a status
	Set(ctx context.Context, s Status) error
}

// Config holds common configuration for status backends
type Config struct {
	// LockTTL bounds how long a run may hold the lock
	LockTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultConfig returns a default status configuration
func DefaultConfig() Config {
	return Config{
		LockTTL: time.Hour,
		Prefix:  "sumfields:",
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// MarkScheduled records that a run was requested
func MarkScheduled(ctx context.Context, s Store, now time.Time) error {
	return s.Set(ctx, Status{State: Scheduled, UpdatedAt: now})
}

// MarkRunning records the start of a run
func MarkRunning(ctx context.Context, s Store, runID string, now time.Time) error {
	return s.Set(ctx, Status{
		State:     Running,
		RunID:     runID,
		UpdatedAt: now,
		StartedAt: timePtr(now),
	})
}

// MarkFinished records the outcome of a run
func MarkFinished(ctx context.Context, s Store, runID string, started, now time.Time, contacts int64, runErr error) error {
	st := Status{
		State:      Success,
		RunID:      runID,
		UpdatedAt:  now,
		StartedAt:  timePtr(started),
		FinishedAt: timePtr(now),
		Contacts:   contacts,
	}
	if runErr != nil {
		st.State = Failed
		st.Contacts = 0
		st.Error = runErr.Error()
	}
	return s.Set(ctx, st)
}
