package domain

import "time"

// RefreshState is the state of the feed synchronizer.
type RefreshState string

const (
	RefreshIdle       RefreshState = "IDLE"
	RefreshRefreshing RefreshState = "REFRESHING"
)

// ReasonAlreadyInProgress is reported when a refresh is requested while one is running.
const ReasonAlreadyInProgress = "already in progress"

// RefreshTicket is the immediate answer to a refresh request.
type RefreshTicket struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	JobID    string `json:"job_id,omitempty"`
}

// JobOutcome is the terminal (or running) state of a refresh job.
type JobOutcome string

const (
	JobRunning   JobOutcome = "running"
	JobSucceeded JobOutcome = "succeeded"
	JobFailed    JobOutcome = "failed"
)

// RefreshJob describes one refresh run.
type RefreshJob struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at,omitempty"`
	Outcome         JobOutcome `json:"outcome"`
	Error           string     `json:"error,omitempty"`
	RecordsIngested int        `json:"records_ingested"`
	Generation      uint64     `json:"generation"`
}

// SyncStatus is the observable state of the synchronizer, polled by clients.
type SyncStatus struct {
	State   RefreshState `json:"state"`
	Current *RefreshJob  `json:"current,omitempty"`
	Last    *RefreshJob  `json:"last,omitempty"`
}
