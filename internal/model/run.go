package model

import "time"

// RunStatus is the lifecycle state of a tracking run.
type RunStatus string

// Run status constants.
const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Vertical is a tracked market category, e.g. "SUV Cars".
type Vertical struct {
	Name        string
	Description string
	ID          int64
}

// Run groups the answers gathered in one tracking pass over a vertical.
type Run struct {
	CreatedAt   time.Time
	CompletedAt *time.Time
	ID          string
	Status      RunStatus
	VerticalID  int64
}

// Answer is one raw LLM-generated answer collected during a run.
type Answer struct {
	CreatedAt time.Time
	ID        string
	RunID     string
	Text      string
	Model     string
}
