package models

// EventType identifies events published on the event service.
type EventType string

const (
	// EventJobStatusChange fires exactly once per persisted status
	// transition of a job.
	EventJobStatusChange EventType = "job_status_change"
	// EventJobProgress fires at page granularity while a job runs.
	EventJobProgress EventType = "job_progress"
	// EventLibraryChange fires when the set of indexed libraries or
	// versions changes. It carries no payload.
	EventLibraryChange EventType = "library_change"
)

// Event is the envelope published on the event service.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// JobStatusChangePayload mirrors the persisted transition.
type JobStatusChangePayload struct {
	ID      string    `json:"id"`
	Library string    `json:"library"`
	Version string    `json:"version"`
	Status  JobStatus `json:"status"`
	Error   string    `json:"error,omitempty"`
}

// JobProgressPayload carries the job snapshot plus the progress event.
type JobProgressPayload struct {
	Job      *Job          `json:"job"`
	Progress ProgressEvent `json:"progress"`
}
