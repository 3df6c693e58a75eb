// ABOUTME: Job status enum for batch packing runs and the job-status document shape.
// ABOUTME: DONE and FAILED are the only terminal states; polling stops once either is observed.
package packing

// JobStatus is the string-valued status reported by the batch backend.
type JobStatus string

const (
	StatusSubmitted JobStatus = "SUBMITTED"
	StatusStarting  JobStatus = "STARTING"
	StatusRunning   JobStatus = "RUNNING"
	StatusDone      JobStatus = "DONE"
	StatusFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether polling should stop at this status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// JobStatusRecord is the job-status document read from the document backend.
type JobStatusRecord struct {
	Status           JobStatus `json:"status"`
	ErrorMessage     string    `json:"error_message"`
	OutputsDirectory string    `json:"outputs_directory"`
	ResultPath       string    `json:"result_path"`
}
