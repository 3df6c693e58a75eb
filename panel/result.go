// ABOUTME: Per-recipe packing result record tracking the most recent job run.
// ABOUTME: Reset to the empty sentinel when a new submission begins; overwritten, never deleted.
package panel

import "github.com/allen-cell-animated/packing-workbench/packing"

// PackingResult tracks the most recent packing run for one recipe.
// A zero JobStatus means no job has run yet; RunTime -1 means not yet run.
type PackingResult struct {
	JobID            string            `json:"job_id"`
	JobStatus        packing.JobStatus `json:"job_status"`
	JobLogs          string            `json:"job_logs,omitempty"`
	ResultURL        string            `json:"result_url,omitempty"`
	RunTime          float64           `json:"run_time"`
	OutputsDirectory string            `json:"outputs_directory,omitempty"`
}

// EmptyPackingResult is the sentinel installed when a submission begins and
// returned for recipes that have never packed.
func EmptyPackingResult() PackingResult {
	return PackingResult{RunTime: -1}
}
