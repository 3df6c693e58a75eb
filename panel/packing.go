// ABOUTME: The packing lifecycle for the selected recipe: submit, poll to terminal, record result.
// ABOUTME: Result writes are keyed by the recipe id captured at submission time, not the current selection.
package panel

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"

	"github.com/oklog/ulid/v2"

	"github.com/allen-cell-animated/packing-workbench/packing"
)

// ErrPackingInProgress is returned when StartPacking is called while a
// previous submission is still in flight.
var ErrPackingInProgress = errors.New("a packing run is already in progress")

// StartPacking submits the selected recipe's effective document as a packing
// job and drives it to a terminal status, updating the recipe's result
// record as the status changes. A no-op when no recipe is selected or the
// selection is not loaded. The isPacking flag is held for the duration and
// always released, including on error.
func (s *Store) StartPacking(ctx context.Context) error {
	s.mu.Lock()
	rec, loaded := s.recipes[s.selectedRecipeID]
	if !loaded {
		s.mu.Unlock()
		return nil
	}
	if s.isPacking {
		s.mu.Unlock()
		return ErrPackingInProgress
	}
	// capture at submission time: the user may switch recipes mid-poll
	recipeID := s.selectedRecipeID
	configID := rec.ConfigID
	s.isPacking = true
	s.packingResults[recipeID] = EmptyPackingResult()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isPacking = false
		s.mu.Unlock()
	}()

	effective, err := rec.Effective()
	if err != nil {
		return fmt.Errorf("build effective recipe %s: %w", recipeID, err)
	}
	recipeJSON, err := packing.CanonicalJSON(effective)
	if err != nil {
		return err
	}

	runID := ulid.MustNew(ulid.Now(), rand.Reader)
	log.Printf("component=panel action=packing_submit run=%s recipe=%s", runID, recipeID)

	startedAt := s.now()

	result, err := s.runner.SubmitJob(ctx, recipeID, recipeJSON, configID)
	if err != nil {
		return fmt.Errorf("submit packing job for %s: %w", recipeID, err)
	}
	s.mergeResult(recipeID, func(r *PackingResult) { r.JobStatus = packing.StatusSubmitted })

	if !result.OK {
		logs := result.Logs()
		s.mergeResult(recipeID, func(r *PackingResult) {
			r.JobStatus = packing.StatusFailed
			r.JobLogs = logs
		})
		log.Printf("component=panel action=packing_rejected run=%s recipe=%s status_code=%d", runID, recipeID, result.StatusCode)
		return nil
	}

	jobID := result.JobID
	s.mergeResult(recipeID, func(r *PackingResult) {
		r.JobID = jobID
		r.JobStatus = packing.StatusStarting
	})
	log.Printf("component=panel action=packing_accepted run=%s recipe=%s job=%s", runID, recipeID, jobID)

	final, err := s.runner.PollJobStatus(ctx, jobID, func(status packing.JobStatus) {
		s.mergeResult(recipeID, func(r *PackingResult) { r.JobStatus = status })
	})
	if err != nil {
		return fmt.Errorf("poll job %s: %w", jobID, err)
	}

	runTime := s.now().Sub(startedAt).Seconds()

	if final.Status == packing.StatusDone {
		resultURL, err := s.runner.ResultURL(ctx, jobID)
		if err != nil {
			log.Printf("component=panel action=result_url_failed run=%s job=%s err=%v", runID, jobID, err)
		}
		outputsDir, err := s.runner.OutputsDirectory(ctx, jobID)
		if err != nil {
			log.Printf("component=panel action=outputs_dir_failed run=%s job=%s err=%v", runID, jobID, err)
		}
		s.mergeResult(recipeID, func(r *PackingResult) {
			r.JobStatus = packing.StatusDone
			r.ResultURL = resultURL
			r.OutputsDirectory = outputsDir
			r.RunTime = runTime
		})
		log.Printf("component=panel action=packing_done run=%s recipe=%s job=%s run_time=%.1fs", runID, recipeID, jobID, runTime)
		return nil
	}

	s.mergeResult(recipeID, func(r *PackingResult) {
		r.JobStatus = packing.StatusFailed
		r.JobLogs = final.ErrorMessage
		r.RunTime = runTime
	})
	log.Printf("component=panel action=packing_failed run=%s recipe=%s job=%s", runID, recipeID, jobID)
	return nil
}

// SetResult overwrites the packing result record for recipeID.
func (s *Store) SetResult(recipeID string, result PackingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packingResults[recipeID] = result
}

// mergeResult applies an update to recipeID's result record in place.
func (s *Store) mergeResult(recipeID string, update func(*PackingResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.packingResults[recipeID]
	if !ok {
		result = EmptyPackingResult()
	}
	update(&result)
	s.packingResults[recipeID] = result
}
