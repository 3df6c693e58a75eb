// ABOUTME: Stateless client for the batch packing backend: submit a job, poll its
// ABOUTME: status document until terminal, and build the external viewer URL for a result.
package packing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/allen-cell-animated/packing-workbench/docstore"
)

// Document references passed to the batch backend, resolved by it against
// the document store: "<source>:<collection>/<id>".
const (
	refRecipes       = "firebase:recipes/"
	refEditedRecipes = "firebase:recipes_edited/"
	refConfigs       = "firebase:configs/"
)

// ErrPollLimit is returned when PollJobStatus gives up after MaxPolls polls
// without reaching a terminal status.
var ErrPollLimit = fmt.Errorf("job status poll limit reached")

// Client talks to the batch submission endpoint and the document backend.
type Client struct {
	SubmitURL     string // batch submission endpoint
	ViewerBaseURL string // external viewer base; result paths are appended
	Docs          docstore.Store
	HTTPClient    *http.Client
	Poll          PollPolicy

	// NewID mints ids for uploaded edited recipes. Defaults to a random
	// UUID; overridable in tests.
	NewID func() string
}

// NewClient creates a Client with a timeout-bounded HTTP client and default
// poll pacing.
func NewClient(submitURL, viewerBaseURL string, docs docstore.Store) *Client {
	return &Client{
		SubmitURL:     submitURL,
		ViewerBaseURL: viewerBaseURL,
		Docs:          docs,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		NewID:         uuid.NewString,
	}
}

// SubmitResult is the outcome of a submission request. Callers branch on OK;
// on success JobID carries the backend-issued id, otherwise Body holds the
// error payload.
type SubmitResult struct {
	OK         bool
	StatusCode int
	JobID      string
	Body       map[string]any
}

// Logs renders the response payload for failure logs.
func (r *SubmitResult) Logs() string {
	raw, err := json.Marshal(r.Body)
	if err != nil {
		return fmt.Sprintf("%v", r.Body)
	}
	return string(raw)
}

// SubmitJob submits a packing job for recipeID. When the effective recipe
// differs from the stored canonical one, the edited document is first
// uploaded under a fresh id and the submission references that id instead;
// an upload failure aborts the submission before the POST is issued.
func (c *Client) SubmitJob(ctx context.Context, recipeID, recipeJSON, configID string) (*SubmitResult, error) {
	recipeRef := refRecipes + recipeID

	changed, err := c.RecipeHasChanged(ctx, recipeID, recipeJSON)
	if err != nil {
		return nil, err
	}
	if changed {
		newID := c.newID()
		recipeRef = refEditedRecipes + newID
		doc, err := ToStoredDocument(recipeJSON, recipeRef, newID)
		if err != nil {
			return nil, err
		}
		if err := c.Docs.Put(ctx, docstore.CollectionEditedRecipes, newID, doc); err != nil {
			return nil, fmt.Errorf("upload edited recipe: %w", err)
		}
		log.Printf("component=packing action=edited_recipe_uploaded recipe=%s edited_id=%s", recipeID, newID)
	}

	query := url.Values{}
	query.Set("recipe", recipeRef)
	if configID != "" {
		query.Set("config", refConfigs+configID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SubmitURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit packing job: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}

	result := &SubmitResult{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result.Body); err != nil {
			return nil, fmt.Errorf("parse submit response: %w", err)
		}
	}
	if jobID, ok := result.Body["jobId"].(string); ok {
		result.JobID = jobID
	}
	return result, nil
}

// PollJobStatus polls the job-status document for jobID until it reports a
// terminal status, honoring ctx cancellation at every sleep boundary.
// onStatus fires exactly when the observed status changes between polls, not
// on every poll. A missing status document keeps the loop polling.
func (c *Client) PollJobStatus(ctx context.Context, jobID string, onStatus func(JobStatus)) (JobStatusRecord, error) {
	rec, ok, err := c.jobStatus(ctx, jobID)
	if err != nil {
		return JobStatusRecord{}, err
	}

	var last JobStatus
	if ok {
		last = rec.Status
	}

	for poll := 0; !ok || !rec.Status.IsTerminal(); poll++ {
		if c.Poll.MaxPolls > 0 && poll >= c.Poll.MaxPolls {
			return JobStatusRecord{}, fmt.Errorf("%w: job=%s polls=%d", ErrPollLimit, jobID, poll)
		}

		if err := sleep(ctx, c.Poll.DelayForPoll(poll)); err != nil {
			return JobStatusRecord{}, err
		}

		next, nextOK, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return JobStatusRecord{}, err
		}
		if !nextOK {
			continue
		}
		if next.Status != last {
			last = next.Status
			if onStatus != nil {
				onStatus(next.Status)
			}
		}
		rec, ok = next, true
	}
	return rec, nil
}

// ResultURL builds the external viewer URL for a finished job by appending
// the stored result path to the viewer base URL.
func (c *Client) ResultURL(ctx context.Context, jobID string) (string, error) {
	doc, ok, err := c.Docs.QueryByID(ctx, docstore.CollectionResults, jobID)
	if err != nil {
		return "", fmt.Errorf("fetch result for job %s: %w", jobID, err)
	}
	if !ok {
		return "", fmt.Errorf("no result recorded for job %s", jobID)
	}
	path, _ := doc.Data[docstore.FieldURL].(string)
	return c.ViewerBaseURL + path, nil
}

// OutputsDirectory returns the outputs directory recorded in the job-status
// document, or "" when none is present.
func (c *Client) OutputsDirectory(ctx context.Context, jobID string) (string, error) {
	rec, ok, err := c.jobStatus(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return rec.OutputsDirectory, nil
}

func (c *Client) jobStatus(ctx context.Context, jobID string) (JobStatusRecord, bool, error) {
	doc, ok, err := c.Docs.QueryByID(ctx, docstore.CollectionJobStatus, jobID)
	if err != nil {
		return JobStatusRecord{}, false, fmt.Errorf("fetch status for job %s: %w", jobID, err)
	}
	if !ok {
		return JobStatusRecord{}, false, nil
	}

	rec := JobStatusRecord{}
	if s, ok := doc.Data["status"].(string); ok {
		rec.Status = JobStatus(s)
	}
	if s, ok := doc.Data["error_message"].(string); ok {
		rec.ErrorMessage = s
	}
	if s, ok := doc.Data["outputs_directory"].(string); ok {
		rec.OutputsDirectory = s
	}
	if s, ok := doc.Data["result_path"].(string); ok {
		rec.ResultPath = s
	}
	return rec, true, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
