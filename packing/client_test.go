// ABOUTME: Tests for job submission branching, status polling, and viewer URL construction.
// ABOUTME: Uses httptest for the batch endpoint and the memory document store as backend.
package packing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/allen-cell-animated/packing-workbench/docstore"
	"github.com/allen-cell-animated/packing-workbench/packing"
	"github.com/allen-cell-animated/packing-workbench/recipe"
)

func urlEncode(s string) string { return url.QueryEscape(s) }

func contains(s, substr string) bool { return strings.Contains(s, substr) }

func newSubmitServer(t *testing.T, body string, status int) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("submit method = %s, want POST", r.Method)
		}
		queries = append(queries, r.URL.RawQuery)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func TestSubmitJobUnchangedRecipe(t *testing.T) {
	ctx := context.Background()
	srv, queries := newSubmitServer(t, `{"jobId":"job-2"}`, http.StatusOK)

	store := docstore.NewMemoryStore()
	canonical := recipe.Document{"name": "one_sphere", "version": "1.0.0"}
	_ = store.Put(ctx, docstore.CollectionRecipes, "r1", canonical)

	client := packing.NewClient(srv.URL, "https://viewer.example/", store)

	result, err := client.SubmitJob(ctx, "r1", mustJSON(t, canonical), "")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if !result.OK || result.JobID != "job-2" {
		t.Errorf("result = %+v", result)
	}

	// no edited recipe was written
	docs, _ := store.QueryAll(ctx, docstore.CollectionEditedRecipes)
	if len(docs) != 0 {
		t.Errorf("edited recipes written = %d, want 0", len(docs))
	}

	if len(*queries) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(*queries))
	}
	want := "recipe=" + urlEncode("firebase:recipes/r1")
	if (*queries)[0] != want {
		t.Errorf("query = %q, want %q", (*queries)[0], want)
	}
}

func TestSubmitJobChangedRecipe(t *testing.T) {
	ctx := context.Background()
	srv, queries := newSubmitServer(t, `{"jobId":"job-1"}`, http.StatusOK)

	store := docstore.NewMemoryStore()
	_ = store.Put(ctx, docstore.CollectionRecipes, "r1", recipe.Document{"name": "one_sphere", "version": "1.0.0"})

	client := packing.NewClient(srv.URL, "https://viewer.example/", store)
	client.NewID = func() string { return "uuid-123" }

	result, err := client.SubmitJob(ctx, "r1", `{"name":"one_sphere","version":"1.0.1"}`, "cfg-1")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if !result.OK || result.JobID != "job-1" {
		t.Errorf("result = %+v", result)
	}

	// exactly one edited recipe, stamped with path and id
	docs, _ := store.QueryAll(ctx, docstore.CollectionEditedRecipes)
	if len(docs) != 1 {
		t.Fatalf("edited recipes written = %d, want 1", len(docs))
	}
	if docs[0].ID != "uuid-123" {
		t.Errorf("edited id = %s", docs[0].ID)
	}
	if docs[0].Data[docstore.FieldRecipePath] != "firebase:recipes_edited/uuid-123" {
		t.Errorf("recipe_path = %v", docs[0].Data[docstore.FieldRecipePath])
	}

	// POST references the edited recipe and the config
	if len(*queries) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(*queries))
	}
	query := (*queries)[0]
	if !contains(query, "recipe="+urlEncode("firebase:recipes_edited/uuid-123")) {
		t.Errorf("query %q missing edited recipe ref", query)
	}
	if !contains(query, "config="+urlEncode("firebase:configs/cfg-1")) {
		t.Errorf("query %q missing config ref", query)
	}
}

func TestSubmitJobErrorResponse(t *testing.T) {
	ctx := context.Background()
	srv, _ := newSubmitServer(t, `{"message":"bad request"}`, http.StatusBadRequest)

	store := docstore.NewMemoryStore()
	_ = store.Put(ctx, docstore.CollectionRecipes, "r1", recipe.Document{"name": "r1"})

	client := packing.NewClient(srv.URL, "https://viewer.example/", store)
	result, err := client.SubmitJob(ctx, "r1", `{"name":"r1"}`, "")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if result.OK {
		t.Error("result.OK for 400 response")
	}
	if !contains(result.Logs(), "bad request") {
		t.Errorf("Logs() = %q", result.Logs())
	}
}

// failingStore wraps a Store and fails every Put.
type failingStore struct {
	docstore.Store
}

func (f *failingStore) Put(context.Context, string, string, map[string]any) error {
	return errors.New("backend write refused")
}

func TestSubmitJobUploadFailureAbortsPost(t *testing.T) {
	ctx := context.Background()
	srv, queries := newSubmitServer(t, `{"jobId":"never"}`, http.StatusOK)

	mem := docstore.NewMemoryStore()
	_ = mem.Put(ctx, docstore.CollectionRecipes, "r1", recipe.Document{"name": "r1"})

	client := packing.NewClient(srv.URL, "https://viewer.example/", &failingStore{Store: mem})
	_, err := client.SubmitJob(ctx, "r1", `{"name":"changed"}`, "")
	if err == nil {
		t.Fatal("expected upload error")
	}
	if len(*queries) != 0 {
		t.Errorf("submit POST issued after upload failure (%d calls)", len(*queries))
	}
}

// scriptedStatus serves a scripted sequence of job-status documents, holding
// the final entry once exhausted.
type scriptedStatus struct {
	docstore.Store
	mu       sync.Mutex
	sequence []string
	i        int
}

func (s *scriptedStatus) QueryByID(ctx context.Context, collection, id string) (docstore.Doc, bool, error) {
	if collection != docstore.CollectionJobStatus {
		return s.Store.QueryByID(ctx, collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.sequence[s.i]
	if s.i < len(s.sequence)-1 {
		s.i++
	}
	if status == "" {
		return docstore.Doc{}, false, nil
	}
	return docstore.Doc{ID: id, Data: map[string]any{
		"status":            status,
		"error_message":     "",
		"outputs_directory": "/outputs/" + id,
		"result_path":       "/result/path.sim",
	}}, true, nil
}

func TestPollJobStatusFiresCallbackOnChangeOnly(t *testing.T) {
	store := &scriptedStatus{
		Store:    docstore.NewMemoryStore(),
		sequence: []string{"STARTING", "STARTING", "RUNNING", "DONE"},
	}
	client := packing.NewClient("http://batch.invalid", "https://viewer.example/", store)
	client.Poll = packing.PollPolicy{Interval: time.Millisecond}

	var seen []packing.JobStatus
	final, err := client.PollJobStatus(context.Background(), "job-xyz", func(s packing.JobStatus) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("PollJobStatus: %v", err)
	}
	if final.Status != packing.StatusDone {
		t.Errorf("final status = %s, want DONE", final.Status)
	}
	if len(seen) != 2 || seen[0] != packing.StatusRunning || seen[1] != packing.StatusDone {
		t.Errorf("onStatus calls = %v, want [RUNNING DONE]", seen)
	}
}

func TestPollJobStatusToleratesMissingDocument(t *testing.T) {
	store := &scriptedStatus{
		Store:    docstore.NewMemoryStore(),
		sequence: []string{"", "", "RUNNING", "FAILED"},
	}
	client := packing.NewClient("http://batch.invalid", "https://viewer.example/", store)
	client.Poll = packing.PollPolicy{Interval: time.Millisecond}

	final, err := client.PollJobStatus(context.Background(), "job-1", nil)
	if err != nil {
		t.Fatalf("PollJobStatus: %v", err)
	}
	if final.Status != packing.StatusFailed {
		t.Errorf("final status = %s, want FAILED", final.Status)
	}
}

func TestPollJobStatusHonorsCancellation(t *testing.T) {
	store := &scriptedStatus{
		Store:    docstore.NewMemoryStore(),
		sequence: []string{"RUNNING"},
	}
	client := packing.NewClient("http://batch.invalid", "https://viewer.example/", store)
	client.Poll = packing.PollPolicy{Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.PollJobStatus(ctx, "job-1", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPollJobStatusMaxPolls(t *testing.T) {
	store := &scriptedStatus{
		Store:    docstore.NewMemoryStore(),
		sequence: []string{"RUNNING"},
	}
	client := packing.NewClient("http://batch.invalid", "https://viewer.example/", store)
	client.Poll = packing.PollPolicy{Interval: time.Millisecond, MaxPolls: 3}

	_, err := client.PollJobStatus(context.Background(), "job-1", nil)
	if !errors.Is(err, packing.ErrPollLimit) {
		t.Errorf("err = %v, want ErrPollLimit", err)
	}
}

func TestResultURL(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	_ = store.Put(ctx, docstore.CollectionResults, "job-9", map[string]any{"url": "/result/path.sim"})

	client := packing.NewClient("http://batch.invalid", "https://viewer.example/embed?trajUrl=", store)

	url, err := client.ResultURL(ctx, "job-9")
	if err != nil {
		t.Fatalf("ResultURL: %v", err)
	}
	if url != "https://viewer.example/embed?trajUrl=/result/path.sim" {
		t.Errorf("url = %q", url)
	}

	if _, err := client.ResultURL(ctx, "job-missing"); err == nil {
		t.Error("expected error for job with no result")
	}
}

func TestOutputsDirectory(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	_ = store.Put(ctx, docstore.CollectionJobStatus, "job-9", map[string]any{
		"status":            "DONE",
		"outputs_directory": "/outputs/job-9",
	})

	client := packing.NewClient("http://batch.invalid", "https://viewer.example/", store)
	dir, err := client.OutputsDirectory(ctx, "job-9")
	if err != nil || dir != "/outputs/job-9" {
		t.Errorf("OutputsDirectory = %q, err=%v", dir, err)
	}

	dir, err = client.OutputsDirectory(ctx, "job-missing")
	if err != nil || dir != "" {
		t.Errorf("missing job: dir=%q err=%v", dir, err)
	}
}

func TestPollPolicyDelays(t *testing.T) {
	fixed := packing.PollPolicy{}
	if d := fixed.DelayForPoll(5); d != packing.DefaultPollInterval {
		t.Errorf("zero policy delay = %v, want %v", d, packing.DefaultPollInterval)
	}

	growing := packing.PollPolicy{Interval: 100 * time.Millisecond, Factor: 2, MaxDelay: 300 * time.Millisecond}
	if d := growing.DelayForPoll(0); d != 100*time.Millisecond {
		t.Errorf("poll 0 delay = %v", d)
	}
	if d := growing.DelayForPoll(1); d != 200*time.Millisecond {
		t.Errorf("poll 1 delay = %v", d)
	}
	if d := growing.DelayForPoll(10); d != 300*time.Millisecond {
		t.Errorf("poll 10 delay = %v, want cap", d)
	}
}
