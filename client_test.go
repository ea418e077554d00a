package segment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestNewRequiresExactlyOneCredential(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("expected error with no credentials")
	}
	if _, err := New(WithAPIKey("k"), WithSessionToken("t")); err == nil {
		t.Error("expected error with both credentials")
	}
	if _, err := New(WithAPIKey("k")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := New(WithSessionToken("t")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentialHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-Api-Key")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"jobId": "j", "status": "queued", "tasks": []any{}})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if _, err := client.JobStatus(context.Background(), "j"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAPIKey != "test-key" {
		t.Errorf("expected API key header, got %q", gotAPIKey)
	}
	if gotAuth != "" {
		t.Errorf("API-key client must not send a bearer token, got %q", gotAuth)
	}

	sessionClient, err := New(WithSessionToken("sess-token"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sessionClient.JobStatus(context.Background(), "j"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sess-token" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotAPIKey != "" {
		t.Errorf("session client must not send an API key, got %q", gotAPIKey)
	}
}

func TestCreatePresignedUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/uploads" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["contentType"] != "image/png" {
			t.Errorf("unexpected contentType: %v", body["contentType"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"upload_url": "https://storage.example.com/put/abc",
			"task_id":    "task-1",
			"bucket":     "inputs",
			"expires_in": 900,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	presign, err := client.CreatePresignedUpload(context.Background(), "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if presign.TaskID != "task-1" || presign.ExpiresIn != 900 {
		t.Errorf("unexpected presign result: %+v", presign)
	}
}

func TestCreatePresignedUploadRejectsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.CreatePresignedUpload(context.Background(), "text/html")
	if !hasIssueAt(err, "/contentType") {
		t.Errorf("expected an issue at /contentType, got: %v", err)
	}
}

func TestUploadBinaryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		http.Error(w, "access denied", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.UploadBinary(context.Background(), server.URL+"/put", []byte("data"), "image/png")
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UploadError, got: %v", err)
	}
	if uerr.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected status: %d", uerr.StatusCode)
	}
	if !strings.Contains(uerr.Body, "access denied") {
		t.Errorf("expected response body preserved, got %q", uerr.Body)
	}
}

func TestAPIErrorCarriesRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-789")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "backend unavailable", "code": "upstream"},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.JobStatus(context.Background(), "job-1")
	var aerr *APIError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *APIError, got: %v", err)
	}
	if aerr.StatusCode != http.StatusBadGateway || aerr.RequestID != "req-789" {
		t.Errorf("unexpected error: %+v", aerr)
	}
	if aerr.Message != "backend unavailable" || aerr.Code != "upstream" {
		t.Errorf("body not parsed: %+v", aerr)
	}
}

func TestAPIErrorRequestIDFromBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":      map[string]any{"message": "slow down"},
			"request_id": "req-body-1",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.JobStatus(context.Background(), "job-1")
	var aerr *APIError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *APIError, got: %v", err)
	}
	if aerr.RequestID != "req-body-1" {
		t.Errorf("expected request id from body, got %q", aerr.RequestID)
	}
}

func TestTransportErrorOnConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client := newTestClient(t, server)
	client.transport.httpClient = &http.Client{Timeout: time.Second}
	_, err := client.JobStatus(context.Background(), "job-1")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got: %v", err)
	}
	if terr.Phase != PhaseAPI {
		t.Errorf("expected phase api, got %s", terr.Phase)
	}
}

// uploadFlowServer routes presign, storage PUT, and job-create endpoints
// for the multi-file flow tests.
func uploadFlowServer(t *testing.T, failUploadAt int, uploads, creates *atomic.Int64) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	var presigns atomic.Int64
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/uploads":
			n := presigns.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"uploadUrl": server.URL + "/put",
				"taskId":    "task-" + string(rune('0'+n)),
				"expiresIn": 900,
			})
		case r.URL.Path == "/put":
			if uploads.Add(1) == int64(failUploadAt) {
				http.Error(w, "disk full", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/jobs":
			creates.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"jobId": "job-1", "status": "queued", "totalItems": 3,
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	return server
}

func TestUploadAndCreateJob(t *testing.T) {
	var uploads, creates atomic.Int64
	server := uploadFlowServer(t, 0, &uploads, &creates)
	defer server.Close()

	client := newTestClient(t, server)
	files := []UploadFile{
		{Data: []byte("a"), ContentType: "image/png"},
		{Data: []byte("b"), ContentType: "image/jpeg"},
		{Data: []byte("c"), ContentType: "image/png"},
	}
	var progress [][2]int
	created, err := client.UploadAndCreateJob(context.Background(), files, JobRequest{
		Type: JobKindImageBatch,
	}, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.JobID != "job-1" {
		t.Errorf("unexpected job id: %s", created.JobID)
	}
	if uploads.Load() != 3 || creates.Load() != 1 {
		t.Errorf("expected 3 uploads and 1 create, got %d/%d", uploads.Load(), creates.Load())
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("unexpected progress reports: %v", progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("unexpected progress reports: %v", progress)
		}
	}
}

func TestUploadAndCreateJobAbortsOnFailedUpload(t *testing.T) {
	var uploads, creates atomic.Int64
	server := uploadFlowServer(t, 2, &uploads, &creates)
	defer server.Close()

	client := newTestClient(t, server)
	files := []UploadFile{
		{Data: []byte("a"), ContentType: "image/png"},
		{Data: []byte("b"), ContentType: "image/png"},
		{Data: []byte("c"), ContentType: "image/png"},
	}
	_, err := client.UploadAndCreateJob(context.Background(), files, JobRequest{
		Type: JobKindImageBatch,
	}, nil)
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UploadError, got: %v", err)
	}
	if uploads.Load() != 2 {
		t.Errorf("expected the flow to stop at upload 2, got %d uploads", uploads.Load())
	}
	if creates.Load() != 0 {
		t.Errorf("no job may be created after a failed upload, got %d creates", creates.Load())
	}
}

func TestUploadAndCreateJobValidatesBeforeUploading(t *testing.T) {
	var uploads, creates atomic.Int64
	server := uploadFlowServer(t, 0, &uploads, &creates)
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.UploadAndCreateJob(context.Background(), []UploadFile{
		{Data: []byte("a"), ContentType: "video/mp4"},
	}, JobRequest{
		Type:      JobKindVideo,
		Prompts:   []string{"person"},
		FPS:       1,
		NumFrames: 2,
	}, nil)
	if !hasIssueAt(err, "/fps") {
		t.Fatalf("expected validation error, got: %v", err)
	}
	if uploads.Load() != 0 || creates.Load() != 0 {
		t.Errorf("expected no network activity, got %d uploads %d creates", uploads.Load(), creates.Load())
	}
}

func TestUploadAndCreateJobCancellation(t *testing.T) {
	var uploads, creates atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/uploads":
			json.NewEncoder(w).Encode(map[string]any{
				"uploadUrl": server.URL + "/put", "taskId": "t", "expiresIn": 900,
			})
		case "/put":
			// Cancel mid-flow after the first upload lands.
			if uploads.Add(1) == 1 {
				cancel()
			}
			w.WriteHeader(http.StatusOK)
		case "/jobs":
			creates.Add(1)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	files := []UploadFile{
		{Data: []byte("a"), ContentType: "image/png"},
		{Data: []byte("b"), ContentType: "image/png"},
	}
	_, err := client.UploadAndCreateJob(ctx, files, JobRequest{Type: JobKindImageBatch}, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if creates.Load() != 0 {
		t.Errorf("canceled flow must not create a job, got %d creates", creates.Load())
	}
}

func TestWaitForJob(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "processing"
		if polls.Add(1) >= 3 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jobId": "job-1", "status": status, "tasks": []any{},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	client.pollInterval = 5 * time.Millisecond
	client.pollIntervalMax = 10 * time.Millisecond

	res, err := client.WaitForJob(context.Background(), "job-1", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Job.Status != JobCompleted {
		t.Errorf("expected completed, got %s", res.Job.Status)
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestTaskMasks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := newTestClient(t, server)
	masks := client.TaskMasks("job-1", "task-1", 2)
	if len(masks) != 2 {
		t.Fatalf("expected 2 masks, got %d", len(masks))
	}
	if masks[1].Key != "outputs/acct-1/job-1/task-1/mask_1.png" {
		t.Errorf("unexpected key: %q", masks[1].Key)
	}
	if masks[1].URL != DefaultAssetBaseURL+"/outputs/acct-1/job-1/task-1/mask_1.png" {
		t.Errorf("unexpected url: %q", masks[1].URL)
	}
}
