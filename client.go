package segment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Job status poll settings for WaitForJob.
	initialPollInterval = 5 * time.Second
	maxPollInterval     = 30 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// Client is the public entry point. It is immutable after New: credential
// choice, base URLs, and the HTTP client never change for its lifetime.
type Client struct {
	transport    *transport
	assetBaseURL string
	accountID    string

	// poll pacing, overridable in tests
	pollInterval    time.Duration
	pollIntervalMax time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey authenticates against the API-key base endpoint.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.transport.apiKey = key }
}

// WithSessionToken authenticates against the session base endpoint with a
// bearer token.
func WithSessionToken(token string) Option {
	return func(c *Client) { c.transport.sessionToken = token }
}

// WithBaseURL overrides the API base URL chosen from the credential kind.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.transport.baseURL = url }
}

// WithAssetBaseURL overrides the base that mask/media URLs resolve against.
func WithAssetBaseURL(url string) Option {
	return func(c *Client) { c.assetBaseURL = url }
}

// WithAccountID sets the account scope used for mask key derivation.
func WithAccountID(id string) Option {
	return func(c *Client) { c.accountID = id }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.transport.httpClient = hc }
}

// New builds a Client. Exactly one of WithAPIKey or WithSessionToken must
// be provided; each credential kind talks to its own base endpoint unless
// WithBaseURL overrides it.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		transport: &transport{
			httpClient: &http.Client{Timeout: defaultTimeout},
		},
		assetBaseURL:    DefaultAssetBaseURL,
		pollInterval:    initialPollInterval,
		pollIntervalMax: maxPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	hasKey := c.transport.apiKey != ""
	hasToken := c.transport.sessionToken != ""
	if hasKey == hasToken {
		return nil, fmt.Errorf("exactly one of an API key or a session token is required")
	}
	if c.transport.baseURL == "" {
		if hasKey {
			c.transport.baseURL = defaultAPIBaseURL
		} else {
			c.transport.baseURL = defaultSessionBaseURL
		}
	}
	return c, nil
}

// CreatePresignedUpload asks the service for a presigned storage PUT URL
// for one input of the given content type.
func (c *Client) CreatePresignedUpload(ctx context.Context, contentType string) (*PresignedUpload, error) {
	const op = "createPresignedUpload"
	if err := validateContentType(op, contentType); err != nil {
		return nil, err
	}

	body, err := c.transport.doJSON(ctx, op, http.MethodPost, "/uploads", map[string]any{
		"contentType": contentType,
	})
	if err != nil {
		return nil, err
	}
	raw, err := decodeMap(body)
	if err != nil {
		return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
	}
	presign := normalizePresign(raw)
	if err := validatePresignResponse(op, presign); err != nil {
		return nil, err
	}
	return presign, nil
}

// UploadBinary PUTs data to a presigned storage URL. This bypasses the
// authenticated API entirely.
func (c *Client) UploadBinary(ctx context.Context, url string, data []byte, contentType string) error {
	return c.transport.putBinary(ctx, url, data, contentType)
}

// CreateJob validates the request and submits it. Validation failures are
// returned before any network I/O with every violated field path listed.
func (c *Client) CreateJob(ctx context.Context, req JobRequest) (*JobCreated, error) {
	const op = "createJob"
	wire, err := validateJobRequest(ctx, op, req)
	if err != nil {
		return nil, err
	}

	body, err := c.transport.doJSON(ctx, op, http.MethodPost, "/jobs", wire)
	if err != nil {
		return nil, err
	}
	raw, err := decodeMap(body)
	if err != nil {
		return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
	}
	created := normalizeJobCreated(raw)
	if err := validateJobCreated(op, created); err != nil {
		return nil, err
	}
	log.Info().Str("jobId", created.JobID).Int("totalItems", created.TotalItems).Msg("Job created")
	return created, nil
}

// JobStatus fetches a job snapshot with its tasks. Reads are idempotent;
// callers poll on their own schedule or use WaitForJob.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResult, error) {
	const op = "getJobStatus"
	if jobID == "" {
		return nil, fmt.Errorf("%s: job id is required", op)
	}

	body, err := c.transport.doJSON(ctx, op, http.MethodGet, "/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	raw, err := decodeMap(body)
	if err != nil {
		return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
	}
	res := c.normalizeJobStatus(raw)
	if err := validateJobStatusResult(op, res); err != nil {
		return nil, err
	}
	return res, nil
}

// UploadAndCreateJob presigns and uploads each file in order, reporting
// (done, total) after each completed upload, then submits a single job
// referencing the uploaded task ids. The request is validated before the
// first upload. Any failed upload aborts the whole flow; no partial job is
// ever submitted.
func (c *Client) UploadAndCreateJob(ctx context.Context, files []UploadFile, req JobRequest, progress ProgressFunc) (*JobCreated, error) {
	const op = "uploadAndCreateJob"
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: at least one file is required", op)
	}
	// Reject an invalid request before spending any uploads on it. TaskIDs
	// are filled below, so seed a placeholder for the required-field check.
	probe := req
	probe.TaskIDs = make([]string, len(files))
	for i := range probe.TaskIDs {
		probe.TaskIDs[i] = "pending"
	}
	if _, err := validateJobRequest(ctx, op, probe); err != nil {
		return nil, err
	}

	taskIDs := make([]string, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Phase: PhaseUpload, Op: op, Err: err}
		}
		presign, err := c.CreatePresignedUpload(ctx, file.ContentType)
		if err != nil {
			return nil, fmt.Errorf("file %d of %d: %w", i+1, len(files), err)
		}
		if err := c.UploadBinary(ctx, presign.UploadURL, file.Data, file.ContentType); err != nil {
			return nil, fmt.Errorf("file %d of %d: %w", i+1, len(files), err)
		}
		taskIDs = append(taskIDs, presign.TaskID)
		if progress != nil {
			progress(i+1, len(files))
		}
	}

	req.TaskIDs = taskIDs
	return c.CreateJob(ctx, req)
}

// WaitForJob polls JobStatus until the job reaches a terminal status,
// using exponential backoff capped at 30s. Transient poll errors are
// logged and retried within the timeout window (zero means 5 minutes).
func (c *Client) WaitForJob(ctx context.Context, jobID string, timeout time.Duration) (*JobStatusResult, error) {
	if timeout == 0 {
		timeout = defaultPollTimeout
	}
	deadline := time.Now().Add(timeout)
	interval := c.pollInterval

	for {
		res, err := c.JobStatus(ctx, jobID)
		if err != nil {
			log.Warn().Err(err).Str("jobId", jobID).Msg("Job status poll error, retrying")
		} else if res.Job.Status.Terminal() {
			return res, nil
		} else {
			log.Debug().Str("jobId", jobID).Str("status", string(res.Job.Status)).Dur("nextPoll", interval).Msg("Job still running")
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("job %s: timed out after %s waiting for completion", jobID, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		interval *= 2
		if interval > c.pollIntervalMax {
			interval = c.pollIntervalMax
		}
	}
}

// TaskMasks derives a completed task's mask artifacts out-of-band from the
// artifact count, without refetching the job.
func (c *Client) TaskMasks(jobID, taskID string, maskCount int) []MaskArtifact {
	mctx := MaskContext{AccountID: c.accountID, JobID: jobID, TaskID: taskID}
	masks := make([]MaskArtifact, 0, maskCount)
	for i := 0; i < maskCount; i++ {
		key := MaskArtifactKey(mctx, i)
		masks = append(masks, MaskArtifact{
			MaskIndex: i,
			Key:       key,
			URL:       JoinAssetURL(c.assetBaseURL, key),
		})
	}
	return masks
}
