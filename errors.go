package segment

import (
	"fmt"

	goskema "github.com/reoring/goskema"
)

// Direction of the payload that failed validation.
const (
	DirectionInput    = "input"
	DirectionResponse = "response"
)

// Transport phases named by TransportError.
const (
	PhaseAPI    = "api"
	PhaseUpload = "upload"
)

// ValidationError reports every schema violation found in a request before
// any network I/O, or in a trusted response after transport. Issues carries
// one entry per violated field path, never just the first.
type ValidationError struct {
	Op        string
	Direction string
	Issues    goskema.Issues
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Direction, e.Issues.Error())
}

// Unwrap exposes the underlying goskema.Issues so callers can use
// goskema.AsIssues on the returned error.
func (e *ValidationError) Unwrap() error { return e.Issues }

// TransportError wraps a network-level failure (DNS, connection reset,
// canceled context) and names which phase failed: "api" for authenticated
// API calls, "upload" for presigned storage PUTs.
type TransportError struct {
	Phase string
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s transport: %v", e.Op, e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the authenticated API. RequestID is
// the service correlation id, taken from the X-Request-Id response header
// or, failing that, from the error body.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("API error %d: %s (requestId: %s)", e.StatusCode, msg, e.RequestID)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, msg)
}

// UploadError is a non-2xx response from a presigned storage PUT.
type UploadError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed with status %d", e.URL, e.StatusCode)
}
