package segment

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// defaultAPIBaseURL serves API-key authenticated calls.
	defaultAPIBaseURL = "https://api.visionrelay.com/v1"

	// defaultSessionBaseURL serves session-token authenticated calls.
	defaultSessionBaseURL = "https://app.visionrelay.com/api/v1"

	// DefaultAssetBaseURL is the fixed base all mask/media URLs resolve
	// against. Asset fetches never go through the authenticated API.
	DefaultAssetBaseURL = "https://assets.visionrelay.com"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	requestIDHeader = "X-Request-Id"
)

// transport owns credential selection and request construction for the
// authenticated API, plus direct PUTs to presigned storage URLs. Exactly
// one of apiKey or sessionToken is set, chosen at client construction.
type transport struct {
	httpClient   *http.Client
	apiKey       string
	sessionToken string
	baseURL      string
}

// apiErrorBody is the service's error envelope.
type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	RequestID  string `json:"requestId"`
	RequestID2 string `json:"request_id"`
}

// doJSON issues an authenticated JSON request and returns the raw response
// body. Network failures become *TransportError (phase "api"); non-2xx
// responses become *APIError with the parsed body and correlation id.
func (t *transport) doJSON(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	if t.apiKey != "" {
		req.Header.Set("X-Api-Key", t.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+t.sessionToken)
	}

	start := time.Now()
	log.Debug().Str("method", method).Str("path", path).Str("op", op).Msg("API request")
	resp, err := t.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("API response")
		return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
	}
	defer resp.Body.Close()
	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("API response")

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get(requestIDHeader),
			Body:       respBody,
		}
		var envelope apiErrorBody
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr == nil {
			if envelope.Error != nil {
				apiErr.Message = envelope.Error.Message
				apiErr.Code = envelope.Error.Code
			}
			if apiErr.RequestID == "" {
				apiErr.RequestID = envelope.RequestID
			}
			if apiErr.RequestID == "" {
				apiErr.RequestID = envelope.RequestID2
			}
		}
		log.Error().
			Int("statusCode", resp.StatusCode).
			Str("op", op).
			Str("requestId", apiErr.RequestID).
			Str("errorMessage", apiErr.Message).
			Msg("API error")
		return nil, apiErr
	}

	return respBody, nil
}

// putBinary uploads data directly to a presigned storage URL. This is a
// bare PUT with no API credentials attached; the URL itself carries the
// authorization.
func (t *transport) putBinary(ctx context.Context, url string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Phase: PhaseUpload, Op: "uploadBinary", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &TransportError{Phase: PhaseUpload, Op: "uploadBinary", Err: err}
	}
	defer resp.Body.Close()
	log.Debug().
		Int("statusCode", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Presigned upload response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UploadError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       string(respBody),
		}
	}
	return nil
}

// getAsset fetches an unauthenticated asset resource (manifest, remote
// frame streams). Callers treat failures as best-effort.
func (t *transport) getAsset(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return t.httpClient.Do(req)
}

// decodeMap parses a JSON response body into a generic map for shape
// validation and normalization.
func decodeMap(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// isGzipResource reports whether a fetched resource should be gunzipped
// before parsing, checked in order: Content-Encoding, Content-Type, then a
// .gz suffix on the URL path.
func isGzipResource(resp *http.Response, url string) bool {
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip") {
		return true
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "gzip") {
		return true
	}
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(trimmed, ".gz")
}
