package segment

import (
	"context"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Manifest is the per-job output summary served from the asset base.
type Manifest struct {
	raw map[string]any
}

// ManifestURL builds the deterministic manifest location for a job.
// outputFolder replaces the default "outputs" prefix when set.
func ManifestURL(assetBase, accountID, jobID, outputFolder string) string {
	folder := "outputs"
	if outputFolder != "" {
		folder = strings.Trim(outputFolder, "/")
	}
	return fmt.Sprintf("%s/%s/%s/%s/manifest.json",
		strings.TrimRight(assetBase, "/"),
		folder,
		strings.Trim(accountID, "/"),
		strings.Trim(jobID, "/"))
}

// FetchManifest retrieves a job's output manifest. The fetch is
// best-effort enrichment: any failure (network, status, parse) returns a
// nil manifest and no error.
func (c *Client) FetchManifest(ctx context.Context, jobID, outputFolder string) *Manifest {
	url := ManifestURL(c.assetBaseURL, c.accountID, jobID, outputFolder)
	resp, err := c.transport.getAsset(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Manifest fetch failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("statusCode", resp.StatusCode).Str("url", url).Msg("Manifest fetch failed")
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Manifest read failed")
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Manifest is not valid JSON")
		return nil
	}
	return &Manifest{raw: raw}
}

// TaskResult resolves a task's result payload, first via the manifest's
// flat result field, then via an items[taskId].result lookup. A missing
// section yields nil, never an error.
func (m *Manifest) TaskResult(taskID string) any {
	if m == nil || m.raw == nil {
		return nil
	}
	if result, ok := m.raw["result"]; ok && result != nil {
		return result
	}
	items := subMap(m.raw, "items")
	if items == nil {
		return nil
	}
	item, ok := items[taskID].(map[string]any)
	if !ok {
		return nil
	}
	return item["result"]
}
