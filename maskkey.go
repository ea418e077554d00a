package segment

import (
	"fmt"
	"strings"
)

// MaskContext identifies the owning scope of a task's mask artifacts.
type MaskContext struct {
	AccountID string
	JobID     string
	TaskID    string
}

// MaskArtifactKey derives the deterministic storage key of one output
// mask: outputs/{accountId}/{jobId}/{taskId}/mask_{maskIndex}.png. Each
// segment is trimmed of leading and trailing slashes, so the same context
// always yields the same key.
func MaskArtifactKey(ctx MaskContext, maskIndex int) string {
	return fmt.Sprintf("outputs/%s/%s/%s/mask_%d.png",
		strings.Trim(ctx.AccountID, "/"),
		strings.Trim(ctx.JobID, "/"),
		strings.Trim(ctx.TaskID, "/"),
		maskIndex)
}

// MaskArtifactURL resolves a storage key against the default asset base.
func MaskArtifactURL(key string) string {
	return JoinAssetURL(DefaultAssetBaseURL, key)
}

// JoinAssetURL joins an asset base URL and a storage key with exactly one
// slash between them.
func JoinAssetURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
