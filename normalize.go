package segment

// The service's wire shapes vary across endpoints and versions: field
// names may be camelCase or snake_case, and the video/items sub-objects
// are optional. Everything here adapts those raw shapes onto the stable
// result types; no raw field name leaks past this file.

import (
	"math"
	"sort"
)

// stringField returns the first present non-empty string among the given
// keys, or "".
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numberField returns the first present numeric value among the given
// keys.
func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

func intField(m map[string]any, keys ...string) int {
	f, ok := numberField(m, keys...)
	if !ok {
		return 0
	}
	return int(f)
}

func subMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if sub, ok := m[k].(map[string]any); ok {
			return sub
		}
	}
	return nil
}

func anyList(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if list, ok := m[k].([]any); ok {
			return list
		}
	}
	return nil
}

// normalizePresign adapts a presigned-upload response.
func normalizePresign(raw map[string]any) *PresignedUpload {
	return &PresignedUpload{
		UploadURL: stringField(raw, "uploadUrl", "upload_url", "url"),
		TaskID:    stringField(raw, "taskId", "task_id"),
		Bucket:    stringField(raw, "bucket"),
		ExpiresIn: intField(raw, "expiresIn", "expires_in"),
	}
}

// normalizeJobCreated adapts a job-create response.
func normalizeJobCreated(raw map[string]any) *JobCreated {
	return &JobCreated{
		JobID:      stringField(raw, "jobId", "job_id", "id"),
		Status:     JobStatus(stringField(raw, "status")),
		TotalItems: intField(raw, "totalItems", "total_items"),
	}
}

// normalizeJobStatus adapts a job-status response. The request identifier
// is read from either of its two wire spellings, defaulting to empty; a
// missing video or items sub-object yields nil rather than an error.
func (c *Client) normalizeJobStatus(raw map[string]any) *JobStatusResult {
	jobID := stringField(raw, "jobId", "job_id", "id")
	res := &JobStatusResult{
		Job: Job{
			ID:     jobID,
			Kind:   JobKind(stringField(raw, "jobType", "job_type", "type")),
			Status: JobStatus(stringField(raw, "status")),
			Items:  normalizeItemCounts(raw),
		},
		RequestID: stringField(raw, "requestId", "request_id"),
	}

	if video := subMap(raw, "video"); video != nil {
		res.Video = &VideoInfo{
			FrameCount: intField(video, "frameCount", "frame_count", "numFrames", "num_frames"),
			FPS:        floatField(video, "fps"),
			FramesURL:  stringField(video, "framesUrl", "frames_url"),
		}
	}

	accountID := stringField(raw, "accountId", "account_id")
	if accountID == "" {
		accountID = c.accountID
	}

	for _, entry := range anyList(raw, "tasks", "items") {
		taskRaw, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		task := JobTask{
			ID:     stringField(taskRaw, "taskId", "task_id", "id"),
			Status: TaskStatus(stringField(taskRaw, "status")),
			Error:  stringField(taskRaw, "error", "errorMessage", "error_message"),
		}
		mctx := MaskContext{AccountID: accountID, JobID: jobID, TaskID: task.ID}
		for i, maskEntry := range anyList(taskRaw, "masks") {
			maskRaw, ok := maskEntry.(map[string]any)
			if !ok {
				continue
			}
			task.Masks = append(task.Masks, c.normalizeMask(mctx, maskRaw, i))
		}
		sort.Slice(task.Masks, func(a, b int) bool {
			return task.Masks[a].MaskIndex < task.Masks[b].MaskIndex
		})
		res.Tasks = append(res.Tasks, task)
	}
	return res
}

func normalizeItemCounts(raw map[string]any) ItemCounts {
	counts := subMap(raw, "itemCounts", "item_counts", "counts")
	if counts == nil {
		counts = raw
	}
	return ItemCounts{
		Total:      intField(counts, "totalItems", "total_items", "total"),
		Queued:     intField(counts, "queuedItems", "queued_items", "queued"),
		Processing: intField(counts, "processingItems", "processing_items", "processing"),
		Success:    intField(counts, "successItems", "success_items", "success"),
		Failed:     intField(counts, "failedItems", "failed_items", "failed"),
	}
}

func floatField(m map[string]any, keys ...string) float64 {
	f, _ := numberField(m, keys...)
	return f
}

// normalizeMask builds a MaskArtifact from a raw wire record. The index
// prefers objectId/maskIndex, falling back to the record's position. When
// a storage key is present the URL is always recomputed from it, never
// trusted verbatim from the wire.
func (c *Client) normalizeMask(mctx MaskContext, raw map[string]any, position int) MaskArtifact {
	idx := position
	if f, ok := numberField(raw, "objectId", "object_id", "maskIndex", "mask_index"); ok {
		if f >= 0 && f == math.Trunc(f) {
			idx = int(f)
		}
	}

	key := stringField(raw, "key")
	if key == "" {
		key = MaskArtifactKey(mctx, idx)
	}
	artifact := MaskArtifact{
		MaskIndex: idx,
		Key:       key,
		URL:       JoinAssetURL(c.assetBaseURL, key),
	}
	if score, ok := numberField(raw, "score"); ok {
		artifact.Score = &score
	}
	if box, ok := raw["box"].([]any); ok && len(box) == 4 {
		coords := [4]float64{}
		valid := true
		for i, v := range box {
			f, isNum := v.(float64)
			if !isNum {
				valid = false
				break
			}
			coords[i] = f
		}
		if valid {
			artifact.Box = &coords
		}
	}
	return artifact
}
