package segment

// JobKind discriminates the two job request variants.
type JobKind string

const (
	JobKindImageBatch JobKind = "image_batch"
	JobKindVideo      JobKind = "video"
)

// Job lifecycle statuses. A job's status is monotonic: once it reaches a
// terminal status it never reverts.
type JobStatus string

const (
	JobQueued              JobStatus = "queued"
	JobProcessing          JobStatus = "processing"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// Terminal reports whether the status is a terminal lifecycle state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed:
		return true
	}
	return false
}

// Per-task statuses. Tasks are independent; one task's failure does not
// alter sibling tasks' status.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

// ItemCounts summarizes a job's items by state.
type ItemCounts struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
}

// Job is a read-only snapshot of a segmentation job.
type Job struct {
	ID     string     `json:"jobId"`
	Kind   JobKind    `json:"jobType"`
	Status JobStatus  `json:"status"`
	Items  ItemCounts `json:"items"`
}

// JobTask is a read-only snapshot of a single task within a job.
type JobTask struct {
	ID     string         `json:"taskId"`
	Status TaskStatus     `json:"status"`
	Error  string         `json:"error,omitempty"`
	Masks  []MaskArtifact `json:"masks,omitempty"`
}

// MaskArtifact locates one output mask of a task. Key is a pure function of
// (accountID, jobID, taskID, maskIndex); URL is Key resolved against the
// asset base and is never taken verbatim from the wire when a key is known.
type MaskArtifact struct {
	MaskIndex int         `json:"maskIndex"`
	Key       string      `json:"key"`
	URL       string      `json:"url"`
	Score     *float64    `json:"score"`
	Box       *[4]float64 `json:"box"`
}

// VideoFrameMaskMap maps a non-negative frame index to that frame's mask
// records, ordered by ascending MaskIndex. A frame index absent from the
// map means "no masks for that frame", never an error.
type VideoFrameMaskMap map[int][]MaskArtifact

// VideoInfo is the optional video sub-object of a job result.
type VideoInfo struct {
	FrameCount int     `json:"frameCount,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	FramesURL  string  `json:"framesUrl,omitempty"`
}

// JobRequest describes a job to create. Type selects the variant:
// image_batch accepts optional Prompts and Boxes; video requires at least
// one prompt, forbids Boxes and Points, and accepts at most one of FPS
// (>0) or NumFrames (>=1). TaskIDs reference previously uploaded inputs.
type JobRequest struct {
	Type      JobKind
	TaskIDs   []string
	Prompts   []string
	Boxes     [][4]float64
	Points    [][2]float64
	FPS       float64 // video sampling rate; zero means unset
	NumFrames int     // video frame budget; zero means unset
}

// PresignedUpload is the result of CreatePresignedUpload.
type PresignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	TaskID    string `json:"taskId"`
	Bucket    string `json:"bucket,omitempty"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// JobCreated is the result of CreateJob.
type JobCreated struct {
	JobID      string    `json:"jobId"`
	Status     JobStatus `json:"status"`
	TotalItems int       `json:"totalItems"`
}

// JobStatusResult is the normalized result of JobStatus.
type JobStatusResult struct {
	Job       Job        `json:"job"`
	Tasks     []JobTask  `json:"tasks"`
	RequestID string     `json:"requestId"`
	Video     *VideoInfo `json:"video,omitempty"`
}

// UploadFile is one input to UploadAndCreateJob.
type UploadFile struct {
	Data        []byte
	ContentType string
}

// ProgressFunc receives (done, total) after each completed upload in
// UploadAndCreateJob.
type ProgressFunc func(done, total int)
