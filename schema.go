package segment

import (
	"context"
	"fmt"

	goskema "github.com/reoring/goskema"
	g "github.com/reoring/goskema/dsl"
)

// Issue codes local to this library, alongside goskema's built-ins.
const (
	codeForbidden = "forbidden"
	codeExclusive = "exclusive"
)

// jobRequestSchema is the tagged union over the two job variants. Field
// presence and the discriminator are checked here; cross-field rules that
// goskema's builder cannot express (mutual exclusion, per-variant
// forbidden fields) are collected separately so a single ValidationError
// enumerates every violation.
var jobRequestSchema = func() goskema.Schema[map[string]any] {
	imageBatch := g.Object().
		Field("type", g.StringOf[string]()).
		Field("taskIds", g.ArrayOfSchema[string](g.Array(g.String()).Min(1))).
		Field("prompts", g.ArrayOfSchema[string](g.Array(g.String()))).
		Require("taskIds").
		UnknownStrip().
		MustBuild()

	video := g.Object().
		Field("type", g.StringOf[string]()).
		Field("taskIds", g.ArrayOfSchema[string](g.Array(g.String()).Min(1))).
		Field("prompts", g.ArrayOfSchema[string](g.Array(g.String()).Min(1))).
		Require("taskIds", "prompts").
		UnknownStrip().
		MustBuild()

	return g.Object().
		Discriminator("type").
		OneOf(
			g.Variant(string(JobKindImageBatch), imageBatch),
			g.Variant(string(JobKindVideo), video),
		).
		MustBuild()
}()

// wireMap converts the request to its JSON shape, omitting unset fields so
// required-field checks fire on true absence.
func (r JobRequest) wireMap() map[string]any {
	m := map[string]any{"type": string(r.Type)}
	if len(r.TaskIDs) > 0 {
		ids := make([]any, len(r.TaskIDs))
		for i, id := range r.TaskIDs {
			ids[i] = id
		}
		m["taskIds"] = ids
	}
	if len(r.Prompts) > 0 {
		prompts := make([]any, len(r.Prompts))
		for i, p := range r.Prompts {
			prompts[i] = p
		}
		m["prompts"] = prompts
	}
	if len(r.Boxes) > 0 {
		boxes := make([]any, len(r.Boxes))
		for i, b := range r.Boxes {
			boxes[i] = []any{b[0], b[1], b[2], b[3]}
		}
		m["boxes"] = boxes
	}
	if len(r.Points) > 0 {
		points := make([]any, len(r.Points))
		for i, p := range r.Points {
			points[i] = []any{p[0], p[1]}
		}
		m["points"] = points
	}
	if r.FPS != 0 {
		m["fps"] = r.FPS
	}
	if r.NumFrames != 0 {
		m["numFrames"] = r.NumFrames
	}
	return m
}

// crossFieldIssues applies the variant rules the union schema does not
// cover: forbidden fields per variant, fps/numFrames exclusivity, and
// range checks on the sampling parameters.
func crossFieldIssues(r JobRequest) goskema.Issues {
	var iss goskema.Issues
	forbid := func(path, variant string) {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path:    path,
			Code:    codeForbidden,
			Message: fmt.Sprintf("not allowed for %s jobs", variant),
		})
	}

	switch r.Type {
	case JobKindVideo:
		if len(r.Boxes) > 0 {
			forbid("/boxes", "video")
		}
		if len(r.Points) > 0 {
			forbid("/points", "video")
		}
		if r.FPS != 0 && r.NumFrames != 0 {
			msg := "fps and numFrames are mutually exclusive"
			iss = goskema.AppendIssues(iss,
				goskema.Issue{Path: "/fps", Code: codeExclusive, Message: msg},
				goskema.Issue{Path: "/numFrames", Code: codeExclusive, Message: msg},
			)
		}
		if r.FPS < 0 {
			iss = goskema.AppendIssues(iss, goskema.Issue{
				Path: "/fps", Code: goskema.CodeTooSmall, Message: "fps must be greater than 0",
			})
		}
		if r.NumFrames != 0 && r.NumFrames < 1 {
			iss = goskema.AppendIssues(iss, goskema.Issue{
				Path: "/numFrames", Code: goskema.CodeTooSmall, Message: "numFrames must be at least 1",
			})
		}
	case JobKindImageBatch:
		if len(r.Points) > 0 {
			forbid("/points", "image_batch")
		}
		if r.FPS != 0 {
			forbid("/fps", "image_batch")
		}
		if r.NumFrames != 0 {
			forbid("/numFrames", "image_batch")
		}
	}
	return iss
}

// validateJobRequest checks the full request before any network call and
// returns its wire shape. On failure the returned *ValidationError lists
// every violated field path.
func validateJobRequest(ctx context.Context, op string, r JobRequest) (map[string]any, error) {
	m := r.wireMap()
	var iss goskema.Issues
	if _, err := jobRequestSchema.Parse(ctx, m); err != nil {
		parsed, ok := goskema.AsIssues(err)
		if !ok {
			return nil, &TransportError{Phase: PhaseAPI, Op: op, Err: err}
		}
		iss = goskema.AppendIssues(iss, parsed...)
	}
	iss = goskema.AppendIssues(iss, crossFieldIssues(r)...)
	if len(iss) > 0 {
		return nil, &ValidationError{Op: op, Direction: DirectionInput, Issues: iss}
	}
	return m, nil
}

// --- Response shape validation ---
//
// Responses are validated permissively: unrecognized additive fields are
// ignored so newer service versions do not break older clients, but
// required identifiers and status enums are checked strictly.

var jobStatusEnum = map[JobStatus]bool{
	JobQueued:              true,
	JobProcessing:          true,
	JobCompleted:           true,
	JobCompletedWithErrors: true,
	JobFailed:              true,
}

var taskStatusEnum = map[TaskStatus]bool{
	TaskQueued:  true,
	TaskRunning: true,
	TaskSuccess: true,
	TaskFailed:  true,
}

func validatePresignResponse(op string, p *PresignedUpload) error {
	var iss goskema.Issues
	if p.UploadURL == "" {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path: "/uploadUrl", Code: goskema.CodeRequired, Message: "missing upload URL",
		})
	}
	if p.TaskID == "" {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path: "/taskId", Code: goskema.CodeRequired, Message: "missing task id",
		})
	}
	if len(iss) > 0 {
		return &ValidationError{Op: op, Direction: DirectionResponse, Issues: iss}
	}
	return nil
}

func validateJobCreated(op string, j *JobCreated) error {
	var iss goskema.Issues
	if j.JobID == "" {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path: "/jobId", Code: goskema.CodeRequired, Message: "missing job id",
		})
	}
	if j.Status != "" && !jobStatusEnum[j.Status] {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path: "/status", Code: goskema.CodeInvalidEnum,
			Message: fmt.Sprintf("unknown job status %q", j.Status),
		})
	}
	if len(iss) > 0 {
		return &ValidationError{Op: op, Direction: DirectionResponse, Issues: iss}
	}
	return nil
}

func validateJobStatusResult(op string, res *JobStatusResult) error {
	var iss goskema.Issues
	if res.Job.ID == "" {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path: "/jobId", Code: goskema.CodeRequired, Message: "missing job id",
		})
	}
	if !jobStatusEnum[res.Job.Status] {
		iss = goskema.AppendIssues(iss, goskema.Issue{
			Path: "/status", Code: goskema.CodeInvalidEnum,
			Message: fmt.Sprintf("unknown job status %q", res.Job.Status),
		})
	}
	for i, task := range res.Tasks {
		if task.ID == "" {
			iss = goskema.AppendIssues(iss, goskema.Issue{
				Path: fmt.Sprintf("/tasks/%d/taskId", i), Code: goskema.CodeRequired,
				Message: "missing task id",
			})
		}
		if !taskStatusEnum[task.Status] {
			iss = goskema.AppendIssues(iss, goskema.Issue{
				Path: fmt.Sprintf("/tasks/%d/status", i), Code: goskema.CodeInvalidEnum,
				Message: fmt.Sprintf("unknown task status %q", task.Status),
			})
		}
	}
	if len(iss) > 0 {
		return &ValidationError{Op: op, Direction: DirectionResponse, Issues: iss}
	}
	return nil
}

// allowedContentTypes is the upload content-type allowlist.
var allowedContentTypes = map[string]bool{
	"image/jpeg":       true,
	"image/png":        true,
	"image/webp":       true,
	"image/bmp":        true,
	"image/tiff":       true,
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
}

func validateContentType(op, contentType string) error {
	if allowedContentTypes[contentType] {
		return nil
	}
	return &ValidationError{
		Op:        op,
		Direction: DirectionInput,
		Issues: goskema.Issues{{
			Path: "/contentType", Code: goskema.CodeInvalidEnum,
			Message: fmt.Sprintf("unsupported content type %q", contentType),
		}},
	}
}
