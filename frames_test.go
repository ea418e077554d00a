package segment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
)

var testMaskCtx = MaskContext{AccountID: "acct-1", JobID: "job-1", TaskID: "task-1"}

func framesClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(WithAPIKey("k"), WithAccountID("acct-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestVideoFrameMasksNDJSONResilience(t *testing.T) {
	client := framesClient(t)
	blob := `{"frameIdx":0,"objects":[{"objectId":1},{"objectId":0}]}
{"frameIdx": this line is broken
{"frameIdx":2,"objects":[{"objectId":5}]}`

	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, blob)
	if len(frames) != 2 {
		t.Fatalf("expected frames 0 and 2, got %v", frames)
	}
	if _, ok := frames[1]; ok {
		t.Error("the malformed line must be skipped, not recovered as frame 1")
	}

	// objects sorted ascending by maskIndex
	f0 := frames[0]
	if len(f0) != 2 || f0[0].MaskIndex != 0 || f0[1].MaskIndex != 1 {
		t.Errorf("frame 0 masks not sorted by index: %+v", f0)
	}
	if f0[1].Key != "outputs/acct-1/job-1/task-1/mask_1.png" {
		t.Errorf("unexpected key: %q", f0[1].Key)
	}
	if frames[2][0].MaskIndex != 5 {
		t.Errorf("objectId must become maskIndex, got %d", frames[2][0].MaskIndex)
	}
}

func TestVideoFrameMasksObjectIDFallback(t *testing.T) {
	client := framesClient(t)
	blob := `{"frameIdx":0,"objects":[{"objectId":"not-a-number"},{}]}`
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, blob)
	f0 := frames[0]
	if len(f0) != 2 || f0[0].MaskIndex != 0 || f0[1].MaskIndex != 1 {
		t.Fatalf("expected positional fallback indices, got %+v", f0)
	}
}

func TestVideoFrameMasksDropsInvalidFrameIndices(t *testing.T) {
	client := framesClient(t)
	blob := `{"frameIdx":-1,"objects":[{"objectId":0}]}
{"frameIdx":1.5,"objects":[{"objectId":0}]}
{"objects":[{"objectId":0}]}
{"frameIdx":3,"objects":[{"objectId":0}]}`
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, blob)
	if len(frames) != 1 {
		t.Fatalf("expected only frame 3, got %v", frames)
	}
	if _, ok := frames[3]; !ok {
		t.Fatalf("expected frame 3, got %v", frames)
	}
}

func TestVideoFrameMasksInlineList(t *testing.T) {
	client := framesClient(t)
	source := []any{
		map[string]any{"frame_idx": float64(4), "objects": []any{
			map[string]any{"object_id": float64(2), "score": 0.5},
		}},
	}
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, source)
	if len(frames) != 1 || len(frames[4]) != 1 {
		t.Fatalf("unexpected frames: %v", frames)
	}
	mask := frames[4][0]
	if mask.MaskIndex != 2 || mask.Score == nil || *mask.Score != 0.5 {
		t.Errorf("unexpected mask: %+v", mask)
	}
}

func TestVideoFrameMasksRemoteGzip(t *testing.T) {
	ndjson := `{"frameIdx":0,"objects":[{"objectId":0}]}
{"frameIdx":1,"objects":[{"objectId":0},{"objectId":1}]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(ndjson))
		gz.Close()
	}))
	defer server.Close()

	client := framesClient(t)
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, server.URL+"/frames.ndjson.gz")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %v", frames)
	}
	if len(frames[1]) != 2 {
		t.Errorf("expected 2 masks in frame 1, got %d", len(frames[1]))
	}
}

func TestVideoFrameMasksRemotePlain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"frameIdx":7,"objects":[{"objectId":0}]}`))
	}))
	defer server.Close()

	client := framesClient(t)
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, map[string]any{
		"output": map[string]any{"framesUrl": server.URL + "/frames.ndjson"},
	})
	if len(frames) != 1 || len(frames[7]) != 1 {
		t.Fatalf("unexpected frames: %v", frames)
	}
}

func TestVideoFrameMasksFetchFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := framesClient(t)
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, server.URL+"/frames.ndjson")
	if len(frames) != 0 {
		t.Fatalf("expected empty map, got %v", frames)
	}
	if frames == nil {
		t.Fatal("expected an empty map, not nil")
	}
}

func TestVideoFrameMasksUnrecognizedSource(t *testing.T) {
	client := framesClient(t)
	frames := client.VideoFrameMasks(context.Background(), testMaskCtx, 42)
	if frames == nil || len(frames) != 0 {
		t.Fatalf("expected empty map, got %v", frames)
	}
}
