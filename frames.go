package segment

import (
	"bufio"
	"context"
	"io"
	"math"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// VideoFrameMasks resolves a video task's per-frame mask records from a
// raw result payload. The source may be an already-structured list of
// frame records, an NDJSON text blob (one JSON object per line), or a
// pointer to a remote NDJSON resource, optionally gzip-compressed. The
// recognized shapes are tried in that order; each either applies or falls
// through. Mask hydration is enrichment, not job-status correctness, so
// every failure path degrades to an empty map rather than an error.
func (c *Client) VideoFrameMasks(ctx context.Context, mctx MaskContext, source any) VideoFrameMaskMap {
	if mctx.AccountID == "" {
		mctx.AccountID = c.accountID
	}

	switch src := source.(type) {
	case nil:
		return VideoFrameMaskMap{}
	case []any:
		return c.framesFromList(mctx, src)
	case string:
		if isRemotePointer(src) {
			return c.framesFromRemote(ctx, mctx, src)
		}
		return c.framesFromNDJSON(mctx, src)
	case map[string]any:
		if frames := anyList(src, "frames"); frames != nil {
			return c.framesFromList(mctx, frames)
		}
		if url := framesPointer(src); url != "" {
			return c.framesFromRemote(ctx, mctx, url)
		}
	}
	return VideoFrameMaskMap{}
}

func isRemotePointer(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// framesPointer digs a frames URL out of a nested result object.
func framesPointer(m map[string]any) string {
	if url := stringField(m, "framesUrl", "frames_url"); url != "" {
		return url
	}
	if output := subMap(m, "output", "result"); output != nil {
		if url := stringField(output, "framesUrl", "frames_url", "url"); url != "" {
			return url
		}
	}
	return ""
}

// framesFromList converts structured frame records into the frame map.
// Frames without a valid non-negative integer index are dropped.
func (c *Client) framesFromList(mctx MaskContext, list []any) VideoFrameMaskMap {
	out := VideoFrameMaskMap{}
	for _, entry := range list {
		frame, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		idx, ok := frameIndex(frame)
		if !ok {
			continue
		}
		masks := c.frameObjects(mctx, frame)
		if len(masks) > 0 {
			out[idx] = masks
		}
	}
	return out
}

// framesFromNDJSON parses newline-delimited JSON, one frame record per
// line. A line that fails to parse is skipped, never fatal.
func (c *Client) framesFromNDJSON(mctx MaskContext, text string) VideoFrameMaskMap {
	out := VideoFrameMaskMap{}
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			skipped++
			continue
		}
		idx, ok := frameIndex(frame)
		if !ok {
			skipped++
			continue
		}
		masks := c.frameObjects(mctx, frame)
		if len(masks) > 0 {
			out[idx] = masks
		}
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("Skipped unparsable frame mask lines")
	}
	return out
}

// framesFromRemote fetches an NDJSON resource and parses it. Gzip is
// detected via Content-Encoding, Content-Type, or a .gz URL suffix and
// decompressed as a stream before UTF-8 decoding.
func (c *Client) framesFromRemote(ctx context.Context, mctx MaskContext, url string) VideoFrameMaskMap {
	resp, err := c.transport.getAsset(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Frame mask fetch failed")
		return VideoFrameMaskMap{}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("statusCode", resp.StatusCode).Str("url", url).Msg("Frame mask fetch failed")
		return VideoFrameMaskMap{}
	}

	var reader io.Reader = resp.Body
	if isGzipResource(resp, url) {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("Frame mask stream is not valid gzip")
			return VideoFrameMaskMap{}
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Frame mask stream read failed")
		return VideoFrameMaskMap{}
	}
	return c.framesFromNDJSON(mctx, string(body))
}

// frameIndex extracts a non-negative integer frame index.
func frameIndex(frame map[string]any) (int, bool) {
	f, ok := numberField(frame, "frameIdx", "frame_idx", "frameIndex", "frame_index", "frame")
	if !ok || f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// frameObjects converts a frame's objects array into mask records sorted
// by ascending MaskIndex. An object's objectId becomes its MaskIndex,
// falling back to array position when absent or non-numeric.
func (c *Client) frameObjects(mctx MaskContext, frame map[string]any) []MaskArtifact {
	var masks []MaskArtifact
	for i, entry := range anyList(frame, "objects") {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		masks = append(masks, c.normalizeMask(mctx, obj, i))
	}
	sort.Slice(masks, func(a, b int) bool {
		return masks[a].MaskIndex < masks[b].MaskIndex
	})
	return masks
}
