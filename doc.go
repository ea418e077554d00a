// Package segment is a client for the VisionRelay instance-segmentation
// service. It covers the full request/response boundary: tagged-variant
// request validation before any network call, authenticated JSON transport
// with presigned binary uploads, normalization of the service's wire shapes
// into stable result types, and the mask codec (deterministic artifact
// key/URL derivation, COCO RLE raster decoding via the rle subpackage, and
// per-frame video mask stream parsing).
//
// A Client is constructed with exactly one credential, either an API key or
// a session token:
//
//	client, err := segment.New(
//		segment.WithAPIKey(os.Getenv("SEG_API_KEY")),
//		segment.WithAccountID("acct-123"),
//	)
//
// All operations take a context.Context and are independently cancellable.
// The client holds no mutable state beyond its immutable configuration, so
// a single instance is safe for concurrent use.
package segment
