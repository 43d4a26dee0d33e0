// Package objectstore implements the multipart S3-compatible transfer
// engine (C6): chunk sizing, bounded-fan-out part upload/download, and the
// preflight checks the stage worker relies on (spec.md §4.5).
package objectstore

import (
	"context"
	"errors"
	"io"

	"github.com/grz-tools/grz-submit-core/internal/grzerr"
)

// maxChunks is the hard ceiling on the number of parts a multipart upload
// or download may be split into.
const maxChunks = 1000

// multipartThreshold is the object size above which a transfer switches
// from a single put_object/get_object to multipart.
const multipartThreshold = 8 * 1024 * 1024

// maxChunkSize is the absolute per-part size ceiling (spec.md §8 property
// 5); S3-compatible stores reject any part larger than this.
const maxChunkSize = 5 * 1024 * 1024 * 1024

// ErrAlreadySubmitted is returned by PreflightUpload when the metadata key
// already exists in the bucket; it is the same sentinel the rest of the
// module matches on (spec.md §7).
var ErrAlreadySubmitted = grzerr.ErrAlreadySubmitted

// ErrMetadataNotFound is returned by PreflightDownload when the metadata
// key is absent.
var ErrMetadataNotFound = errors.New("objectstore: metadata key not found")

// ChunkSize computes the effective chunk size for an object of the given
// size, following spec.md §4.5: the target chunk size unless that would
// exceed maxChunks parts, in which case the chunk grows just enough to fit
// within the cap.
func ChunkSize(size int64, targetChunk int64) int64 {
	if targetChunk <= 0 {
		targetChunk = 1
	}
	chunk := targetChunk
	if size/chunk > maxChunks {
		chunk = ceilDiv(size, maxChunks)
	}
	if chunk > maxChunkSize {
		chunk = maxChunkSize
	}
	return chunk
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 1
	}
	return (a + b - 1) / b
}

// UsesMultipart reports whether an object of the given size should be
// transferred with multipart operations rather than a single put/get.
func UsesMultipart(size int64) bool {
	return size > multipartThreshold
}

// PartResult is the outcome of transferring a single part, grounded on the
// cloud-transfer uploader shape used elsewhere in the retrieved corpus
// (StreamingUpload/PartResult).
type PartResult struct {
	PartNumber int32
	ETag       string
	Size       int64
}

// Client is the narrow object-store surface C6 needs: single-object reads
// and writes plus the multipart control-plane operations, in one interface
// that a single implementation can back with any S3-compatible endpoint.
type Client interface {
	HeadObject(ctx context.Context, key string) (exists bool, size int64, err error)
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	GetObjectRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	CreateMultipartUpload(ctx context.Context, key string) (uploadID string, err error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (PartResult, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []PartResult) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	ListObjectsV2(ctx context.Context, prefix string) ([]string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

// PreflightUpload enforces spec.md §4.5's upload preflight: the metadata
// key must not already exist.
func PreflightUpload(ctx context.Context, client Client, metadataKey string) error {
	exists, _, err := client.HeadObject(ctx, metadataKey)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadySubmitted
	}
	return nil
}

// PreflightDownload enforces spec.md §4.5's download preflight: the
// metadata key must exist before any other file is fetched.
func PreflightDownload(ctx context.Context, client Client, metadataKey string) error {
	exists, _, err := client.HeadObject(ctx, metadataKey)
	if err != nil {
		return err
	}
	if !exists {
		return ErrMetadataNotFound
	}
	return nil
}
