// Package hashing provides bounded-memory streaming checksums, used by the
// stage worker's checksum validation of submission files.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// chunkSize bounds memory usage regardless of input size, mirroring the
// teacher's preference for streaming blob handling over slurping files
// whole (main.go's GitParse reads records incrementally).
const chunkSize = 1 << 20 // 1 MiB

// Algorithm identifies a supported checksum algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

func newHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("hashing: unsupported algorithm %q", algo)
	}
}

// Progress is invoked after each chunk is read, with the number of bytes
// read so far. It may be nil.
type Progress func(bytesRead int64)

// Sum streams r in fixed-size chunks, invoking progress after each chunk,
// and returns the lowercase hex digest.
func Sum(r io.Reader, algo Algorithm, progress Progress) (string, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", err
	}
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := h.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("hashing: write: %w", err)
			}
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("hashing: read: %w", readErr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile opens path and computes its digest.
func SumFile(path string, algo Algorithm, progress Progress) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing: open %s: %w", path, err)
	}
	defer f.Close()
	return Sum(f, algo, progress)
}
