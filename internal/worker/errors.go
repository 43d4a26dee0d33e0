package worker

import (
	"errors"

	"github.com/grz-tools/grz-submit-core/internal/crypt4gh"
	"github.com/grz-tools/grz-submit-core/internal/grzerr"
)

// ClassifyCryptoError maps one of crypt4gh's sentinel errors onto the
// taxonomy the CLI layer matches against (spec.md §7); an error that does
// not wrap one of those four sentinels is left unclassified (nil) so the
// caller falls back to its own generic-failure handling.
func ClassifyCryptoError(path string, err error) *grzerr.CryptoError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, crypt4gh.ErrBadHeader):
		return &grzerr.CryptoError{Kind: grzerr.CryptoBadHeader, Path: path, Cause: err}
	case errors.Is(err, crypt4gh.ErrKeyMismatch):
		return &grzerr.CryptoError{Kind: grzerr.CryptoKeyMismatch, Path: path, Cause: err}
	case errors.Is(err, crypt4gh.ErrCorruptSegment):
		return &grzerr.CryptoError{Kind: grzerr.CryptoCorruptSegment, Path: path, Cause: err}
	case errors.Is(err, crypt4gh.ErrTruncated):
		return &grzerr.CryptoError{Kind: grzerr.CryptoTruncated, Path: path, Cause: err}
	default:
		return nil
	}
}
