// Package grzerr implements the tagged error taxonomy of spec.md §7: a
// closed set of error kinds the CLI layer matches on to decide exit codes
// and messaging, each wrapping an underlying cause where one exists.
package grzerr

import "fmt"

// ConfigError reports malformed YAML, a missing required field, or
// mutually-exclusive fields both set.
type ConfigError struct {
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// MetadataError reports an unsupported schema version, malformed JSON, or
// one or more invariant violations; Diagnostics carries the full list when
// available.
type MetadataError struct {
	Msg         string
	Diagnostics []string
	Cause       error
}

func (e *MetadataError) Error() string {
	if len(e.Diagnostics) > 0 {
		return fmt.Sprintf("metadata: %s (%d diagnostic(s))", e.Msg, len(e.Diagnostics))
	}
	if e.Cause != nil {
		return fmt.Sprintf("metadata: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("metadata: %s", e.Msg)
}

func (e *MetadataError) Unwrap() error { return e.Cause }

// FileErrorKind enumerates the reasons a file can fail local validation.
type FileErrorKind int

const (
	FileMissing FileErrorKind = iota
	FileNotAFile
	FileChecksumMismatch
	FileSizeMismatch
	FileBadFormat
)

func (k FileErrorKind) String() string {
	switch k {
	case FileMissing:
		return "missing"
	case FileNotAFile:
		return "not a file"
	case FileChecksumMismatch:
		return "checksum mismatch"
	case FileSizeMismatch:
		return "size mismatch"
	case FileBadFormat:
		return "bad format"
	default:
		return "unknown"
	}
}

// FileError reports a file-scoped validation failure.
type FileError struct {
	Kind FileErrorKind
	Path string
	Msg  string
}

func (e *FileError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("file %s: %s: %s", e.Path, e.Kind, e.Msg)
	}
	return fmt.Sprintf("file %s: %s", e.Path, e.Kind)
}

// CryptoErrorKind enumerates the ways a Crypt4GH operation can fail.
type CryptoErrorKind int

const (
	CryptoBadHeader CryptoErrorKind = iota
	CryptoKeyMismatch
	CryptoCorruptSegment
	CryptoTruncated
	CryptoKeyFileMissing
	CryptoBadPassphrase
)

func (k CryptoErrorKind) String() string {
	switch k {
	case CryptoBadHeader:
		return "bad header"
	case CryptoKeyMismatch:
		return "key mismatch"
	case CryptoCorruptSegment:
		return "corrupt segment"
	case CryptoTruncated:
		return "truncated"
	case CryptoKeyFileMissing:
		return "key file missing"
	case CryptoBadPassphrase:
		return "bad passphrase"
	default:
		return "unknown"
	}
}

// CryptoError reports an encrypt/decrypt failure, file-scoped where a path
// applies.
type CryptoError struct {
	Kind  CryptoErrorKind
	Path  string
	Cause error
}

func (e *CryptoError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("crypto: %s: %s: %v", e.Path, e.Kind, e.Cause)
	}
	return fmt.Sprintf("crypto: %s: %v", e.Kind, e.Cause)
}

func (e *CryptoError) Unwrap() error { return e.Cause }

// TransferErrorKind enumerates the ways an object-store operation can fail.
type TransferErrorKind int

const (
	TransferNotFound TransferErrorKind = iota
	TransferAlreadyExists
	TransferPermissionDenied
	TransferNetwork
	TransferOther
)

func (k TransferErrorKind) String() string {
	switch k {
	case TransferNotFound:
		return "not found"
	case TransferAlreadyExists:
		return "already exists"
	case TransferPermissionDenied:
		return "permission denied"
	case TransferNetwork:
		return "network error"
	default:
		return "transfer error"
	}
}

// TransferError reports an object-store operation failure.
type TransferError struct {
	Kind  TransferErrorKind
	Key   string
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: %s %s: %v", e.Kind, e.Key, e.Cause)
}

func (e *TransferError) Unwrap() error { return e.Cause }

// ErrAlreadySubmitted is returned when the metadata key already exists on
// upload (spec.md §4.5 preflight).
var ErrAlreadySubmitted = fmt.Errorf("submission already exists under this tanG")

// ErrCancelled is returned when the user interrupts a stage or the
// external checker exits with status 130.
var ErrCancelled = fmt.Errorf("cancelled")
