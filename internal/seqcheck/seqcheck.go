// Package seqcheck implements the cheap structural sanity checks C5 runs
// against FASTQ and BAM files before a submission is trusted: line-count and
// read-length checks for FASTQ, and a private-information header sweep for
// BAM (spec.md §4.4).
package seqcheck

// Severity distinguishes a diagnostic that fails validation from one that is
// informational only, mirroring internal/metadata's Severity so both
// packages' findings can be merged by the stage worker without translation.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Diagnostic is one finding from checking a sequencing file.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// ReadLengthMismatchSeverity controls whether a read-length mismatch within
// a FASTQ file is reported as a warning or an error; mirrors
// metadata.ReadLengthMismatchSeverity (spec.md §9, open question 2) so both
// can be flipped together by callers that want to promote read-length
// checks across the board.
var ReadLengthMismatchSeverity = SeverityWarning
