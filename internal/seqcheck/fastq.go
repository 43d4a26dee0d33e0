package seqcheck

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// openFastq transparently decompresses a ".gz"-suffixed path, matching
// grz_common/validation/fastq.py's open_fastq.
func openFastq(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, closerFunc(func() error {
		gz.Close()
		return f.Close()
	})}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// fastqStats is the result of one pass over a FASTQ file: total line count
// and the read length observed on the first sequence line (or the expected
// length passed in, whichever came first to disagree).
type fastqStats struct {
	Lines             int
	ObservedReadLength int
	Diagnostics       []Diagnostic
}

// scanFastq streams a FASTQ file in 4-line records, checking that every
// sequence line matches expectedReadLength (if given) or the first
// observed length otherwise. A mismatch is reported once per file per
// grz_common/validation/fastq.py's calculate_fastq_stats.
func scanFastq(path string, expectedReadLength *int) (fastqStats, error) {
	r, err := openFastq(path)
	if err != nil {
		return fastqStats{}, fmt.Errorf("seqcheck: open %s: %w", path, err)
	}
	defer r.Close()

	var stats fastqStats
	expected := expectedReadLength
	warned := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNumber := -1
	for scanner.Scan() {
		lineNumber++
		if lineNumber%4 != 1 {
			continue
		}
		readLength := len(strings.TrimRight(scanner.Text(), "\r\n"))
		if expected == nil {
			expected = &readLength
			stats.ObservedReadLength = readLength
		} else if !warned && readLength != *expected {
			stats.Diagnostics = append(stats.Diagnostics, Diagnostic{
				Severity: ReadLengthMismatchSeverity,
				Message: fmt.Sprintf(
					"%s: read length mismatch at line %d: expected %d, found %d",
					path, lineNumber+1, *expected, readLength,
				),
			})
			warned = true
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("seqcheck: scan %s: %w", path, err)
	}
	stats.Lines = lineNumber + 1
	if expected != nil {
		stats.ObservedReadLength = *expected
	}
	return stats, nil
}

// ValidateSingleEnd checks one FASTQ file in isolation: the line count must
// be a multiple of 4.
func ValidateSingleEnd(path string, expectedReadLength *int) ([]Diagnostic, error) {
	stats, err := scanFastq(path, expectedReadLength)
	if err != nil {
		return nil, err
	}
	diags := stats.Diagnostics
	if stats.Lines%4 != 0 {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s: number of lines is not a multiple of 4 (found %d)", path, stats.Lines),
		})
	}
	return diags, nil
}

// ValidatePairedEnd checks two mated FASTQ files: each individually, plus
// that both contain the same number of reads.
func ValidatePairedEnd(r1Path, r2Path string, expectedReadLength *int) ([]Diagnostic, error) {
	s1, err := scanFastq(r1Path, expectedReadLength)
	if err != nil {
		return nil, err
	}
	s2, err := scanFastq(r2Path, expectedReadLength)
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	diags = append(diags, s1.Diagnostics...)
	diags = append(diags, s2.Diagnostics...)

	if s1.Lines%4 != 0 {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"%s: number of lines is not a multiple of 4 (found %d)", r1Path, s1.Lines,
		)})
	}
	if s2.Lines%4 != 0 {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"%s: number of lines is not a multiple of 4 (found %d)", r2Path, s2.Lines,
		)})
	}
	if s1.Lines != s2.Lines {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"paired-end files have different read counts: %q (%d) and %q (%d)",
			r1Path, s1.Lines, r2Path, s2.Lines,
		)})
	}

	return diags, nil
}
