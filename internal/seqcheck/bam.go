package seqcheck

import (
	"fmt"
	"os"

	"github.com/biogo/hts/bam"
)

// ValidateBAM opens a BAM file and warns (never fails) if its header
// carries record types besides @HD, mirroring
// grz_common/validation/bam.py's check: such sections (@RG, @PG, @CO, @SQ)
// can carry identifying information and are worth a human look before
// submission, but their mere presence is not itself a validation failure.
func ValidateBAM(path string) ([]Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seqcheck: open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, fmt.Errorf("seqcheck: read BAM header %s: %w", path, err)
	}
	defer reader.Close()

	header := reader.Header()

	var concerning []string
	if len(header.Refs()) > 0 {
		concerning = append(concerning, "SQ")
	}
	if len(header.RGs()) > 0 {
		concerning = append(concerning, "RG")
	}
	if len(header.Programs()) > 0 {
		concerning = append(concerning, "PG")
	}
	if len(header.Comments) > 0 {
		concerning = append(concerning, "CO")
	}

	if len(concerning) == 0 {
		return nil, nil
	}
	return []Diagnostic{{
		Severity: SeverityWarning,
		Message: fmt.Sprintf(
			"%s: BAM header contains %v sections, ensure it contains no private information", path, concerning,
		),
	}}, nil
}
