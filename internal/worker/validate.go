package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grz-tools/grz-submit-core/internal/hashing"
	"github.com/grz-tools/grz-submit-core/internal/ledger"
	"github.com/grz-tools/grz-submit-core/internal/metadata"
	"github.com/grz-tools/grz-submit-core/internal/seqcheck"
)

// ValidateMetadata runs the document-level five-phase check (C4) before any
// file work begins; a non-empty error-severity diagnostic list is fatal per
// spec.md §7, so callers should treat it the same as an error return.
func ValidateMetadata(doc metadata.Document, expectedGRZ, expectedLE string) ([]metadata.Diagnostic, error) {
	diags, err := doc.Validate()
	if err != nil {
		return diags, err
	}
	diags = append(diags, doc.CheckIdentifiers(expectedGRZ, expectedLE)...)
	return diags, nil
}

// ValidateFiles runs checksum validation and, for fastq/bam files,
// sequencing-data validation over every unit, caching outcomes in the two
// stage ledgers so a second run only recomputes files whose (path, mtime,
// size) changed (spec.md §4.2, §4.3).
//
// When force is true both ledgers are discarded first, forcing full
// recomputation.
func (w *Worker) ValidateFiles(ctx context.Context, units []FileUnit, force bool) ([]FileResult, error) {
	checksumPath := w.Layout.ledgerPath(ledger.StageChecksumValidation)
	seqPath := w.Layout.ledgerPath(ledger.StageSequencingValidation)
	if force {
		if err := ledger.Delete(checksumPath); err != nil {
			return nil, err
		}
		if err := ledger.Delete(seqPath); err != nil {
			return nil, err
		}
	}

	checksumLog, err := ledger.Open(checksumPath)
	if err != nil {
		return nil, fmt.Errorf("worker: open checksum ledger: %w", err)
	}
	defer checksumLog.Close()

	seqLog, err := ledger.Open(seqPath)
	if err != nil {
		return nil, fmt.Errorf("worker: open sequencing ledger: %w", err)
	}
	defer seqLog.Close()

	mates := pairMates(units)
	results := w.runPool(ctx, units, func(unit FileUnit) error {
		return validateOne(checksumLog, seqLog, w.Layout.FilesDir, unit, mates[unit.RelPath])
	})
	return results, nil
}

// pairMates groups FASTQ units carrying a read order by flowcell and lane,
// returning the mate's RelPath for each unit of a group that contains
// exactly one R1 and one R2 (spec.md §4.4). Groups that don't resolve to
// exactly one pair are left out: ValidateMetadata's invariant 7 check
// already reports those as a diagnostic, so ValidateFiles falls back to
// single-end line-count validation for them instead of guessing a mate.
func pairMates(units []FileUnit) map[string]string {
	type groupKey struct{ flowcell, lane string }
	groups := make(map[groupKey][]FileUnit)
	for _, u := range units {
		if u.Meta.FileType != metadata.FileTypeFASTQ || u.Meta.ReadOrder == nil {
			continue
		}
		k := groupKey{stringOrEmpty(u.Meta.FlowcellID), stringOrEmpty(u.Meta.LaneID)}
		groups[k] = append(groups[k], u)
	}

	mates := make(map[string]string)
	for _, g := range groups {
		var r1, r2 *FileUnit
		for i := range g {
			switch *g[i].Meta.ReadOrder {
			case metadata.ReadOrderR1:
				r1 = &g[i]
			case metadata.ReadOrderR2:
				r2 = &g[i]
			}
		}
		if r1 != nil && r2 != nil && len(g) == 2 {
			mates[r1.RelPath] = r2.RelPath
			mates[r2.RelPath] = r1.RelPath
		}
	}
	return mates
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func validateOne(checksumLog, seqLog *ledger.Ledger, filesDir string, unit FileUnit, mateRelPath string) error {
	absPath := filepath.Join(filesDir, unit.RelPath)
	key := ledger.KeyFor(absPath)

	var checksumState ledger.ValidationState
	err := checksumLog.GetOrCompute(key, unit.Meta, &checksumState, func() (interface{}, error) {
		return computeChecksumState(absPath, unit.Meta), nil
	})
	if err != nil {
		return fmt.Errorf("worker: checksum validation of %s: %w", unit.RelPath, err)
	}

	needsSeqData := unit.Meta.FileType == metadata.FileTypeFASTQ || unit.Meta.FileType == metadata.FileTypeBAM
	if needsSeqData {
		var seqState ledger.ValidationState
		var matePath string
		if mateRelPath != "" {
			matePath = filepath.Join(filesDir, mateRelPath)
		}
		err := seqLog.GetOrCompute(key, unit.Meta, &seqState, func() (interface{}, error) {
			return computeSeqDataState(absPath, matePath, unit.Meta), nil
		})
		if err != nil {
			return fmt.Errorf("worker: sequencing-data validation of %s: %w", unit.RelPath, err)
		}
		if !seqState.ValidationPassed {
			return fmt.Errorf("worker: sequencing-data validation failed for %s: %v", unit.RelPath, seqState.Errors)
		}
	}

	if !checksumState.ValidationPassed {
		return fmt.Errorf("worker: checksum validation failed for %s: %v", unit.RelPath, checksumState.Errors)
	}
	return nil
}

func computeChecksumState(absPath string, meta metadata.File) ledger.ValidationState {
	sum, err := hashing.SumFile(absPath, hashing.SHA256, nil)
	if err != nil {
		return ledger.ValidationState{ValidationPassed: false, Errors: []string{err.Error()}}
	}
	var errs []string
	if sum != meta.FileChecksum {
		errs = append(errs, fmt.Sprintf("checksum mismatch: expected %s, got %s", meta.FileChecksum, sum))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		errs = append(errs, err.Error())
	} else if info.Size() != meta.FileSizeInBytes {
		errs = append(errs, fmt.Sprintf("size mismatch: expected %d, got %d", meta.FileSizeInBytes, info.Size()))
	}
	return ledger.ValidationState{ValidationPassed: len(errs) == 0, Errors: errs}
}

func computeSeqDataState(absPath, matePath string, meta metadata.File) ledger.ValidationState {
	var diags []seqcheck.Diagnostic
	var err error
	switch meta.FileType {
	case metadata.FileTypeBAM:
		diags, err = seqcheck.ValidateBAM(absPath)
	case metadata.FileTypeFASTQ:
		if matePath != "" {
			diags, err = seqcheck.ValidatePairedEnd(absPath, matePath, meta.ReadLength)
		} else {
			diags, err = seqcheck.ValidateSingleEnd(absPath, meta.ReadLength)
		}
	}
	if err != nil {
		return ledger.ValidationState{ValidationPassed: false, Errors: []string{err.Error()}}
	}
	var errs []string
	for _, d := range diags {
		if d.Severity == seqcheck.SeverityError {
			errs = append(errs, d.Message)
		}
	}
	return ledger.ValidationState{ValidationPassed: len(errs) == 0, Errors: errs}
}
