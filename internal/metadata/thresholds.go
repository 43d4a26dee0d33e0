package metadata

import "fmt"

// thresholdKey is the (study-subtype, library-type, sequence-subtype) tuple
// the quality-threshold table (spec.md §3 invariant 12, §8) is keyed on.
type thresholdKey struct {
	StudySubtype    GenomicStudySubtype
	LibraryType     LibraryType
	SequenceSubtype SequenceSubtype
}

// thresholdRow is the set of minimums a (study-subtype, library-type,
// sequence-subtype) combination must meet. A zero value for a given check
// means that check does not apply to the row.
type thresholdRow struct {
	MeanDepthOfCoverage             float64
	MinCoverage                     float64
	TargetedRegionsAboveMinCoverage float64
	ReadLength                      int
}

// thresholdTable is the partial quality-threshold table given as a test
// vector in spec.md §8. Missing combinations produce a warning rather than a
// failure (invariant 12).
var thresholdTable = map[thresholdKey]thresholdRow{
	{SubtypeTumorGermline, LibraryWES, SequenceSubtypeGermline}: {
		MeanDepthOfCoverage: 30, MinCoverage: 20, TargetedRegionsAboveMinCoverage: 0.95,
	},
	{SubtypeGermlineOnly, LibraryWGS, SequenceSubtypeGermline}: {
		MeanDepthOfCoverage: 30, MinCoverage: 20, TargetedRegionsAboveMinCoverage: 0.95,
	},
}

// checkThresholds applies the row for (studySubtype, ld.LibraryType,
// ld.SequenceSubtype) if one exists, returning diagnostics for any value
// below threshold. A missing row produces a single warning diagnostic.
func checkThresholds(studySubtype GenomicStudySubtype, donorPseudonym string, ld LabDatum) []Diagnostic {
	if !ld.HasSequenceData() {
		return nil
	}
	key := thresholdKey{studySubtype, ld.LibraryType, ld.SequenceSubtype}
	row, ok := thresholdTable[key]
	if !ok {
		return []Diagnostic{{
			Severity: SeverityWarning,
			Message: fmt.Sprintf(
				"no quality thresholds for combination (studySubtype=%s, libraryType=%s, sequenceSubtype=%s) "+
					"found (donor %s, lab datum %s); skipping threshold validation",
				studySubtype, ld.LibraryType, ld.SequenceSubtype, donorPseudonym, ld.LabDataName,
			),
		}}
	}

	var diags []Diagnostic
	sd := ld.SequenceData

	if row.MeanDepthOfCoverage > 0 && sd.MeanDepthOfCoverage < row.MeanDepthOfCoverage {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"mean depth of coverage for donor %s, lab datum %s below threshold: %v < %v",
			donorPseudonym, ld.LabDataName, sd.MeanDepthOfCoverage, row.MeanDepthOfCoverage,
		)})
	}

	if row.ReadLength > 0 {
		for _, f := range append(sd.ListFiles(FileTypeFASTQ), sd.ListFiles(FileTypeBAM)...) {
			if f.ReadLength != nil && *f.ReadLength < row.ReadLength {
				diags = append(diags, Diagnostic{Severity: ReadLengthMismatchSeverity, Message: fmt.Sprintf(
					"read length for donor %s, lab datum %s below threshold: %d < %d",
					donorPseudonym, ld.LabDataName, *f.ReadLength, row.ReadLength,
				)})
			}
		}
	}

	if row.MinCoverage > 0 && sd.MinCoverage < row.MinCoverage {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"minimum coverage for donor %s, lab datum %s below threshold: %v < %v",
			donorPseudonym, ld.LabDataName, sd.MinCoverage, row.MinCoverage,
		)})
	}
	if row.TargetedRegionsAboveMinCoverage > 0 && sd.TargetedRegionsAboveMinCoverage < row.TargetedRegionsAboveMinCoverage {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"fraction of targeted regions above minimum coverage for donor %s, lab datum %s below threshold: %v < %v",
			donorPseudonym, ld.LabDataName, sd.TargetedRegionsAboveMinCoverage, row.TargetedRegionsAboveMinCoverage,
		)})
	}

	return diags
}
