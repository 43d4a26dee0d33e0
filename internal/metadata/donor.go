package metadata

import (
	"fmt"
	"strings"
)

// Donor is one participant in a submission: the index patient or a relative
// whose lab data is included for phasing (spec.md §3).
type Donor struct {
	DonorPseudonym   string            `json:"donorPseudonym" validate:"required"`
	Gender           Gender            `json:"gender" validate:"required"`
	Relation         Relation          `json:"relation" validate:"required"`
	MvConsent        MvConsent         `json:"mvConsent"`
	ResearchConsents []ResearchConsent `json:"researchConsents" validate:"dive"`
	LabData          []LabDatum        `json:"labData" validate:"dive"`
}

// pairedEndLibraryTypes excludes the long-read variants, which are exempt
// from the FASTQ R1/R2 pairing invariant (spec.md §3, invariant 7).
var pairedEndLibraryTypes = map[LibraryType]bool{
	LibraryPanel: true, LibraryWES: true, LibraryWGS: true, LibraryWXS: true,
}

var longReadLibraryTypes = map[LibraryType]bool{
	LibraryPanelLR: true, LibraryWESLR: true, LibraryWGSLR: true, LibraryWXSLR: true,
}

// diagnostics yields every invariant violation scoped to this donor:
// duplicate lab-data names, missing tumor cell counts, missing BED files,
// the FASTQ/BAM presence rule, and paired-end R1/R2 grouping.
func (d Donor) diagnostics() []string {
	var out []string

	seenNames := make(map[string]bool)
	for _, ld := range d.LabData {
		if seenNames[ld.LabDataName] {
			out = append(out, fmt.Sprintf("duplicate lab datum %q in donor %q", ld.LabDataName, d.DonorPseudonym))
		}
		seenNames[ld.LabDataName] = true

		if msg := ld.validateSequencingSetup(); msg != "" {
			out = append(out, msg)
		}

		if ld.SequenceSubtype == SequenceSubtypeSomatic && len(ld.TumorCellCount) == 0 {
			out = append(out, fmt.Sprintf("missing tumor cell count for donor %q, lab datum %q", d.DonorPseudonym, ld.LabDataName))
		}

		if !ld.HasSequenceData() {
			continue
		}
		sd := ld.SequenceData

		if targetBedLibraryTypes[ld.LibraryType] && !sd.ContainsFiles(FileTypeBED) {
			out = append(out, fmt.Sprintf("BED file missing for lab datum %q in donor %q", ld.LabDataName, d.DonorPseudonym))
		}

		out = append(out, d.diagnoseFastqBam(ld, sd)...)
	}

	return out
}

// diagnoseFastqBam enforces invariant 6 (FASTQ required, BAM only for _lr
// library types) and invariant 7 (paired-end R1/R2 grouping by
// flowcell/lane).
func (d Donor) diagnoseFastqBam(ld LabDatum, sd *SequenceData) []string {
	var out []string

	fastqFiles := sd.ListFiles(FileTypeFASTQ)
	bamFiles := sd.ListFiles(FileTypeBAM)

	if len(fastqFiles) == 0 {
		out = append(out, fmt.Sprintf("no FASTQ file found for lab datum %q in donor %q", ld.LabDataName, d.DonorPseudonym))
	}
	if len(bamFiles) > 0 && !longReadLibraryTypes[ld.LibraryType] {
		out = append(out, fmt.Sprintf("BAM file present for non-long-read lab datum %q in donor %q", ld.LabDataName, d.DonorPseudonym))
	}

	if !pairedEndLibraryTypes[ld.LibraryType] {
		return out
	}
	if ld.SequencingLayout != LayoutPairedEnd {
		return out
	}

	for _, f := range fastqFiles {
		if f.ReadOrder == nil {
			out = append(out, fmt.Sprintf("no read order specified for FASTQ file %q in lab datum %q of donor %q", f.FilePath, ld.LabDataName, d.DonorPseudonym))
		}
	}

	type groupKey struct{ flowcell, lane string }
	groups := make(map[groupKey][]File)
	for _, f := range fastqFiles {
		k := groupKey{flowcellOrEmpty(f.FlowcellID), flowcellOrEmpty(f.LaneID)}
		groups[k] = append(groups[k], f)
	}

	for k, files := range groups {
		var r1, r2 int
		for _, f := range files {
			if f.ReadOrder == nil {
				continue
			}
			switch *f.ReadOrder {
			case ReadOrderR1:
				r1++
			case ReadOrderR2:
				r2++
			}
		}
		if r1 != 1 || r2 != 1 {
			var details []string
			switch {
			case r1 > 1:
				details = append(details, "multiple R1 files")
			case r1 < 1:
				details = append(details, "missing R1 file")
			}
			switch {
			case r2 > 1:
				details = append(details, "multiple R2 files")
			case r2 < 1:
				details = append(details, "missing R2 file")
			}
			out = append(out, pairedEndDiag(ld, d, k.flowcell, k.lane, strings.Join(details, ", ")))
		}
	}

	return out
}

func pairedEndDiag(ld LabDatum, d Donor, flowcell, lane, detail string) string {
	return fmt.Sprintf(
		"lab datum %q of donor %q: Paired end sequencing layout but not there is not exactly one R1 and one R2 (%s) for flowcell id %q, lane id %q",
		ld.LabDataName, d.DonorPseudonym, detail, flowcell, lane,
	)
}

func flowcellOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
