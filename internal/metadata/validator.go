package metadata

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Severity distinguishes a diagnostic that fails validation from one that
// is informational only.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one finding from validating a submission document.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// ReadLengthMismatchSeverity controls how a below-threshold read length is
// reported by the quality-threshold check. Set to SeverityError to make it a
// hard failure instead of a warning (spec.md §9). The in-file FASTQ
// read-length check is controlled separately by
// seqcheck.ReadLengthMismatchSeverity.
var ReadLengthMismatchSeverity = SeverityWarning

// acceptedSchemaVersions is the closed set of metadata.json schema versions
// this validator accepts (spec.md §4.3 phase 1).
var acceptedSchemaVersions = map[string]bool{
	"1.1.1": true,
	"1.1.0": true,
	"1.0.0": true,
}

// SchemaURL is the canonical "$schema" value written into new documents.
const SchemaURL = "https://www.bfarm.de/SharedDocs/Downloads/DE/Forschung/modellvorhaben-genomsequenzierung/GRZ-Submission-Metadata-Schema.json"

// Document is the full on-disk metadata.json document: a schema pointer,
// the submission header, and the list of donors (spec.md §3).
type Document struct {
	Schema        string  `json:"$schema"`
	SchemaVersion string  `json:"schemaVersion" validate:"required"`
	Submission    Submission `json:"submission"`
	Donors        []Donor    `json:"donors" validate:"dive"`
}

var structValidate = validator.New()

// Validate runs the five-phase check of spec.md §4.3 and returns every
// diagnostic found; an empty, all-warnings result means the submission is
// fit to proceed. Fatal parse/schema problems are returned as an error
// instead of a diagnostic, since no further phase can run meaningfully.
func (d Document) Validate() ([]Diagnostic, error) {
	var diags []Diagnostic

	// Phase 1: schema.
	if !acceptedSchemaVersions[d.SchemaVersion] {
		return nil, fmt.Errorf("metadata: unsupported schema version %q", d.SchemaVersion)
	}

	// Phase 2: structural (enum/range/path checks via struct tags plus the
	// ID-prefix regexes the struct tags can't express). Validating the
	// whole document, not just d.Submission, lets the validator dive into
	// Donors/LabData/SequenceData/Files and enforce their required fields
	// and numeric ranges too.
	if err := structValidate.Struct(d); err != nil {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: err.Error()})
	}
	diags = append(diags, d.structuralDiagnostics()...)

	// Phase 3: whole-submission invariants (1, 2, 8, 9); the path and
	// extension invariants (10, 11) already ran in phase 2.
	diags = append(diags, d.crossFieldDiagnostics()...)

	// Phase 4: the per-donor invariants (3–7, via Donor.diagnostics) and the
	// quality thresholds (invariant 12), which need the submission's study
	// subtype.
	for _, donor := range d.Donors {
		for _, diag := range donor.diagnostics() {
			diags = append(diags, Diagnostic{Severity: SeverityError, Message: diag})
		}
		for _, ld := range donor.LabData {
			diags = append(diags, checkThresholds(d.Submission.GenomicStudySubtype, donor.DonorPseudonym, ld)...)
		}
	}

	// Phase 5: identifier agreement is the caller's job (it requires the
	// config-supplied expected GRZ/LE identifiers, which this package does
	// not have access to) — see Document.CheckIdentifiers.

	return diags, nil
}

// CheckIdentifiers is phase 5: cross-checking the submission's declared
// genomicDataCenterId/clinicalDataNodeId against the operator's configured
// identifiers (spec.md §4.3 phase 5).
func (d Document) CheckIdentifiers(expectedGRZ, expectedLE string) []Diagnostic {
	var diags []Diagnostic
	if expectedGRZ != "" && d.Submission.GenomicDataCenterID != expectedGRZ {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"genomicDataCenterId %q does not match configured identifier %q",
			d.Submission.GenomicDataCenterID, expectedGRZ,
		)})
	}
	if expectedLE != "" && d.Submission.ClinicalDataNodeID != expectedLE {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"clinicalDataNodeId %q does not match configured identifier %q",
			d.Submission.ClinicalDataNodeID, expectedLE,
		)})
	}
	return diags
}

func (d Document) structuralDiagnostics() []Diagnostic {
	var diags []Diagnostic

	if !hasPrefixedSuffix(d.Submission.GenomicDataCenterID, "GRZ", 6) {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"genomicDataCenterId %q does not match the required GRZ<3 alnum><3 digit> form", d.Submission.GenomicDataCenterID,
		)})
	}
	if !hasPrefixedSuffix(d.Submission.ClinicalDataNodeID, "KDK", 6) {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"clinicalDataNodeId %q does not match the required KDK<3 alnum><3 digit> form", d.Submission.ClinicalDataNodeID,
		)})
	}

	for _, donor := range d.Donors {
		for _, ld := range donor.LabData {
			if !ld.HasSequenceData() {
				continue
			}
			for _, f := range ld.SequenceData.Files {
				if msg := f.readLengthDiagnostic(); msg != "" {
					diags = append(diags, Diagnostic{Severity: SeverityError, Message: msg})
				}
				if msg := validateFilePath(f.FilePath); msg != "" {
					diags = append(diags, Diagnostic{Severity: SeverityError, Message: msg})
				}
				if msg := validateExtensionConsistency(f); msg != "" {
					diags = append(diags, Diagnostic{Severity: SeverityError, Message: msg})
				}
			}
		}
	}

	return diags
}

// hasPrefixedSuffix checks the "<prefix><alphanumeric...><digits>" ID shape,
// e.g. GRZ followed by 3 alphanumerics and 3 digits.
func hasPrefixedSuffix(id, prefix string, tailLen int) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	tail := id[len(prefix):]
	if len(tail) != tailLen {
		return false
	}
	for i, r := range tail {
		digit := r >= '0' && r <= '9'
		alnum := digit || (r >= 'A' && r <= 'Z')
		if !alnum {
			return false
		}
		if i >= tailLen-3 && !digit {
			return false
		}
	}
	return true
}

// validateFilePath enforces invariant 10: relative, normalized (no "."/".."
// segments, not absolute), and short enough once prefixed by
// "<submission_id>/files/".
func validateFilePath(filePath string) string {
	if path.IsAbs(filePath) || strings.HasPrefix(filePath, "/") {
		return fmt.Sprintf("file path %q must be relative", filePath)
	}
	for _, seg := range strings.Split(filePath, "/") {
		if seg == "." || seg == ".." || seg == "" {
			return fmt.Sprintf("file path %q is not normalized (contains %q segment)", filePath, seg)
		}
	}
	if path.Clean(filePath) != filePath {
		return fmt.Sprintf("file path %q is not normalized", filePath)
	}
	// "<submission_id>/files/" is bounded to 36 bytes by C9's derivation
	// format; the remaining budget out of the 1024-byte object-key limit is
	// reserved for the relative path itself.
	const prefixBudget = 36
	if len(filePath)+prefixBudget > 1024 {
		return fmt.Sprintf("file path %q exceeds the %d-byte object-key budget", filePath, 1024-prefixBudget)
	}
	return ""
}

var fileTypeExtensions = map[FileType][]string{
	FileTypeBAM:   {".bam"},
	FileTypeVCF:   {".vcf", ".vcf.gz"},
	FileTypeBED:   {".bed", ".bed.gz"},
	FileTypeFASTQ: {".fastq.gz", ".fq.gz", ".fastq", ".fq"},
}

// validateExtensionConsistency enforces invariant 11: the file's extension
// matches its declared type (and BAM in particular is never gzip-suffixed).
func validateExtensionConsistency(f File) string {
	if strings.HasSuffix(f.FilePath, ".gz") && f.FileType == FileTypeBAM {
		return fmt.Sprintf("file %q is type bam but has a .gz suffix", f.FilePath)
	}
	exts, ok := fileTypeExtensions[f.FileType]
	if !ok {
		return ""
	}
	for _, ext := range exts {
		if strings.HasSuffix(f.FilePath, ext) {
			return ""
		}
	}
	return fmt.Sprintf("file %q has an extension inconsistent with declared type %q", f.FilePath, f.FileType)
}

// crossFieldDiagnostics covers the whole-submission invariants: donor count
// (1), exactly one index donor (2), unique lab-data names already folded
// into Donor.diagnostics (4), shared reference genome (8), unique
// flowcell/lane/read-order combinations (9).
func (d Document) crossFieldDiagnostics() []Diagnostic {
	var diags []Diagnostic

	if min := d.Submission.minDonorCount(); len(d.Donors) < min {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"at least %d donor(s) required for study type %q, got %d", min, d.Submission.GenomicStudyType, len(d.Donors),
		)})
	}

	indexCount := 0
	for _, donor := range d.Donors {
		if donor.Relation == RelationIndex {
			indexCount++
		}
	}
	if indexCount != 1 {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
			"exactly one donor must have relation \"index\", found %d", indexCount,
		)})
	}

	genomes := make(map[ReferenceGenome]bool)
	for _, donor := range d.Donors {
		for _, ld := range donor.LabData {
			if ld.HasSequenceData() {
				genomes[ld.SequenceData.ReferenceGenome] = true
			}
		}
	}
	if len(genomes) > 1 {
		diags = append(diags, Diagnostic{Severity: SeverityError, Message: "reference genomes must be consistent within a submission"})
	}

	type flcKey struct {
		flowcell, lane string
		order          ReadOrder
	}
	seen := make(map[flcKey]bool)
	for _, donor := range d.Donors {
		for _, ld := range donor.LabData {
			if !ld.HasSequenceData() {
				continue
			}
			for _, f := range ld.SequenceData.Files {
				if f.FlowcellID == nil || f.LaneID == nil || f.ReadOrder == nil {
					continue
				}
				k := flcKey{*f.FlowcellID, *f.LaneID, *f.ReadOrder}
				if seen[k] {
					diags = append(diags, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(
						"duplicate flowcell/lane/read-order combination: flowcell %q, lane %q, order %q",
						k.flowcell, k.lane, k.order,
					)})
				}
				seen[k] = true
			}
		}
	}

	return diags
}

// HasErrors reports whether any diagnostic in diags is a failure.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
