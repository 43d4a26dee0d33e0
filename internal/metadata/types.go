// Package metadata models the submission metadata document (C4): the
// Submission header, Donor, LabDatum, SequenceData, and File types carried
// in metadata.json, plus the consent sum type and the validator that checks
// the twelve cross-field invariants of spec.md §3.
package metadata

// SubmissionType enumerates why a submission is being made.
type SubmissionType string

const (
	SubmissionInitial   SubmissionType = "initial"
	SubmissionFollowup  SubmissionType = "followup"
	SubmissionAddition  SubmissionType = "addition"
	SubmissionCorrection SubmissionType = "correction"
	SubmissionTest       SubmissionType = "test"
)

// GenomicStudyType gates the minimum donor count (spec.md §3, invariant 1).
type GenomicStudyType string

const (
	StudySingle GenomicStudyType = "single"
	StudyDuo    GenomicStudyType = "duo"
	StudyTrio   GenomicStudyType = "trio"
)

// GenomicStudySubtype is one leg of the quality-threshold lookup key.
type GenomicStudySubtype string

const (
	SubtypeTumorOnly      GenomicStudySubtype = "tumor-only"
	SubtypeTumorGermline  GenomicStudySubtype = "tumor+germline"
	SubtypeGermlineOnly   GenomicStudySubtype = "germline-only"
)

// CoverageType is the statutory health-insurance coverage code.
type CoverageType string

const (
	CoverageGKV CoverageType = "GKV"
	CoveragePKV CoverageType = "PKV"
	CoverageBG  CoverageType = "BG"
	CoverageSEL CoverageType = "SEL"
	CoverageSOZ CoverageType = "SOZ"
	CoverageGPV CoverageType = "GPV"
	CoveragePPV CoverageType = "PPV"
	CoverageBEI CoverageType = "BEI"
	CoverageSKT CoverageType = "SKT"
	CoverageUNK CoverageType = "UNK"
)

// DiseaseType classifies the clinical indication driving the submission.
type DiseaseType string

const (
	DiseaseOncological DiseaseType = "oncological"
	DiseaseRare        DiseaseType = "rare"
	DiseaseHereditary  DiseaseType = "hereditary"
)

// Gender of a donor.
type Gender string

const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderUnknown   Gender = "unknown"
	GenderOther     Gender = "other"
)

// Relation of a donor to the index patient.
type Relation string

const (
	RelationIndex   Relation = "index"
	RelationMother  Relation = "mother"
	RelationFather  Relation = "father"
	RelationBrother Relation = "brother"
	RelationSister  Relation = "sister"
	RelationChild   Relation = "child"
	RelationOther   Relation = "other"
)

// TissueOntology names the ontology a tissue type is drawn from.
type TissueOntology struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

// SampleConservation describes how a sample was preserved.
type SampleConservation string

const (
	ConservationFreshTissue SampleConservation = "fresh-tissue"
	ConservationCryoFrozen  SampleConservation = "cryo-frozen"
	ConservationFFPE        SampleConservation = "ffpe"
	ConservationOther       SampleConservation = "other"
	ConservationUnknown     SampleConservation = "unknown"
)

// SequenceType distinguishes DNA from RNA sequencing.
type SequenceType string

const (
	SequenceDNA SequenceType = "dna"
	SequenceRNA SequenceType = "rna"
)

// SequenceSubtype distinguishes germline from somatic material.
type SequenceSubtype string

const (
	SequenceSubtypeGermline SequenceSubtype = "germline"
	SequenceSubtypeSomatic  SequenceSubtype = "somatic"
	SequenceSubtypeOther    SequenceSubtype = "other"
	SequenceSubtypeUnknown  SequenceSubtype = "unknown"
)

// FragmentationMethod names how the library was fragmented.
type FragmentationMethod string

const (
	FragmentationSonication FragmentationMethod = "sonication"
	FragmentationEnzymatic  FragmentationMethod = "enzymatic"
	FragmentationNone       FragmentationMethod = "none"
	FragmentationOther      FragmentationMethod = "other"
	FragmentationUnknown    FragmentationMethod = "unknown"
)

// LibraryType enumerates the sequencing library strategy.
type LibraryType string

const (
	LibraryPanel   LibraryType = "panel"
	LibraryPanelLR LibraryType = "panel_lr"
	LibraryWES     LibraryType = "wes"
	LibraryWESLR   LibraryType = "wes_lr"
	LibraryWGS     LibraryType = "wgs"
	LibraryWGSLR   LibraryType = "wgs_lr"
	LibraryWXS     LibraryType = "wxs"
	LibraryWXSLR   LibraryType = "wxs_lr"
	LibraryOther   LibraryType = "other"
	LibraryUnknown LibraryType = "unknown"
)

// targetBedLibraryTypes need a BED file (spec.md §3, invariant 5).
var targetBedLibraryTypes = map[LibraryType]bool{
	LibraryPanel:   true,
	LibraryWES:     true,
	LibraryWXS:     true,
	LibraryPanelLR: true,
	LibraryWESLR:   true,
	LibraryWXSLR:   true,
}

// EnrichmentKitManufacturer names the target-enrichment kit vendor.
type EnrichmentKitManufacturer string

const (
	EnrichmentIllumina EnrichmentKitManufacturer = "Illumina"
	EnrichmentAgilent  EnrichmentKitManufacturer = "Agilent"
	EnrichmentTwist     EnrichmentKitManufacturer = "Twist"
	EnrichmentNEB       EnrichmentKitManufacturer = "NEB"
	EnrichmentOther     EnrichmentKitManufacturer = "other"
	EnrichmentUnknown   EnrichmentKitManufacturer = "unknown"
	EnrichmentNone      EnrichmentKitManufacturer = "none"
)

// SequencingLayout is the end type of sequencing.
type SequencingLayout string

const (
	LayoutSingleEnd SequencingLayout = "single-end"
	LayoutPairedEnd SequencingLayout = "paired-end"
	LayoutReverse   SequencingLayout = "reverse"
	LayoutOther     SequencingLayout = "other"
)

// TumorCellCountMethod names how a tumor cell count was determined.
type TumorCellCountMethod string

const (
	TumorCellCountPathology      TumorCellCountMethod = "pathology"
	TumorCellCountBioinformatics TumorCellCountMethod = "bioinformatics"
	TumorCellCountOther          TumorCellCountMethod = "other"
	TumorCellCountUnknown        TumorCellCountMethod = "unknown"
)

// TumorCellCount pairs a percentage with the method used to derive it.
type TumorCellCount struct {
	Count  float64               `json:"count" validate:"gte=0,lte=100"`
	Method TumorCellCountMethod `json:"method" validate:"required"`
}

// CallerUsedItem names one variant caller in the analysis pipeline.
type CallerUsedItem struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

// FileType is the role a submitted file plays.
type FileType string

const (
	FileTypeBAM   FileType = "bam"
	FileTypeVCF   FileType = "vcf"
	FileTypeBED   FileType = "bed"
	FileTypeFASTQ FileType = "fastq"
)

// ChecksumType names the checksum algorithm used for a file.
type ChecksumType string

// ChecksumSHA256 is the only checksum type accepted (spec.md §3).
const ChecksumSHA256 ChecksumType = "sha256"

// ReadOrder distinguishes the two mates of a paired-end read.
type ReadOrder string

const (
	ReadOrderR1 ReadOrder = "R1"
	ReadOrderR2 ReadOrder = "R2"
)

// ReferenceGenome is the reference assembly files were aligned against.
type ReferenceGenome string

const (
	ReferenceGRCh37 ReferenceGenome = "GRCh37"
	ReferenceGRCh38 ReferenceGenome = "GRCh38"
)
