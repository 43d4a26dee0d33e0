package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func orderPtr(o ReadOrder) *ReadOrder {
	return &o
}

func validFile(name string, order ReadOrder, flowcell, lane string) File {
	rl := 151
	return File{
		FilePath:        name,
		FileType:        FileTypeFASTQ,
		ReadLength:      &rl,
		ChecksumType:    ChecksumSHA256,
		FileChecksum:    strings.Repeat("a", 64),
		FileSizeInBytes: 1000,
		ReadOrder:       orderPtr(order),
		FlowcellID:      strPtr(flowcell),
		LaneID:          strPtr(lane),
	}
}

func validBedFile() File {
	return File{
		FilePath:        "bait.bed",
		FileType:        FileTypeBED,
		ChecksumType:    ChecksumSHA256,
		FileChecksum:    strings.Repeat("b", 64),
		FileSizeInBytes: 100,
	}
}

func baseDocument() Document {
	sd := &SequenceData{
		BioinformaticsPipelineName:    "pipeline",
		BioinformaticsPipelineVersion: "1.0",
		ReferenceGenome:               ReferenceGRCh38,
		PercentBasesAboveQualityThreshold: PercentBasesAboveQualityThreshold{
			MinimumQuality: 30, Percent: 95,
		},
		MeanDepthOfCoverage:             35,
		MinCoverage:                     25,
		TargetedRegionsAboveMinCoverage: 0.97,
		CallerUsed:                      []CallerUsedItem{{Name: "caller", Version: "1.0"}},
		Files: []File{
			validFile("a_R1.fastq.gz", ReadOrderR1, "FC1", "L1"),
			validFile("a_R2.fastq.gz", ReadOrderR2, "FC1", "L1"),
			validBedFile(),
		},
	}

	ld := LabDatum{
		LabDataName:                "Blut DNA normal",
		TissueOntology:              TissueOntology{Name: "ontology", Version: "1"},
		TissueTypeID:                "1",
		TissueTypeName:              "blood",
		SampleDate:                  "2024-07-15",
		SampleConservation:         ConservationFreshTissue,
		SequenceType:                SequenceDNA,
		SequenceSubtype:              SequenceSubtypeGermline,
		FragmentationMethod:          FragmentationSonication,
		LibraryType:                  LibraryWES,
		LibraryPrepKit:                "kit",
		LibraryPrepKitManufacturer:   "vendor",
		SequencerModel:                "NovaSeq",
		SequencerManufacturer:        "Illumina",
		KitName:                      "kit",
		KitManufacturer:              "vendor",
		EnrichmentKitManufacturer:    EnrichmentIllumina,
		EnrichmentKitDescription:     "exome kit",
		Barcode:                      "na",
		SequencingLayout:             LayoutPairedEnd,
		SequenceData:                 sd,
	}

	donor := Donor{
		DonorPseudonym: "index",
		Gender:         GenderFemale,
		Relation:       RelationIndex,
		MvConsent: MvConsent{
			Version: "1",
			Scope: []MvConsentScope{
				{Domain: DomainMvSequencing, Provision: Permit{Codes: []string{"sequencing"}}},
			},
		},
		LabData: []LabDatum{ld},
	}

	return Document{
		Schema:        SchemaURL,
		SchemaVersion: "1.1.1",
		Submission: Submission{
			SubmissionDate:      "2024-07-15",
			SubmissionType:      SubmissionInitial,
			TanG:                strings.Repeat("a", 64),
			LocalCaseID:         "case-1",
			CoverageType:        CoverageGKV,
			SubmitterID:         "260914050",
			GenomicDataCenterID: "GRZABC123",
			ClinicalDataNodeID:  "KDKABC123",
			DiseaseType:         DiseaseRare,
			GenomicStudyType:    StudySingle,
			GenomicStudySubtype: SubtypeTumorGermline,
			LabName:             "Lab",
		},
		Donors: []Donor{donor},
	}
}

func TestValidateHappyPath(t *testing.T) {
	doc := baseDocument()
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.False(t, HasErrors(diags), "unexpected errors: %+v", diags)
}

func TestValidateUnsupportedSchemaVersion(t *testing.T) {
	doc := baseDocument()
	doc.SchemaVersion = "9.9.9"
	_, err := doc.Validate()
	assert.Error(t, err)
}

func TestValidatePairedEndMissingR2(t *testing.T) {
	doc := baseDocument()
	doc.Donors[0].LabData[0].SequenceData.Files = []File{
		validFile("a_R1.fastq.gz", ReadOrderR1, "FC1", "L1"),
		validFile("b_R1.fastq.gz", ReadOrderR1, "FC1", "L1"),
		validBedFile(),
	}
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, HasErrors(diags))
	assert.True(t, containsSubstring(diags, "Paired end sequencing layout but not there is not exactly one R1 and one R2"))
	assert.True(t, containsSubstring(diags, "missing R2 file"))
}

func TestValidateChecksumPatternStructural(t *testing.T) {
	doc := baseDocument()
	doc.Donors[0].LabData[0].SequenceData.Files[0].FileChecksum = "not-hex"
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, HasErrors(diags))
}

func TestValidateDonorCountForTrio(t *testing.T) {
	doc := baseDocument()
	doc.Submission.GenomicStudyType = StudyTrio
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "at least 3 donor"))
}

func TestValidateExactlyOneIndexDonor(t *testing.T) {
	doc := baseDocument()
	second := doc.Donors[0]
	second.DonorPseudonym = "also-index"
	doc.Donors = append(doc.Donors, second)
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "exactly one donor must have relation"))
}

func TestValidateSomaticRequiresTumorCellCount(t *testing.T) {
	doc := baseDocument()
	doc.Donors[0].LabData[0].SequenceSubtype = SequenceSubtypeSomatic
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "missing tumor cell count"))
}

func TestValidateBedFileRequiredForWES(t *testing.T) {
	doc := baseDocument()
	doc.Donors[0].LabData[0].SequenceData.Files = []File{
		validFile("a_R1.fastq.gz", ReadOrderR1, "FC1", "L1"),
		validFile("a_R2.fastq.gz", ReadOrderR2, "FC1", "L1"),
	}
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "BED file missing"))
}

func TestValidateInconsistentReferenceGenomes(t *testing.T) {
	doc := baseDocument()
	second := doc.Donors[0].LabData[0]
	second.LabDataName = "second"
	sdCopy := *second.SequenceData
	sdCopy.ReferenceGenome = ReferenceGRCh37
	second.SequenceData = &sdCopy
	doc.Donors[0].LabData = append(doc.Donors[0].LabData, second)

	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "reference genomes must be consistent"))
}

func TestValidateDuplicateFlowcellLaneReadOrder(t *testing.T) {
	doc := baseDocument()
	second := doc.Donors[0].LabData[0]
	second.LabDataName = "second"
	sdCopy := *second.SequenceData
	sdCopy.Files = append([]File{}, sdCopy.Files...)
	sdCopy.Files = append(sdCopy.Files, validFile("dup_R1.fastq.gz", ReadOrderR1, "FC1", "L1"))
	second.SequenceData = &sdCopy
	doc.Donors[0].LabData = append(doc.Donors[0].LabData, second)

	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "duplicate flowcell/lane/read-order"))
}

func TestValidateMissingQualityThresholdRowWarnsNotFails(t *testing.T) {
	doc := baseDocument()
	doc.Submission.GenomicStudySubtype = SubtypeTumorOnly
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.False(t, HasErrors(diags))
	assert.True(t, containsSubstring(diags, "no quality thresholds"))
}

func TestValidateQualityThresholdBelowMeanDepth(t *testing.T) {
	doc := baseDocument()
	doc.Donors[0].LabData[0].SequenceData.MeanDepthOfCoverage = 10
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "mean depth of coverage"))
}

func TestValidateWXSRequiresRNA(t *testing.T) {
	doc := baseDocument()
	doc.Donors[0].LabData[0].LibraryType = LibraryWXS
	doc.Donors[0].LabData[0].SequenceType = SequenceDNA
	diags, err := doc.Validate()
	require.NoError(t, err)
	assert.True(t, containsSubstring(diags, "WXS requires RNA"))
}

func TestValidateFilePathRejectsTraversal(t *testing.T) {
	assert.NotEmpty(t, validateFilePath("../escape.fastq"))
	assert.NotEmpty(t, validateFilePath("/absolute.fastq"))
	assert.NotEmpty(t, validateFilePath("./a.fastq"))
	assert.Empty(t, validateFilePath("a/b.fastq"))
}

func TestMvConsentPermitsMvSequencing(t *testing.T) {
	c := MvConsent{Version: "1", Scope: []MvConsentScope{
		{Domain: DomainMvSequencing, Provision: Deny{}},
		{Domain: DomainMvSequencing, Provision: Permit{Codes: []string{"x"}}},
	}}
	assert.True(t, c.PermitsMvSequencing())
}

func TestMvConsentDeniesWithoutPermit(t *testing.T) {
	c := MvConsent{Version: "1", Scope: []MvConsentScope{
		{Domain: DomainMvSequencing, Provision: Deny{}},
	}}
	assert.False(t, c.PermitsMvSequencing())
}

func containsSubstring(diags []Diagnostic, substr string) bool {
	for _, d := range diags {
		if strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}
