package metadata

import "fmt"

// File describes one submitted data file and the checksum/size it must
// match on disk (spec.md §3).
type File struct {
	FilePath        string       `json:"filePath" validate:"required"`
	FileType        FileType     `json:"fileType" validate:"required"`
	ReadLength      *int         `json:"readLength,omitempty" validate:"omitempty,gte=0"`
	ChecksumType    ChecksumType `json:"checksumType"`
	FileChecksum    string       `json:"fileChecksum" validate:"required,len=64,hexadecimal"`
	FileSizeInBytes int64        `json:"fileSizeInBytes" validate:"gte=0"`
	ReadOrder       *ReadOrder   `json:"readOrder,omitempty"`
	FlowcellID      *string      `json:"flowcellId,omitempty"`
	LaneID          *string      `json:"laneId,omitempty"`
}

// EncryptedFilePath returns the path the Crypt4GH container is written to
// relative to the submission root.
func (f File) EncryptedFilePath() string {
	return f.FilePath + ".c4gh"
}

// requiresReadLength reports whether this file type must carry a read
// length (spec.md §3, structural checks).
func (f File) requiresReadLength() bool {
	return f.FileType == FileTypeBAM || f.FileType == FileTypeFASTQ
}

func (f File) readLengthDiagnostic() string {
	if f.requiresReadLength() && f.ReadLength == nil {
		return fmt.Sprintf("read length missing for file %q of type %q", f.FilePath, f.FileType)
	}
	return ""
}

// PercentBasesAboveQualityThreshold is the (threshold, percent) pair used in
// the quality-threshold invariant.
type PercentBasesAboveQualityThreshold struct {
	MinimumQuality float64 `json:"minimumQuality" validate:"gte=0"`
	Percent        float64 `json:"percent" validate:"gte=0,lte=100"`
}

// SequenceData is the bioinformatics pipeline output for one lab datum.
type SequenceData struct {
	BioinformaticsPipelineName       string                            `json:"bioinformaticsPipelineName" validate:"required"`
	BioinformaticsPipelineVersion    string                            `json:"bioinformaticsPipelineVersion" validate:"required"`
	ReferenceGenome                  ReferenceGenome                   `json:"referenceGenome" validate:"required"`
	PercentBasesAboveQualityThreshold PercentBasesAboveQualityThreshold `json:"percentBasesAboveQualityThreshold"`
	MeanDepthOfCoverage               float64                          `json:"meanDepthOfCoverage" validate:"gte=0"`
	MinCoverage                       float64                          `json:"minCoverage" validate:"gte=0"`
	TargetedRegionsAboveMinCoverage   float64                          `json:"targetedRegionsAboveMinCoverage" validate:"gte=0,lte=1"`
	NonCodingVariants                 bool                             `json:"nonCodingVariants"`
	CallerUsed                        []CallerUsedItem                 `json:"callerUsed" validate:"dive"`
	Files                             []File                           `json:"files" validate:"dive"`
}

// ContainsFiles reports whether any file of the given type is present.
func (s SequenceData) ContainsFiles(t FileType) bool {
	return len(s.ListFiles(t)) > 0
}

// ListFiles returns the files of the given type.
func (s SequenceData) ListFiles(t FileType) []File {
	var out []File
	for _, f := range s.Files {
		if f.FileType == t {
			out = append(out, f)
		}
	}
	return out
}
