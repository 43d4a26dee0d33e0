package submission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grz-tools/grz-submit-core/internal/grzerr"
	"github.com/grz-tools/grz-submit-core/internal/metadata"
	"github.com/grz-tools/grz-submit-core/internal/worker"
)

// Resolved is a submission directory after its metadata document has been
// parsed and cross-checked against the files/ tree on disk: the owning
// parsed document, the flat list of file units the stage worker drives, and
// the derived submission identifier (spec.md §3 "Ownership").
type Resolved struct {
	Layout       worker.Layout
	Document     metadata.Document
	Units        []worker.FileUnit
	SubmissionID string
}

// MetadataFileName is the fixed on-disk name of the metadata document.
const MetadataFileName = "metadata.json"

// Resolve loads metadata/metadata.json under root, flattens every declared
// file across all donors/lab data into a FileUnit list, and verifies each
// declared relative path actually exists under files/ before handing back a
// Resolved submission. It does not run the full validator (C4) — that is a
// separate, explicit step — only the filesystem-presence precondition every
// stage needs before it can open a file at all.
func Resolve(root string) (*Resolved, error) {
	layout, err := worker.NewLayout(root)
	if err != nil {
		return nil, err
	}

	metadataPath := filepath.Join(layout.MetadataDir, MetadataFileName)
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, &grzerr.MetadataError{Msg: "read metadata.json", Cause: err}
	}

	var doc metadata.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &grzerr.MetadataError{Msg: "parse metadata.json", Cause: err}
	}

	units := CollectUnits(doc)
	if err := reconcileOnDisk(layout.FilesDir, units); err != nil {
		return nil, err
	}

	return &Resolved{
		Layout:       layout,
		Document:     doc,
		Units:        units,
		SubmissionID: DeriveID(doc.Submission.SubmitterID, doc.Submission.SubmissionDate, doc.Submission.TanG),
	}, nil
}

// LoadDocument reads and parses a metadata document without cross-checking
// it against any files/ tree, for the download flow where the document is
// fetched before any file exists locally.
func LoadDocument(metadataPath string) (metadata.Document, error) {
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return metadata.Document{}, &grzerr.MetadataError{Msg: "read metadata.json", Cause: err}
	}
	var doc metadata.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return metadata.Document{}, &grzerr.MetadataError{Msg: "parse metadata.json", Cause: err}
	}
	return doc, nil
}

// CollectUnits flattens every file across every donor's lab data into the
// per-file work list the stage worker consumes.
func CollectUnits(doc metadata.Document) []worker.FileUnit {
	var units []worker.FileUnit
	for _, donor := range doc.Donors {
		for _, ld := range donor.LabData {
			if !ld.HasSequenceData() {
				continue
			}
			for _, f := range ld.SequenceData.Files {
				units = append(units, worker.FileUnit{RelPath: f.FilePath, Meta: f})
			}
		}
	}
	return units
}

// reconcileOnDisk registers every file actually present under filesDir,
// then checks every declared unit resolves to exactly one match — catching
// a metadata document that references a file that was never copied into
// files/ before any validation/encryption work is attempted.
func reconcileOnDisk(filesDir string, units []worker.FileUnit) error {
	present := make(map[string]bool)
	err := filepath.Walk(filesDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(filesDir, path)
		if err != nil {
			return err
		}
		present[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return &grzerr.FileError{Kind: grzerr.FileMissing, Path: filesDir, Msg: "files directory does not exist"}
		}
		return fmt.Errorf("submission: walk %s: %w", filesDir, err)
	}

	var missing []string
	for _, u := range units {
		if !present[u.RelPath] {
			missing = append(missing, u.RelPath)
		}
	}
	if len(missing) > 0 {
		return &grzerr.FileError{
			Kind: grzerr.FileMissing,
			Path: filesDir,
			Msg:  fmt.Sprintf("%d file(s) declared in metadata.json not found on disk: %v", len(missing), missing),
		}
	}
	return nil
}
