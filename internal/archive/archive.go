// Package archive implements C8: the archive-time metadata redaction step
// and the accompanying logs/ upload, run after every encrypted file and the
// (unredacted) metadata document have already been uploaded (spec.md §4.7).
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grz-tools/grz-submit-core/internal/metadata"
	"github.com/grz-tools/grz-submit-core/internal/objectstore"
	"github.com/grz-tools/grz-submit-core/internal/submission"
	"github.com/grz-tools/grz-submit-core/internal/worker"
)

// ZeroedTanG is the 64-ASCII-zero replacement value spec.md §4.7/§8 property
// 7 requires in the archived metadata.
const ZeroedTanG = "0000000000000000000000000000000000000000000000000000000000000000"[:64]

// Redact returns a copy of doc with the identifying fields spec.md §4.7
// names blanked: tanG zeroed, localCaseId emptied, and every index donor's
// pseudonym replaced with the literal "index".
func Redact(doc metadata.Document) metadata.Document {
	out := doc
	out.Submission.TanG = ZeroedTanG
	out.Submission.LocalCaseID = ""

	out.Donors = make([]metadata.Donor, len(doc.Donors))
	copy(out.Donors, doc.Donors)
	for i, donor := range out.Donors {
		if donor.Relation == metadata.RelationIndex {
			donor.DonorPseudonym = "index"
			out.Donors[i] = donor
		}
	}
	return out
}

// RedactFile performs the in-place mutation of spec.md §4.7 steps 1–3: copy
// metadata.json to metadata.orig.json verbatim (byte-for-byte, not a
// re-serialization, so the sidecar is exactly the pre-redaction document),
// then parse, redact, and rewrite metadata.json as pretty 2-space JSON,
// truncating the file.
func RedactFile(metadataPath string) (metadata.Document, error) {
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return metadata.Document{}, fmt.Errorf("archive: read %s: %w", metadataPath, err)
	}

	sidecarPath := sidecarPath(metadataPath)
	if err := os.WriteFile(sidecarPath, raw, 0o644); err != nil {
		return metadata.Document{}, fmt.Errorf("archive: write sidecar %s: %w", sidecarPath, err)
	}

	var doc metadata.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return metadata.Document{}, fmt.Errorf("archive: parse %s: %w", metadataPath, err)
	}

	redacted := Redact(doc)
	out, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return metadata.Document{}, fmt.Errorf("archive: encode redacted document: %w", err)
	}
	if err := os.WriteFile(metadataPath, out, 0o644); err != nil {
		return metadata.Document{}, fmt.Errorf("archive: rewrite %s: %w", metadataPath, err)
	}
	return redacted, nil
}

func sidecarPath(metadataPath string) string {
	ext := filepath.Ext(metadataPath)
	base := metadataPath[:len(metadataPath)-len(ext)]
	return base + ".orig" + ext
}

// UploadLogs uploads every file under logDir to "<submissionID>/logs/…",
// preserving relative paths. Unlike file uploads, log uploads are not
// tracked in the progress ledger (spec.md §4.7): a failure here aborts the
// archive stage outright rather than leaving a resumable per-file record.
func UploadLogs(ctx context.Context, client objectstore.Client, log *logrus.Entry, logDir, submissionID string, targetChunk int64) error {
	return filepath.WalkDir(logDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(logDir, path)
		if err != nil {
			return err
		}
		key := submissionID + "/logs/" + filepath.ToSlash(rel)
		if err := objectstore.UploadFile(ctx, client, log, key, path, targetChunk, 1); err != nil {
			return fmt.Errorf("archive: upload log %s: %w", rel, err)
		}
		return nil
	})
}

// Run drives the full archive stage (spec.md §4.7): upload every encrypted
// file plus the unredacted metadata document (the same preflight/precedence
// the plain upload stage uses), redact the local metadata in place, re-
// upload it over the same key, then upload logs/ last. Any failure — an
// unsuccessful file upload, a redaction error, or a log-upload error —
// aborts the stage; logs are uploaded last and are not ledger-tracked, so a
// failure there is not resumable and must be retried from the top.
func Run(ctx context.Context, w *worker.Worker, client objectstore.Client, resolved *submission.Resolved, targetChunk int64, force bool) (metadata.Document, error) {
	metadataPath := filepath.Join(resolved.Layout.MetadataDir, submission.MetadataFileName)

	results, err := w.UploadFiles(ctx, client, resolved.Units, resolved.SubmissionID, metadataPath, targetChunk, force)
	if err != nil {
		return metadata.Document{}, fmt.Errorf("archive: upload files: %w", err)
	}
	if failed := worker.Failures(results); len(failed) > 0 {
		return metadata.Document{}, fmt.Errorf("archive: %d file(s) failed to upload", len(failed))
	}

	redacted, err := RedactFile(metadataPath)
	if err != nil {
		return metadata.Document{}, err
	}

	metadataKey := resolved.SubmissionID + "/metadata/metadata.json"
	if err := objectstore.UploadFile(ctx, client, w.Log, metadataKey, metadataPath, targetChunk, w.Threads); err != nil {
		return metadata.Document{}, fmt.Errorf("archive: upload redacted metadata: %w", err)
	}

	if err := UploadLogs(ctx, client, w.Log, resolved.Layout.LogDir, resolved.SubmissionID, targetChunk); err != nil {
		return metadata.Document{}, err
	}

	return redacted, nil
}
