package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grz-tools/grz-submit-core/internal/grzerr"
	"github.com/grz-tools/grz-submit-core/internal/ledger"
	"github.com/grz-tools/grz-submit-core/internal/objectstore"
)

// UploadFiles uploads every encrypted unit to the object store under
// submissionID, gated on that file already reporting encryption_successful
// (spec.md §4.6), and uploads the metadata document last, only once every
// file upload has succeeded. Per DESIGN.md's decision on the
// repeated-upload open question, a prior complete upload is an idempotent
// no-op: if the metadata key already exists on the remote AND the local
// ledger shows every file uploaded, UploadFiles returns nil without
// transferring anything again. A metadata key that exists with no
// corresponding local ledger record is treated as unsafe and reported as
// grzerr.ErrAlreadySubmitted.
func (w *Worker) UploadFiles(ctx context.Context, client objectstore.Client, units []FileUnit, submissionID, metadataPath string, targetChunk int64, force bool) ([]FileResult, error) {
	uploadPath := w.Layout.ledgerPath(ledger.StageUpload)
	if force {
		if err := ledger.Delete(uploadPath); err != nil {
			return nil, err
		}
	}

	uploadLog, err := ledger.Open(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("worker: open upload ledger: %w", err)
	}
	defer uploadLog.Close()

	encryptLog, err := ledger.Open(w.Layout.ledgerPath(ledger.StageEncryption))
	if err != nil {
		return nil, fmt.Errorf("worker: open encryption ledger: %w", err)
	}
	defer encryptLog.Close()

	metadataKey := submissionID + "/metadata/metadata.json"
	exists, _, err := client.HeadObject(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("worker: head %s: %w", metadataKey, err)
	}
	if exists {
		if allUploaded(uploadLog, units, w.Layout) {
			w.Log.WithField("submission_id", submissionID).Info("upload already complete, skipping")
			return nil, nil
		}
		return nil, grzerr.ErrAlreadySubmitted
	}

	if err := preflightEncrypted(encryptLog, units, w.Layout); err != nil {
		return nil, err
	}

	results := w.runPool(ctx, units, func(unit FileUnit) error {
		return uploadOne(ctx, client, uploadLog, w.Log, w.Layout, submissionID, unit, targetChunk, w.Threads)
	})
	if len(Failures(results)) > 0 {
		return results, nil
	}

	if err := objectstore.UploadFile(ctx, client, w.Log, metadataKey, metadataPath, targetChunk, w.Threads); err != nil {
		return results, fmt.Errorf("worker: upload metadata: %w", err)
	}
	return results, nil
}

func preflightEncrypted(encryptLog *ledger.Ledger, units []FileUnit, layout Layout) error {
	var unencrypted []string
	for _, unit := range units {
		srcPath := filepath.Join(layout.FilesDir, unit.RelPath)
		key := ledger.KeyFor(srcPath)
		var state ledger.EncryptionState
		ok, err := encryptLog.Get(key, unit.Meta, &state)
		if err != nil || !ok || !state.EncryptionSuccessful {
			unencrypted = append(unencrypted, unit.RelPath)
		}
	}
	if len(unencrypted) > 0 {
		return fmt.Errorf("worker: will not upload, %d file(s) not successfully encrypted: %v", len(unencrypted), unencrypted)
	}
	return nil
}

func allUploaded(uploadLog *ledger.Ledger, units []FileUnit, layout Layout) bool {
	for _, unit := range units {
		srcPath := filepath.Join(layout.FilesDir, unit.RelPath)
		key := ledger.KeyFor(srcPath)
		var state ledger.UploadState
		ok, err := uploadLog.Get(key, unit.Meta, &state)
		if err != nil || !ok || !state.UploadSuccessful {
			return false
		}
	}
	return true
}

func uploadOne(ctx context.Context, client objectstore.Client, uploadLog *ledger.Ledger, log *logrus.Entry, layout Layout, submissionID string, unit FileUnit, targetChunk int64, threads int) error {
	srcPath := filepath.Join(layout.FilesDir, unit.RelPath)
	key := ledger.KeyFor(srcPath)

	var cached ledger.UploadState
	if ok, err := uploadLog.Get(key, unit.Meta, &cached); err == nil && ok && cached.UploadSuccessful {
		return nil
	}

	encryptedPath := filepath.Join(layout.EncryptedDir, unit.Meta.EncryptedFilePath())
	remoteKey := submissionID + "/files/" + unit.Meta.EncryptedFilePath()

	uploadErr := objectstore.UploadFile(ctx, client, log, remoteKey, encryptedPath, targetChunk, threads)
	state := ledger.UploadState{UploadSuccessful: uploadErr == nil}
	if uploadErr != nil {
		state.Errors = []string{uploadErr.Error()}
	}
	if err := uploadLog.Set(key, unit.Meta, state); err != nil {
		return fmt.Errorf("worker: record upload state for %s: %w", unit.RelPath, err)
	}
	if uploadErr != nil {
		return fmt.Errorf("worker: upload %s: %w", unit.RelPath, uploadErr)
	}
	return nil
}
