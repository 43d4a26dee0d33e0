package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grz-tools/grz-submit-core/internal/ledger"
	"github.com/grz-tools/grz-submit-core/internal/objectstore"
)

// DownloadFiles fetches the metadata document and every encrypted file for
// submissionID from the object store, in that order (spec.md §4.5's
// download preflight requires the metadata key to exist before anything
// else is fetched).
func (w *Worker) DownloadFiles(ctx context.Context, client objectstore.Client, units []FileUnit, submissionID string, targetChunk int64, force bool) ([]FileResult, error) {
	downloadPath := w.Layout.ledgerPath(ledger.StageDownload)
	if force {
		if err := ledger.Delete(downloadPath); err != nil {
			return nil, err
		}
	}

	downloadLog, err := ledger.Open(downloadPath)
	if err != nil {
		return nil, fmt.Errorf("worker: open download ledger: %w", err)
	}
	defer downloadLog.Close()

	metadataKey := submissionID + "/metadata/metadata.json"
	if err := objectstore.PreflightDownload(ctx, client, metadataKey); err != nil {
		return nil, err
	}

	metadataLocalPath := filepath.Join(w.Layout.MetadataDir, "metadata.json")
	if err := objectstore.DownloadFile(ctx, client, w.Log, metadataKey, metadataLocalPath, targetChunk, w.Threads); err != nil {
		return nil, fmt.Errorf("worker: download metadata: %w", err)
	}

	results := w.runPool(ctx, units, func(unit FileUnit) error {
		return downloadOne(ctx, client, downloadLog, w.Log, w.Layout, submissionID, unit, targetChunk, w.Threads)
	})
	return results, nil
}

func downloadOne(ctx context.Context, client objectstore.Client, downloadLog *ledger.Ledger, log *logrus.Entry, layout Layout, submissionID string, unit FileUnit, targetChunk int64, threads int) error {
	dstPath := filepath.Join(layout.EncryptedDir, unit.Meta.EncryptedFilePath())
	key := ledger.KeyFor(dstPath)

	var cached ledger.DownloadState
	if ok, err := downloadLog.Get(key, unit.Meta, &cached); err == nil && ok && cached.DownloadSuccessful {
		return nil
	}

	remoteKey := submissionID + "/files/" + unit.Meta.EncryptedFilePath()
	downloadErr := objectstore.DownloadFile(ctx, client, log, remoteKey, dstPath, targetChunk, threads)

	state := ledger.DownloadState{DownloadSuccessful: downloadErr == nil}
	if downloadErr != nil {
		state.Errors = []string{downloadErr.Error()}
	}
	if err := downloadLog.Set(key, unit.Meta, state); err != nil {
		return fmt.Errorf("worker: record download state for %s: %w", unit.RelPath, err)
	}
	if downloadErr != nil {
		return fmt.Errorf("worker: download %s: %w", unit.RelPath, downloadErr)
	}
	return nil
}
