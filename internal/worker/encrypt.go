package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grz-tools/grz-submit-core/internal/crypt4gh"
	"github.com/grz-tools/grz-submit-core/internal/ledger"
)

// EncryptFiles Crypt4GH-encrypts every unit into the encrypted-files
// directory, gated on both validation ledgers reporting success for that
// file (spec.md §4.6: "encrypt requires validation_passed in both the
// checksum and sequencing-data ledgers"). A file missing either passing
// state is reported as a failure without being encrypted. A file already
// recorded as successfully encrypted is skipped, so a restart only
// reprocesses the files that didn't finish last time. Without force, an
// existing .c4gh output with no successful ledger entry is an error rather
// than silently overwritten.
func (w *Worker) EncryptFiles(ctx context.Context, units []FileUnit, recipientPub [32]byte, senderPriv *[32]byte, force bool) ([]FileResult, error) {
	encryptPath := w.Layout.ledgerPath(ledger.StageEncryption)
	if force {
		if err := ledger.Delete(encryptPath); err != nil {
			return nil, err
		}
	}

	encryptLog, err := ledger.Open(encryptPath)
	if err != nil {
		return nil, fmt.Errorf("worker: open encryption ledger: %w", err)
	}
	defer encryptLog.Close()

	checksumLog, err := ledger.Open(w.Layout.ledgerPath(ledger.StageChecksumValidation))
	if err != nil {
		return nil, fmt.Errorf("worker: open checksum ledger: %w", err)
	}
	defer checksumLog.Close()

	seqLog, err := ledger.Open(w.Layout.ledgerPath(ledger.StageSequencingValidation))
	if err != nil {
		return nil, fmt.Errorf("worker: open sequencing ledger: %w", err)
	}
	defer seqLog.Close()

	if err := os.MkdirAll(w.Layout.EncryptedDir, 0o770); err != nil {
		return nil, fmt.Errorf("worker: create encrypted files dir: %w", err)
	}

	results := w.runPool(ctx, units, func(unit FileUnit) error {
		return encryptOne(checksumLog, seqLog, encryptLog, w.Layout, unit, recipientPub, senderPriv, force)
	})
	return results, nil
}

func encryptOne(checksumLog, seqLog, encryptLog *ledger.Ledger, layout Layout, unit FileUnit, recipientPub [32]byte, senderPriv *[32]byte, force bool) error {
	srcPath := filepath.Join(layout.FilesDir, unit.RelPath)
	key := ledger.KeyFor(srcPath)

	var cached ledger.EncryptionState
	if ok, err := encryptLog.Get(key, unit.Meta, &cached); err == nil && ok && cached.EncryptionSuccessful {
		return nil
	}

	var checksumState ledger.ValidationState
	if ok, err := checksumLog.Get(key, unit.Meta, &checksumState); err != nil || !ok || !checksumState.ValidationPassed {
		return fmt.Errorf("worker: %s has not passed checksum validation, run validate first", unit.RelPath)
	}

	needsSeqData := unit.Meta.FileType == "fastq" || unit.Meta.FileType == "bam"
	if needsSeqData {
		var seqState ledger.ValidationState
		if ok, err := seqLog.Get(key, unit.Meta, &seqState); err != nil || !ok || !seqState.ValidationPassed {
			return fmt.Errorf("worker: %s has not passed sequencing-data validation, run validate first", unit.RelPath)
		}
	}

	dstPath := filepath.Join(layout.EncryptedDir, unit.Meta.EncryptedFilePath())
	if !force {
		if _, err := os.Stat(dstPath); err == nil {
			return fmt.Errorf("worker: %s already exists with no successful encryption record, rerun with --force to overwrite", unit.Meta.EncryptedFilePath())
		}
	}
	state, computeErr := computeEncryptionState(srcPath, dstPath, recipientPub, senderPriv)

	if err := encryptLog.Set(key, unit.Meta, state); err != nil {
		return fmt.Errorf("worker: record encryption state for %s: %w", unit.RelPath, err)
	}
	if computeErr != nil {
		return fmt.Errorf("worker: encrypt %s: %w", unit.RelPath, computeErr)
	}
	if !state.EncryptionSuccessful {
		return fmt.Errorf("worker: encrypt %s: %v", unit.RelPath, state.Errors)
	}
	return nil
}

func computeEncryptionState(srcPath, dstPath string, recipientPub [32]byte, senderPriv *[32]byte) (ledger.EncryptionState, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return ledger.EncryptionState{Errors: []string{err.Error()}}, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o770); err != nil {
		return ledger.EncryptionState{Errors: []string{err.Error()}}, err
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return ledger.EncryptionState{Errors: []string{err.Error()}}, err
	}
	defer out.Close()

	if err := crypt4gh.Encrypt(in, out, [][32]byte{recipientPub}, senderPriv); err != nil {
		return ledger.EncryptionState{EncryptionSuccessful: false, Errors: []string{err.Error()}}, nil
	}
	return ledger.EncryptionState{EncryptionSuccessful: true}, nil
}
