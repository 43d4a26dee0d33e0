package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grz-tools/grz-submit-core/internal/crypt4gh"
	"github.com/grz-tools/grz-submit-core/internal/ledger"
)

// DecryptFiles reverses EncryptFiles: every encrypted unit is decrypted back
// into the files directory using the recipient's own private key. Unlike
// encrypt, decrypt has no validation precondition — it is run by the
// recipient, who has no local checksum/sequencing ledgers for a freshly
// downloaded submission.
func (w *Worker) DecryptFiles(ctx context.Context, units []FileUnit, recipientPriv [32]byte, force bool) ([]FileResult, error) {
	decryptPath := w.Layout.ledgerPath(ledger.StageDecryption)
	if force {
		if err := ledger.Delete(decryptPath); err != nil {
			return nil, err
		}
	}

	decryptLog, err := ledger.Open(decryptPath)
	if err != nil {
		return nil, fmt.Errorf("worker: open decryption ledger: %w", err)
	}
	defer decryptLog.Close()

	if err := os.MkdirAll(w.Layout.FilesDir, 0o770); err != nil {
		return nil, fmt.Errorf("worker: create files dir: %w", err)
	}

	results := w.runPool(ctx, units, func(unit FileUnit) error {
		return decryptOne(decryptLog, w.Layout, unit, recipientPriv)
	})
	return results, nil
}

func decryptOne(decryptLog *ledger.Ledger, layout Layout, unit FileUnit, recipientPriv [32]byte) error {
	srcPath := filepath.Join(layout.EncryptedDir, unit.Meta.EncryptedFilePath())
	dstPath := filepath.Join(layout.FilesDir, unit.RelPath)
	key := ledger.KeyFor(srcPath)

	var cached ledger.DecryptionState
	if ok, err := decryptLog.Get(key, unit.Meta, &cached); err == nil && ok && cached.DecryptionSuccessful {
		return nil
	}

	state, computeErr := computeDecryptionState(srcPath, dstPath, recipientPriv)
	if err := decryptLog.Set(key, unit.Meta, state); err != nil {
		return fmt.Errorf("worker: record decryption state for %s: %w", unit.RelPath, err)
	}
	if computeErr != nil {
		return fmt.Errorf("worker: decrypt %s: %w", unit.RelPath, computeErr)
	}
	if !state.DecryptionSuccessful {
		return fmt.Errorf("worker: decrypt %s: %v", unit.RelPath, state.Errors)
	}
	return nil
}

func computeDecryptionState(srcPath, dstPath string, recipientPriv [32]byte) (ledger.DecryptionState, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return ledger.DecryptionState{Errors: []string{err.Error()}}, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o770); err != nil {
		return ledger.DecryptionState{Errors: []string{err.Error()}}, err
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return ledger.DecryptionState{Errors: []string{err.Error()}}, err
	}
	defer out.Close()

	if err := crypt4gh.Decrypt(in, out, recipientPriv); err != nil {
		return ledger.DecryptionState{DecryptionSuccessful: false, Errors: []string{err.Error()}}, nil
	}
	return ledger.DecryptionState{DecryptionSuccessful: true}, nil
}
