// Package worker implements the stage worker (C7): the component that
// drives the progress ledger (C3), hashing/checks (C1/C5), the Crypt4GH
// codec (C2), and the object store (C6) per file for each of validate,
// encrypt, decrypt, upload, archive, and download (spec.md §4.6).
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/grz-tools/grz-submit-core/internal/ledger"
	"github.com/grz-tools/grz-submit-core/internal/metadata"
)

// Layout is the four well-known subdirectories of a submission directory
// (spec.md §2).
type Layout struct {
	Root             string
	MetadataDir      string
	FilesDir         string
	EncryptedDir     string
	LogDir           string
}

// NewLayout derives the standard subdirectory layout from a submission
// root, creating the log directory if it does not yet exist.
func NewLayout(root string) (Layout, error) {
	l := Layout{
		Root:         root,
		MetadataDir:  filepath.Join(root, "metadata"),
		FilesDir:     filepath.Join(root, "files"),
		EncryptedDir: filepath.Join(root, "encrypted_files"),
		LogDir:       filepath.Join(root, "logs"),
	}
	if err := os.MkdirAll(l.LogDir, 0o770); err != nil {
		return Layout{}, fmt.Errorf("worker: create log dir: %w", err)
	}
	return l, nil
}

func (l Layout) ledgerPath(stage ledger.Stage) string {
	return filepath.Join(l.LogDir, stage.FileName())
}

// FileUnit is one file from the resolved submission, carrying the metadata
// record the ledger validates cache entries against.
type FileUnit struct {
	RelPath string
	Meta    metadata.File
}

// Worker drives the per-file pipeline across a bounded pool, mirroring the
// teacher's pond.WorkerPool usage in GitP4Transfer.GitParse: one closure
// submitted per unit of work, errors collected via a shared slice guarded
// by the pool's own synchronization.
type Worker struct {
	Layout  Layout
	Threads int
	Log     *logrus.Entry
}

// New builds a Worker for the submission rooted at root.
func New(root string, threads int, log *logrus.Entry) (*Worker, error) {
	layout, err := NewLayout(root)
	if err != nil {
		return nil, err
	}
	if threads < 1 {
		threads = 1
	}
	return &Worker{Layout: layout, Threads: threads, Log: log}, nil
}

// FileResult is the outcome of running one stage's task against one file.
type FileResult struct {
	RelPath string
	Err     error
}

// runPool fans work out across w.Threads goroutines using pond, collecting
// one FileResult per unit; ctx cancellation stops further dispatch.
func (w *Worker) runPool(ctx context.Context, units []FileUnit, task func(FileUnit) error) []FileResult {
	pool := pond.New(w.Threads, len(units))
	results := make([]FileResult, len(units))

	for i, unit := range units {
		i, unit := i, unit
		pool.Submit(func() {
			select {
			case <-ctx.Done():
				results[i] = FileResult{RelPath: unit.RelPath, Err: ctx.Err()}
				return
			default:
			}
			results[i] = FileResult{RelPath: unit.RelPath, Err: task(unit)}
		})
	}
	pool.StopAndWait()
	return results
}

// Failures filters a result slice down to the ones carrying an error; an
// empty return means every file in the stage succeeded.
func Failures(results []FileResult) []FileResult {
	var out []FileResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
