package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grz-tools/grz-submit-core/internal/crypt4gh"
	"github.com/grz-tools/grz-submit-core/internal/hashing"
	"github.com/grz-tools/grz-submit-core/internal/ledger"
	"github.com/grz-tools/grz-submit-core/internal/metadata"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.FatalLevel)
	return logrus.NewEntry(l)
}

func writeUnit(t *testing.T, filesDir, relPath, content string) FileUnit {
	t.Helper()
	path := filepath.Join(filesDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o770))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sum, err := hashing.SumFile(path, hashing.SHA256, nil)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	return FileUnit{
		RelPath: relPath,
		Meta: metadata.File{
			FilePath:        relPath,
			FileType:        metadata.FileTypeVCF,
			ChecksumType:    metadata.ChecksumSHA256,
			FileChecksum:    sum,
			FileSizeInBytes: info.Size(),
		},
	}
}

func TestValidateFilesPassesCorrectChecksum(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")

	results, err := w.ValidateFiles(context.Background(), []FileUnit{unit}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestValidateFilesFailsOnChecksumMismatch(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")
	unit.Meta.FileChecksum = "0000000000000000000000000000000000000000000000000000000000000000"[:64]

	results, err := w.ValidateFiles(context.Background(), []FileUnit{unit}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestEncryptRequiresPriorValidation(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")

	recipient, err := crypt4gh.GenerateKeyPair()
	require.NoError(t, err)

	results, err := w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err, "encrypt before validate must fail")
}

func TestEncryptSucceedsAfterValidation(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")

	_, err = w.ValidateFiles(context.Background(), []FileUnit{unit}, false)
	require.NoError(t, err)

	recipient, err := crypt4gh.GenerateKeyPair()
	require.NoError(t, err)

	results, err := w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	encryptedPath := filepath.Join(w.Layout.EncryptedDir, unit.Meta.EncryptedFilePath())
	_, statErr := os.Stat(encryptedPath)
	assert.NoError(t, statErr)
}

func TestEncryptThenDecryptRoundTrips(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")
	_, err = w.ValidateFiles(context.Background(), []FileUnit{unit}, false)
	require.NoError(t, err)

	recipient, err := crypt4gh.GenerateKeyPair()
	require.NoError(t, err)

	_, err = w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, false)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(w.Layout.FilesDir))
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	results, err := w.DecryptFiles(context.Background(), []FileUnit{unit}, recipient.PrivateKey, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	decryptedPath := filepath.Join(w.Layout.FilesDir, unit.RelPath)
	content, readErr := os.ReadFile(decryptedPath)
	require.NoError(t, readErr)
	assert.Equal(t, "variant data", string(content))
}

func TestEncryptSkipsAlreadySuccessfullyEncryptedFile(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")
	_, err = w.ValidateFiles(context.Background(), []FileUnit{unit}, false)
	require.NoError(t, err)

	recipient, err := crypt4gh.GenerateKeyPair()
	require.NoError(t, err)

	_, err = w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, false)
	require.NoError(t, err)

	// Drop the checksum validation ledger: a second encrypt run must still
	// succeed by short-circuiting on the cached encryption success instead
	// of re-checking preconditions or re-encrypting.
	require.NoError(t, os.Remove(w.Layout.ledgerPath(ledger.StageChecksumValidation)))

	results, err := w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestEncryptRejectsExistingOutputWithoutForce(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	unit := writeUnit(t, w.Layout.FilesDir, "donor1/file.vcf", "variant data")
	_, err = w.ValidateFiles(context.Background(), []FileUnit{unit}, false)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(w.Layout.EncryptedDir, 0o770))
	dstPath := filepath.Join(w.Layout.EncryptedDir, unit.Meta.EncryptedFilePath())
	require.NoError(t, os.WriteFile(dstPath, []byte("stale"), 0o644))

	recipient, err := crypt4gh.GenerateKeyPair()
	require.NoError(t, err)

	results, err := w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err, "existing output with no ledger entry must be rejected without --force")

	results, err = w.EncryptFiles(context.Background(), []FileUnit{unit}, recipient.PublicKey, nil, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err, "--force must overwrite the stale output")
}

func fastqUnit(relPath string, readOrder metadata.ReadOrder, flowcell, lane string) FileUnit {
	return FileUnit{
		RelPath: relPath,
		Meta: metadata.File{
			FilePath:     relPath,
			FileType:     metadata.FileTypeFASTQ,
			ChecksumType: metadata.ChecksumSHA256,
			ReadOrder:    &readOrder,
			FlowcellID:   &flowcell,
			LaneID:       &lane,
		},
	}
}

func writeFastq(t *testing.T, filesDir string, unit FileUnit, records int) FileUnit {
	t.Helper()
	var content string
	for i := 0; i < records; i++ {
		content += "@read\nACGT\n+\nFFFF\n"
	}
	path := filepath.Join(filesDir, unit.RelPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o770))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sum, err := hashing.SumFile(path, hashing.SHA256, nil)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	unit.Meta.FileChecksum = sum
	unit.Meta.FileSizeInBytes = info.Size()
	return unit
}

func TestValidateFilesPairedEndMismatchedReadCountsFails(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	r1 := fastqUnit("donor1/a_R1.fastq", metadata.ReadOrderR1, "FC1", "L1")
	r2 := fastqUnit("donor1/a_R2.fastq", metadata.ReadOrderR2, "FC1", "L1")
	r1 = writeFastq(t, w.Layout.FilesDir, r1, 2)
	r2 = writeFastq(t, w.Layout.FilesDir, r2, 1)

	results, err := w.ValidateFiles(context.Background(), []FileUnit{r1, r2}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err, "paired-end read-count mismatch must be caught via ValidatePairedEnd")
	assert.Error(t, results[1].Err)
}

func TestValidateFilesPairedEndEqualReadCountsPasses(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 2, testLog())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(w.Layout.FilesDir, 0o770))

	r1 := fastqUnit("donor1/a_R1.fastq", metadata.ReadOrderR1, "FC1", "L1")
	r2 := fastqUnit("donor1/a_R2.fastq", metadata.ReadOrderR2, "FC1", "L1")
	r1 = writeFastq(t, w.Layout.FilesDir, r1, 2)
	r2 = writeFastq(t, w.Layout.FilesDir, r2, 2)

	results, err := w.ValidateFiles(context.Background(), []FileUnit{r1, r2}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}
