package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grz-tools/grz-submit-core/internal/ledger"
	"github.com/grz-tools/grz-submit-core/internal/metadata"
	"github.com/grz-tools/grz-submit-core/internal/objectstore"
	"github.com/grz-tools/grz-submit-core/internal/submission"
	"github.com/grz-tools/grz-submit-core/internal/worker"
)

func sampleDoc() metadata.Document {
	return metadata.Document{
		SchemaVersion: "1.1.1",
		Submission: metadata.Submission{
			TanG:        "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			LocalCaseID: "case-42",
		},
		Donors: []metadata.Donor{
			{DonorPseudonym: "real-name-1", Relation: metadata.RelationIndex},
			{DonorPseudonym: "real-name-2", Relation: metadata.RelationMother},
		},
	}
}

// TestRedactZeroesTanGBlanksCaseIDAndIndexPseudonym covers spec.md §8
// property 7.
func TestRedactZeroesTanGBlanksCaseIDAndIndexPseudonym(t *testing.T) {
	redacted := Redact(sampleDoc())

	assert.Equal(t, ZeroedTanG, redacted.Submission.TanG)
	assert.Len(t, redacted.Submission.TanG, 64)
	assert.Equal(t, "", redacted.Submission.LocalCaseID)
	assert.Equal(t, "index", redacted.Donors[0].DonorPseudonym)
	assert.Equal(t, "real-name-2", redacted.Donors[1].DonorPseudonym, "non-index donors keep their pseudonym")
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	doc := sampleDoc()
	_ = Redact(doc)
	assert.Equal(t, "real-name-1", doc.Donors[0].DonorPseudonym, "Redact must return a copy")
	assert.Equal(t, "case-42", doc.Submission.LocalCaseID)
}

func TestRedactFileWritesSidecarAndRewritesInPlace(t *testing.T) {
	dir := t.TempDir()
	metadataPath := filepath.Join(dir, "metadata.json")
	raw, err := json.Marshal(sampleDoc())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metadataPath, raw, 0o644))

	redacted, err := RedactFile(metadataPath)
	require.NoError(t, err)
	assert.Equal(t, ZeroedTanG, redacted.Submission.TanG)

	sidecar, err := os.ReadFile(filepath.Join(dir, "metadata.orig.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(sidecar), "sidecar must contain the pre-redaction document verbatim")

	rewritten, err := os.ReadFile(metadataPath)
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "\n  ", "rewritten metadata.json should be pretty-printed with 2-space indent")

	var onDisk metadata.Document
	require.NoError(t, json.Unmarshal(rewritten, &onDisk))
	assert.Equal(t, ZeroedTanG, onDisk.Submission.TanG)
	assert.Equal(t, "index", onDisk.Donors[0].DonorPseudonym)
}

func TestUploadLogsPreservesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "progress_upload.cjson"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "progress_encrypt.cjson"), []byte("{}\n"), 0o644))

	client := newMemClient()
	err := UploadLogs(context.Background(), client, discardLogger(), dir, "submitter_2024-07-15_aaaaaaaa", 256<<20)
	require.NoError(t, err)

	assert.Contains(t, client.objects, "submitter_2024-07-15_aaaaaaaa/logs/progress_upload.cjson")
	assert.Contains(t, client.objects, "submitter_2024-07-15_aaaaaaaa/logs/sub/progress_encrypt.cjson")
}

// TestRunUploadsFilesRedactsAndUploadsLogsInOrder exercises the full
// archive stage end-to-end against an in-memory object store: every
// encrypted file and the unredacted metadata are uploaded first, the local
// metadata.json is redacted in place, the redacted document is re-uploaded
// to the same key, and finally logs/ is uploaded (spec.md §4.7).
func TestRunUploadsFilesRedactsAndUploadsLogsInOrder(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"metadata", "files", "encrypted_files", "logs"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	doc := sampleDoc()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "metadata", "metadata.json"), raw, 0o644))

	relPath := "donor1/a.fastq.gz"
	require.NoError(t, os.WriteFile(filepath.Join(root, "encrypted_files", relPath+".c4gh"), []byte("ciphertext"), 0o644))
	srcPath := filepath.Join(root, "files", relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(srcPath), 0o755))
	require.NoError(t, os.WriteFile(srcPath, []byte("plaintext"), 0o644))

	w, err := worker.New(root, 2, discardLogger())
	require.NoError(t, err)

	unit := worker.FileUnit{RelPath: relPath, Meta: metadata.File{FilePath: relPath}}

	// Seed the encryption ledger so UploadFiles' precondition is satisfied.
	encryptLogPath := filepath.Join(w.Layout.LogDir, ledger.StageEncryption.FileName())
	encryptLog, err := ledger.Open(encryptLogPath)
	require.NoError(t, err)
	require.NoError(t, encryptLog.Set(ledger.KeyFor(srcPath), unit.Meta, ledger.EncryptionState{EncryptionSuccessful: true}))
	require.NoError(t, encryptLog.Close())

	resolved := &submission.Resolved{
		Layout:       w.Layout,
		Document:     doc,
		Units:        []worker.FileUnit{unit},
		SubmissionID: "submitter_2024-07-15_aaaaaaaa",
	}

	client := newMemClient()
	redacted, err := Run(context.Background(), w, client, resolved, 256<<20, false)
	require.NoError(t, err)

	assert.Equal(t, ZeroedTanG, redacted.Submission.TanG)
	assert.Contains(t, client.objects, "submitter_2024-07-15_aaaaaaaa/files/"+relPath+".c4gh")

	metaKey := "submitter_2024-07-15_aaaaaaaa/metadata/metadata.json"
	require.Contains(t, client.objects, metaKey)
	var uploaded metadata.Document
	require.NoError(t, json.Unmarshal(client.objects[metaKey], &uploaded))
	assert.Equal(t, ZeroedTanG, uploaded.Submission.TanG, "the metadata key must end up holding the redacted document")
	assert.Equal(t, "index", uploaded.Donors[0].DonorPseudonym)

	var sawLog bool
	for key := range client.objects {
		if strings.HasPrefix(key, "submitter_2024-07-15_aaaaaaaa/logs/") {
			sawLog = true
		}
	}
	assert.True(t, sawLog, "archive must upload logs/ last")
}

// memClient is a minimal in-memory objectstore.Client, duplicated from the
// objectstore package's own test helper since it is unexported there.
type memClient struct {
	mu        sync.Mutex
	objects   map[string][]byte
	partsByID map[string]map[int32][]byte
}

func newMemClient() *memClient {
	return &memClient{objects: make(map[string][]byte), partsByID: make(map[string]map[int32][]byte)}
}

var _ objectstore.Client = (*memClient)(nil)

func (m *memClient) HeadObject(ctx context.Context, key string) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return ok, int64(len(b)), nil
}

func (m *memClient) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	data := m.objects[key]
	m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memClient) GetObjectRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	data := m.objects[key]
	m.mu.Unlock()
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (m *memClient) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := key + "-upload"
	m.partsByID[id] = make(map[int32][]byte)
	return id, nil
}

func (m *memClient) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (objectstore.PartResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return objectstore.PartResult{}, err
	}
	m.mu.Lock()
	m.partsByID[uploadID][partNumber] = data
	m.mu.Unlock()
	return objectstore.PartResult{PartNumber: partNumber, ETag: "etag", Size: int64(len(data))}, nil
}

func (m *memClient) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []objectstore.PartResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var assembled []byte
	for _, p := range parts {
		assembled = append(assembled, m.partsByID[uploadID][p.PartNumber]...)
	}
	m.objects[key] = assembled
	delete(m.partsByID, uploadID)
	return nil
}

func (m *memClient) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partsByID, uploadID)
	return nil
}

func (m *memClient) ListObjectsV2(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memClient) DeleteObjects(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
