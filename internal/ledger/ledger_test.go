package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileMeta struct {
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

func tempFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	return path
}

func TestSetThenGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "progress_validate.cjson"))
	require.NoError(t, err)
	defer l.Close()

	f := tempFile(t, dir, "a.fastq")
	key := KeyFor(f)
	meta := fileMeta{Checksum: "abc", Size: 5}
	state := ValidationState{ValidationPassed: true}

	require.NoError(t, l.Set(key, meta, state))

	var got ValidationState
	hit, err := l.Get(key, meta, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, state, got)
}

func TestGetMissesOnMetadataMismatch(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "progress_validate.cjson"))
	require.NoError(t, err)
	defer l.Close()

	f := tempFile(t, dir, "a.fastq")
	key := KeyFor(f)
	require.NoError(t, l.Set(key, fileMeta{Checksum: "abc", Size: 5}, ValidationState{ValidationPassed: true}))

	var got ValidationState
	hit, err := l.Get(key, fileMeta{Checksum: "different", Size: 5}, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetOrComputeComputesOnce(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "progress_validate.cjson"))
	require.NoError(t, err)
	defer l.Close()

	f := tempFile(t, dir, "a.fastq")
	key := KeyFor(f)
	meta := fileMeta{Checksum: "abc", Size: 5}

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return ValidationState{ValidationPassed: true}, nil
	}

	var s1, s2 ValidationState
	require.NoError(t, l.GetOrCompute(key, meta, &s1, compute))
	require.NoError(t, l.GetOrCompute(key, meta, &s2, compute))

	assert.Equal(t, 1, calls)
	assert.True(t, s1.ValidationPassed)
	assert.True(t, s2.ValidationPassed)
}

func TestReplayToleratesTruncatedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress_validate.cjson")

	l, err := Open(path)
	require.NoError(t, err)
	f := tempFile(t, dir, "a.fastq")
	key := KeyFor(f)
	meta := fileMeta{Checksum: "abc", Size: 5}
	require.NoError(t, l.Set(key, meta, ValidationState{ValidationPassed: true}))
	require.NoError(t, l.Close())

	// Append a truncated, incomplete JSON line simulating a crash mid-write.
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.WriteString(`{"file_path":"/tmp/x","modification_time":1,"size"`)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	var got ValidationState
	hit, err := l2.Get(key, meta, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.True(t, got.ValidationPassed)
}

func TestLastEntryWinsOnDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress_validate.cjson")
	l, err := Open(path)
	require.NoError(t, err)

	f := tempFile(t, dir, "a.fastq")
	key := KeyFor(f)
	meta := fileMeta{Checksum: "abc", Size: 5}

	require.NoError(t, l.Set(key, meta, ValidationState{ValidationPassed: false, Errors: []string{"first"}}))
	require.NoError(t, l.Set(key, meta, ValidationState{ValidationPassed: true}))
	require.NoError(t, l.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	var got ValidationState
	hit, err := l2.Get(key, meta, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.True(t, got.ValidationPassed)
	assert.Empty(t, got.Errors)
}

func TestCleanupRetainsOnlyKeepList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress_validate.cjson")
	l, err := Open(path)
	require.NoError(t, err)

	f1 := tempFile(t, dir, "a.fastq")
	f2 := tempFile(t, dir, "b.fastq")
	k1, k2 := KeyFor(f1), KeyFor(f2)
	m1 := fileMeta{Checksum: "a", Size: 5}
	m2 := fileMeta{Checksum: "b", Size: 5}
	require.NoError(t, l.Set(k1, m1, ValidationState{ValidationPassed: true}))
	require.NoError(t, l.Set(k2, m2, ValidationState{ValidationPassed: true}))

	require.NoError(t, l.Cleanup([]KeepEntry{{Key: k1, Metadata: m1}}))
	assert.Equal(t, 1, l.NumEntries())

	var got ValidationState
	hit, err := l.Get(k1, m1, &got)
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = l.Get(k2, m2, &got)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, l.Close())
}

func TestKeyForNonexistentFile(t *testing.T) {
	key := KeyFor("/no/such/path/xyz")
	assert.Equal(t, float64(-1), key.ModificationTime)
	assert.Equal(t, int64(-1), key.Size)
}

func TestDeleteMissingLedgerIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	err := Delete(filepath.Join(dir, "nonexistent.cjson"))
	assert.NoError(t, err)
}

func TestStageFileName(t *testing.T) {
	assert.Equal(t, "progress_upload.cjson", StageUpload.FileName())
}

func TestOpenLoadsExistingEntriesAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress_validate.cjson")
	f := tempFile(t, dir, "a.fastq")
	key := KeyFor(f)
	meta := fileMeta{Checksum: "abc", Size: 5}

	l1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l1.Set(key, meta, ValidationState{ValidationPassed: true}))
	require.NoError(t, l1.Close())

	time.Sleep(time.Millisecond)

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()
	assert.Equal(t, 1, l2.NumEntries())
}
