// Package ledger implements the append-only, per-stage progress log (C3)
// that gates every stage of the submission pipeline: checksum validation,
// sequencing-data validation, encryption, decryption, upload, and download.
//
// The on-disk form is one JSON object per line (".cjson"); the in-memory
// index key is (absolute_path, mtime, size), and a cached entry is only
// trusted if its stored file metadata is field-for-field equal to the
// metadata presented by the caller (spec.md §4.2).
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sync"
)

// Key identifies a file for ledger lookup purposes.
type Key struct {
	AbsolutePath     string `json:"file_path"`
	ModificationTime float64 `json:"modification_time"`
	Size             int64   `json:"size"`
}

// record is the on-disk line shape.
type record struct {
	Key
	Metadata json.RawMessage `json:"metadata"`
	State    json.RawMessage `json:"state"`
}

type entry struct {
	metadata json.RawMessage
	state    json.RawMessage
}

// Ledger is a single stage's append-only progress log.
type Ledger struct {
	path string

	mu      sync.Mutex
	file    *os.File
	entries map[Key]entry
}

// Open loads an existing ledger file (tolerating a truncated trailing line,
// per spec.md §4.2/§9) and opens it for appending new entries.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: make(map[Key]entry)}
	if err := l.replay(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Close flushes and closes the underlying file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A trailing partial line is treated as truncation and discarded
			// rather than as an error, per spec.md §4.2.
			continue
		}
		l.entries[rec.Key] = entry{metadata: rec.Metadata, state: rec.State}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ledger: scan %s: %w", l.path, err)
	}
	return nil
}

// Get returns the latest matching state for (path, fileMeta) if present and
// its stored metadata matches fileMeta field-by-field. state must be a
// pointer; it is populated via json.Unmarshal on a hit.
func (l *Ledger) Get(key Key, fileMeta, state interface{}) (bool, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return false, nil
	}
	if !metadataMatches(e.metadata, fileMeta) {
		return false, nil
	}
	if err := json.Unmarshal(e.state, state); err != nil {
		return false, fmt.Errorf("ledger: decode state: %w", err)
	}
	return true, nil
}

// metadataMatches compares the stored raw metadata against the caller's
// current metadata by round-tripping both through the same Go value and
// comparing with reflect.DeepEqual — "field-by-field" equality per
// spec.md §4.2, without depending on canonical JSON key ordering.
func metadataMatches(stored json.RawMessage, current interface{}) bool {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return false
	}
	var a, b interface{}
	if err := json.Unmarshal(stored, &a); err != nil {
		return false
	}
	if err := json.Unmarshal(currentJSON, &b); err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Set appends a new state record for (path, fileMeta); the last record for
// a given key wins on reload.
func (l *Ledger) Set(key Key, fileMeta, state interface{}) error {
	metaJSON, err := json.Marshal(fileMeta)
	if err != nil {
		return fmt.Errorf("ledger: encode metadata: %w", err)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ledger: encode state: %w", err)
	}

	rec := record{Key: key, Metadata: metaJSON, State: stateJSON}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("ledger: write to closed ledger %s", l.path)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger: append %s: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("ledger: sync %s: %w", l.path, err)
	}
	l.entries[key] = entry{metadata: metaJSON, state: stateJSON}
	return nil
}

// Compute is invoked by GetOrCompute when no valid cached state exists.
type Compute func() (state interface{}, err error)

// GetOrCompute returns the cached state for (key, fileMeta) if valid,
// otherwise invokes compute, persists its result, and returns it. out must
// be a pointer and is populated with the resulting state either way.
func (l *Ledger) GetOrCompute(key Key, fileMeta interface{}, out interface{}, compute Compute) error {
	if hit, err := l.Get(key, fileMeta, out); err != nil {
		return err
	} else if hit {
		return nil
	}
	state, err := compute()
	if err != nil {
		return err
	}
	if err := l.Set(key, fileMeta, state); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ledger: re-encode computed state: %w", err)
	}
	return json.Unmarshal(stateJSON, out)
}

// KeepEntry pairs a key with the metadata it must still match to survive a
// Cleanup pass.
type KeepEntry struct {
	Key      Key
	Metadata interface{}
}

// Cleanup rewrites the ledger file, retaining only entries whose key and
// metadata match one of keep (spec.md §4.2, property 6).
func (l *Ledger) Cleanup(keep []KeepEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	wanted := make(map[Key]json.RawMessage, len(keep))
	for _, k := range keep {
		metaJSON, err := json.Marshal(k.Metadata)
		if err != nil {
			return fmt.Errorf("ledger: encode keep metadata: %w", err)
		}
		wanted[k.Key] = metaJSON
	}

	newEntries := make(map[Key]entry, len(wanted))
	for key, e := range l.entries {
		wantMeta, ok := wanted[key]
		if !ok {
			continue
		}
		var a, b interface{}
		if err := json.Unmarshal(e.metadata, &a); err != nil {
			continue
		}
		if err := json.Unmarshal(wantMeta, &b); err != nil {
			continue
		}
		if reflect.DeepEqual(a, b) {
			newEntries[key] = e
		}
	}

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("ledger: close for cleanup: %w", err)
		}
	}
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("ledger: recreate %s: %w", l.path, err)
	}
	w := bufio.NewWriter(f)
	for key, e := range newEntries {
		rec := record{Key: key, Metadata: e.metadata, State: e.state}
		line, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return fmt.Errorf("ledger: encode record during cleanup: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("ledger: write during cleanup: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("ledger: flush cleanup: %w", err)
	}
	l.entries = newEntries

	reopened, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		f.Close()
		return fmt.Errorf("ledger: reopen after cleanup: %w", err)
	}
	f.Close()
	l.file = reopened
	return nil
}

// NumEntries returns the number of distinct keys tracked in memory.
func (l *Ledger) NumEntries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Delete removes the ledger file entirely, used by --force semantics
// (spec.md §4.6) to force full recomputation of a stage.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ledger: delete %s: %w", path, err)
	}
	return nil
}

// KeyFor derives the ledger index for a file on disk: (absolute path, mtime
// as unix seconds, size), or (-1, -1) if the file does not exist, matching
// the teacher's pattern of deriving index tuples from filesystem stat calls.
func KeyFor(absolutePath string) Key {
	info, err := os.Stat(absolutePath)
	if err != nil {
		return Key{AbsolutePath: absolutePath, ModificationTime: -1, Size: -1}
	}
	return Key{
		AbsolutePath:     absolutePath,
		ModificationTime: float64(info.ModTime().UnixNano()) / 1e9,
		Size:             info.Size(),
	}
}
