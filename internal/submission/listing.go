package submission

import (
	"context"
	"fmt"
	"strings"

	"github.com/grz-tools/grz-submit-core/internal/objectstore"
)

// State classifies a submission prefix found in the bucket (spec.md §4.8).
type State string

const (
	StateError      State = "error"
	StateCleaning   State = "cleaning"
	StateCleaned    State = "cleaned"
	StateComplete   State = "complete"
	StateIncomplete State = "incomplete"
)

// cleanBatchSize bounds how many keys a single DeleteObjects call removes,
// matching the S3 API's own per-request object cap.
const cleanBatchSize = 1000

// Listing is one submission prefix discovered under the bucket root, along
// with its classified lifecycle state.
type Listing struct {
	SubmissionID string
	State        State
}

// List enumerates one level of prefix under the bucket (every object key's
// first path component) and classifies each group per spec.md §4.8: error
// if both a "cleaning" and "cleaned" marker exist, cleaning/cleaned if only
// one does, complete if metadata/metadata.json exists, incomplete
// otherwise.
func List(ctx context.Context, client objectstore.Client) ([]Listing, error) {
	keys, err := client.ListObjectsV2(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("submission: list objects: %w", err)
	}

	groups := make(map[string]map[string]bool)
	var order []string
	for _, key := range keys {
		id, rest, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		if groups[id] == nil {
			groups[id] = make(map[string]bool)
			order = append(order, id)
		}
		groups[id][rest] = true
	}

	listings := make([]Listing, 0, len(order))
	for _, id := range order {
		listings = append(listings, Listing{SubmissionID: id, State: classify(groups[id])})
	}
	return listings, nil
}

func classify(rest map[string]bool) State {
	cleaning := rest["cleaning"]
	cleaned := rest["cleaned"]
	switch {
	case cleaning && cleaned:
		return StateError
	case cleaning:
		return StateCleaning
	case cleaned:
		return StateCleaned
	case rest["metadata/metadata.json"]:
		return StateComplete
	default:
		return StateIncomplete
	}
}

// Clean deletes every object under "<submissionID>/" in batches, writing
// the "cleaning" marker first and the "cleaned" marker once every batch has
// been removed (original_source's grzctl clean command sequencing). Per
// spec.md §9, a submission already showing both markers (StateError) is not
// auto-repaired — callers should check List's classification before calling
// Clean.
func Clean(ctx context.Context, client objectstore.Client, submissionID string) error {
	prefix := submissionID + "/"

	if err := client.PutObject(ctx, prefix+"cleaning", strings.NewReader(""), 0); err != nil {
		return fmt.Errorf("submission: write cleaning marker for %s: %w", submissionID, err)
	}

	keys, err := client.ListObjectsV2(ctx, prefix)
	if err != nil {
		return fmt.Errorf("submission: list objects under %s: %w", prefix, err)
	}

	for start := 0; start < len(keys); start += cleanBatchSize {
		end := start + cleanBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := client.DeleteObjects(ctx, keys[start:end]); err != nil {
			return fmt.Errorf("submission: delete batch under %s: %w", prefix, err)
		}
	}

	if err := client.PutObject(ctx, prefix+"cleaned", strings.NewReader(""), 0); err != nil {
		return fmt.Errorf("submission: write cleaned marker for %s: %w", submissionID, err)
	}
	return nil
}
