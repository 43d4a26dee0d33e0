// Package submission implements C9 (the deterministic submission
// identifier), the resolved in-memory Submission view the stage worker
// drives, and the listing/cleaning state machine of spec.md §4.8.
package submission

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveID computes the deterministic submission identifier of spec.md
// §4.6/§8 property 4: "<submitter_id>_<submission_date>_<first-8-hex of
// SHA-256(tanG)>". It is stable across machines because it depends only on
// the metadata document's own fields.
func DeriveID(submitterID, submissionDate, tanG string) string {
	sum := sha256.Sum256([]byte(tanG))
	return submitterID + "_" + submissionDate + "_" + hex.EncodeToString(sum[:])[:8]
}
