package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Analyzer turns one dispatched task's image bytes into a ResultRecord. Face
// analysis itself is out of scope (spec.md §1's non-goals); this interface is
// the seam a real implementation plugs into.
type Analyzer interface {
	Analyze(imageBytes []byte, timestamp string) (json.RawMessage, error)
}

// StubAnalyzer is a deterministic placeholder grounded on the original's
// `dummy_process_image` test helper: it reports a fixed-shape result derived
// only from the image's content hash and the timestamp it was tagged with, so
// repeated runs over the same input are reproducible without a real model.
type StubAnalyzer struct{}

// Analyze implements Analyzer.
func (StubAnalyzer) Analyze(imageBytes []byte, timestamp string) (json.RawMessage, error) {
	sum := sha256.Sum256(imageBytes)
	record := struct {
		Timestamp     string   `json:"timestamp"`
		PeoplePresent []string `json:"people_present"`
		ContentHash   string   `json:"content_hash"`
	}{
		Timestamp:     timestamp,
		PeoplePresent: []string{},
		ContentHash:   fmt.Sprintf("%x", sum[:8]),
	}
	return json.Marshal(record)
}
