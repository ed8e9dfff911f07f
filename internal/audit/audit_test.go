package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuditLogLifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test_history.jsonl")
	SetLogPathOverride(logFile)
	defer SetLogPathOverride("")

	entry1 := RunEntry{ID: "1", Mode: "static", Status: "success"}
	if err := WriteEntry(entry1); err != nil {
		t.Fatalf("WriteEntry failed: %v", err)
	}

	entries, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != "1" {
		t.Errorf("Expected ID 1, got %s", entries[0].ID)
	}

	for i := 0; i < 1100; i++ {
		e := RunEntry{
			ID:        fmt.Sprintf("p-%d", i),
			Mode:      "dynamic",
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry loop failed at %d: %v", i, err)
		}
	}

	entries, err = LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory after prune failed: %v", err)
	}
	if len(entries) > 1000 {
		t.Errorf("Pruning failed. Expected <= 1000 entries, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].ID, "p-") {
		t.Errorf("expected newest entry to be from the pruning loop, got %q", entries[0].ID)
	}

	if err := ClearHistory(); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}

	entries, err = LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory after clear failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("History not cleared. Got %d entries", len(entries))
	}

	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Error("Log file still exists after clear")
	}
}

func TestEntryMarshaling(t *testing.T) {
	entry := RunEntry{
		ID:            "test-id",
		Timestamp:     time.Now(),
		Mode:          "static",
		NumWorkers:    4,
		TasksTotal:    100,
		TasksComplete: 100,
		Status:        "success",
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded RunEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if decoded.ID != entry.ID {
		t.Errorf("Expected ID %s, got %s", entry.ID, decoded.ID)
	}
	if decoded.NumWorkers != entry.NumWorkers {
		t.Errorf("Expected NumWorkers %d, got %d", entry.NumWorkers, decoded.NumWorkers)
	}
}

func TestConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "pru_history.jsonl")
	SetLogPathOverride(logFile)
	defer SetLogPathOverride("")

	const numGoroutines = 10
	const entriesPerGoroutine = 50

	errCh := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < entriesPerGoroutine; j++ {
				entry := RunEntry{
					ID:        fmt.Sprintf("worker-%d-%d", id, j),
					Timestamp: time.Now(),
					Mode:      "static",
					Status:    "success",
				}
				if err := WriteEntry(entry); err != nil {
					errCh <- fmt.Errorf("worker %d failed: %v", id, err)
					return
				}
			}
			errCh <- nil
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
	}

	entries, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}

	expected := numGoroutines * entriesPerGoroutine
	if len(entries) != expected {
		t.Errorf("Expected %d entries, got %d", expected, len(entries))
	}
}
