// Package audit maintains the coordinator's run-history log: one JSONL
// entry per batch run, guarded by a gofrs/flock file lock, rendered as a
// lipgloss table by `flockd results`/`flockd history`. Structurally grounded
// on the teacher's internal/audit package (same lock discipline, same
// append/prune/rewrite shape) generalized from per-transfer entries to
// per-batch-run entries.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gofrs/flock"
)

// RunEntry is a single recorded batch run.
type RunEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Mode          string    `json:"mode"` // "static" or "dynamic"
	NumWorkers    int       `json:"num_workers"`
	TasksTotal    int       `json:"tasks_total"`
	TasksComplete int       `json:"tasks_complete"`
	Status        string    `json:"status"` // "success" or "failed"
	Error         string    `json:"error,omitempty"`
	Duration      float64   `json:"duration_seconds"`
}

var logPathOverride string

// SetLogPathOverride sets a custom path for the log file (for testing).
func SetLogPathOverride(path string) {
	logPathOverride = path
}

// GetLogPath returns the path to the run-history log file.
func GetLogPath() (string, error) {
	if logPathOverride != "" {
		return logPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".flockd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.jsonl"), nil
}

func getLockPath() (string, error) {
	logPath, err := GetLogPath()
	if err != nil {
		return "", err
	}
	return logPath + ".lock", nil
}

// withLock executes action while holding an exclusive file lock.
func withLock(action func() error) error {
	lockPath, err := getLockPath()
	if err != nil {
		return err
	}

	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("timed out waiting for history lock")
	}
	defer fileLock.Unlock()

	return action()
}

// withReadLock executes action while holding a shared read lock.
func withReadLock(action func() error) error {
	lockPath, err := getLockPath()
	if err != nil {
		return err
	}

	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := fileLock.TryRLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire read lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("timed out waiting for history read lock")
	}
	defer fileLock.Unlock()

	return action()
}

// WriteEntry appends a run entry to the history file, pruning to the most
// recent 1000 entries when the log grows past that.
func WriteEntry(entry RunEntry) error {
	return withLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}

		if entry.ID == "" {
			entry.ID = petname.Generate(2, "-")
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now()
		}

		entries, err := loadHistoryInternal(path)
		if err == nil && len(entries) >= 1000 {
			all := append([]RunEntry{entry}, entries...)
			sort.Slice(all, func(i, j int) bool {
				return all[i].Timestamp.After(all[j].Timestamp)
			})
			return rewriteHistoryInternal(path, all[:1000])
		}

		return appendEntryInternal(path, entry)
	})
}

// LoadHistory reads all entries from the history file, newest first.
func LoadHistory() ([]RunEntry, error) {
	var entries []RunEntry
	err := withReadLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		var loadErr error
		entries, loadErr = loadHistoryInternal(path)
		return loadErr
	})
	return entries, err
}

// RewriteHistory replaces the entire history file with entries.
func RewriteHistory(entries []RunEntry) error {
	return withLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		sorted := make([]RunEntry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		})
		return rewriteHistoryInternal(path, sorted)
	})
}

// ClearHistory removes the history log file entirely.
func ClearHistory() error {
	return withLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		err = os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
}

// GetEntry finds a specific run entry by ID (prefix match supported).
func GetEntry(id string) (RunEntry, error) {
	var found RunEntry
	err := withReadLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		entries, err := loadHistoryInternal(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if strings.HasPrefix(e.ID, id) {
				found = e
				return nil
			}
		}
		return fmt.Errorf("entry not found")
	})
	return found, err
}

func loadHistoryInternal(path string) ([]RunEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []RunEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry RunEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, scanner.Err()
}

func rewriteHistoryInternal(path string, entries []RunEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := len(entries) - 1; i >= 0; i-- {
		data, err := json.Marshal(entries[i])
		if err != nil {
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func appendEntryInternal(path string, entry RunEntry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// --- Display ---

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().Padding(0, 1)

	statusSuccessStr = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Render("SUCCESS")
	statusFailStr    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Render("FAILED")
)

// ShowHistory prints a table of the most recent batch runs.
func ShowHistory(tail int) {
	entries, err := LoadHistory()
	if err != nil {
		fmt.Printf("Error loading history: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No run history found.")
		return
	}
	if tail > 0 && tail < len(entries) {
		entries = entries[:tail]
	}

	fmt.Println("")
	fmt.Printf("%s %s %s %s %s %s\n",
		headerStyle.Width(20).Render("DATE"),
		headerStyle.Width(10).Render("MODE"),
		headerStyle.Width(10).Render("WORKERS"),
		headerStyle.Width(14).Render("TASKS"),
		headerStyle.Width(8).Render("TIME"),
		headerStyle.Width(10).Render("STATUS"),
	)
	fmt.Println("")

	for _, e := range entries {
		ts := e.Timestamp.Format("2006-01-02 15:04")
		tasks := fmt.Sprintf("%d/%d", e.TasksComplete, e.TasksTotal)
		duration := fmt.Sprintf("%.1fs", e.Duration)
		status := statusSuccessStr
		if e.Status != "success" {
			status = statusFailStr
		}
		mode := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")).Render(strings.ToUpper(e.Mode))

		fmt.Printf("%s %s %s %s %s %s\n",
			rowStyle.Width(20).Render(ts),
			rowStyle.Width(10).Render(mode),
			rowStyle.Width(10).Render(fmt.Sprintf("%d", e.NumWorkers)),
			rowStyle.Width(14).Render(tasks),
			rowStyle.Width(8).Render(duration),
			rowStyle.Width(10).Render(status),
		)
	}
	fmt.Println("")
}

// ShowDetail prints a single run's full record.
func ShowDetail(id string) {
	entry, err := GetEntry(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("")
	fmt.Println(headerStyle.Render("RUN DETAILS"))
	fmt.Println("")

	printKV := func(k, v string) {
		fmt.Printf("%s %s\n", lipgloss.NewStyle().Bold(true).Width(15).Foreground(lipgloss.Color("240")).Render(k+":"), v)
	}

	printKV("ID", entry.ID)
	printKV("Date", entry.Timestamp.Format(time.RFC822))
	printKV("Mode", strings.ToUpper(entry.Mode))
	printKV("Status", entry.Status)
	printKV("Workers", fmt.Sprintf("%d", entry.NumWorkers))
	printKV("Tasks", fmt.Sprintf("%d/%d", entry.TasksComplete, entry.TasksTotal))
	printKV("Duration", fmt.Sprintf("%.2fs", entry.Duration))
	fmt.Println("")

	if entry.Error != "" {
		fmt.Println(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000")).Render("Error Log:"))
		fmt.Println(entry.Error)
		fmt.Println("")
	}
}
