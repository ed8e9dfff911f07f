package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flockd-project/flockd/internal/aggregator"
	"github.com/flockd-project/flockd/internal/metrics"
	"github.com/flockd-project/flockd/internal/tracing"
)

// Mode is the scheduling policy announced to workers over TopicLoadBalancing.
type Mode string

const (
	ModeStatic  Mode = "static"
	ModeDynamic Mode = "dynamic"
)

// ParseMode mirrors start_load_balancing's case-insensitive
// processing_mode.lower() check, raising the same "invalid processing mode"
// error for anything else.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "static":
		return ModeStatic, nil
	case "dynamic":
		return ModeDynamic, nil
	default:
		return "", fmt.Errorf("core: invalid processing mode %q, want \"static\" or \"dynamic\"", s)
	}
}

// Task is one unit of work: an image file path paired with the timestamp
// that identifies it, matching the original's zip(image_files, timestamps).
type Task struct {
	ImagePath string `json:"image_path"`
	Timestamp string `json:"timestamp"`
}

// Descriptor is the external batch descriptor file read at the start of a
// run (spec.md §6, "uploaded_data" in the original), naming the images to
// process, their timestamps, the declared frame count, and the scheduling
// mode.
type Descriptor struct {
	Files          []string `json:"files"`
	JSMod          []string `json:"js_mod"`
	FrameCount     int      `json:"frame_count"`
	ProcessingMode string   `json:"processing_mode"`
}

// LoadDescriptor reads and parses a batch descriptor file.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("core: read batch descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("core: parse batch descriptor: %w", err)
	}
	return d, nil
}

// Tasks zips Files and JSMod into Task values, truncating to FrameCount -
// matching zip(image_files, timestamps) in the original, which silently stops
// at the shorter of the two lists.
func (d Descriptor) Tasks() []Task {
	n := len(d.Files)
	if len(d.JSMod) < n {
		n = len(d.JSMod)
	}
	if d.FrameCount < n {
		n = d.FrameCount
	}
	tasks := make([]Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = Task{ImagePath: d.Files[i], Timestamp: d.JSMod[i]}
	}
	return tasks
}

// Config bundles the fixed, run-wide paths and settings the setup
// orchestrator and schedulers need. It replaces the original's module-level
// globals (CLASS_REGISTER, MODELS, NO_OF_CLIENTS, ...) read once from the
// environment at import time with an explicit value passed down the call
// chain - the idiomatic-Go rendition of "module-level singletons" flagged in
// spec.md §9.
type Config struct {
	NumWorkers     int
	ClassRegister  string
	ModelsDir      string
	ResultLogPath  string
	RunID          string
}

// Batch owns the per-run state the setup orchestrator and schedulers share:
// its config, its result log, its metrics and its tracer. The worker
// registry is a separate value (registry.Registry). It is the Go analogue of the
// original's module-level `clients`/`responses` globals, but scoped to a
// single run instead of shared process-wide state.
type Batch struct {
	Config  Config
	Log     *aggregator.ResultLog
	Metrics *metrics.Metrics
	Tracer  *tracing.Provider
}

// NewBatch creates a Batch with a fresh result log at cfg.ResultLogPath, a
// registered metrics collector, and a no-op tracer. Call SetTracer to enable
// real span export.
func NewBatch(cfg Config) (*Batch, error) {
	log, err := aggregator.New(cfg.ResultLogPath)
	if err != nil {
		return nil, fmt.Errorf("core: init result log: %w", err)
	}
	noop, err := tracing.Init(context.Background(), tracing.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("core: init tracer: %w", err)
	}
	return &Batch{Config: cfg, Log: log, Metrics: metrics.New(), Tracer: noop}, nil
}

// SetTracer replaces the batch's tracer, e.g. with one built from
// tracing.Init using the operator's configured exporter.
func (b *Batch) SetTracer(t *tracing.Provider) {
	b.Tracer = t
}

// recordDispatch increments the dispatched-task counter, if metrics are set.
func (b *Batch) recordDispatch() {
	if b.Metrics != nil {
		b.Metrics.RecordDispatch()
	}
}

// recordCompletion records a completed task's latency, if metrics are set.
func (b *Batch) recordCompletion(start time.Time) {
	if b.Metrics != nil {
		b.Metrics.RecordCompletion(time.Since(start))
	}
}
