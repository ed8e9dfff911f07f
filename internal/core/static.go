package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flockd-project/flockd/internal/registry"
	"github.com/flockd-project/flockd/internal/tracing"
)

// RunStatic partitions tasks into len(workers) contiguous, equal-sized
// chunks and dispatches each chunk to its worker on its own goroutine,
// barrier-waiting for all to finish. Mirrors static_mode/static_mode_thread
// in original_source/distributed_server.py: `frames_count // N` tasks per
// worker, with the `frames_count % N` remainder silently dropped (spec.md
// §4.5, §9 open question #2 - kept as-is).
func RunStatic(ctx context.Context, workers []*registry.Slot, tasks []Task, batch *Batch, log *slog.Logger) error {
	n := len(workers)
	if n == 0 {
		return fmt.Errorf("core: static scheduling requires at least one worker")
	}
	perWorker := len(tasks) / n
	if perWorker == 0 {
		log.Warn("fewer tasks than workers; some workers get nothing", "tasks", len(tasks), "workers", n)
	}
	dropped := len(tasks) - perWorker*n
	if dropped > 0 {
		log.Warn("static partition drops remainder frames", "dropped", dropped)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)

	for i, slot := range workers {
		start := i * perWorker
		chunk := tasks[start : start+perWorker]

		wg.Add(1)
		go func(i int, slot *registry.Slot, chunk []Task) {
			defer wg.Done()
			errs[i] = runStaticWorker(ctx, slot, chunk, batch, log)
		}(i, slot, chunk)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runStaticWorker sends a worker its image count followed by each
// (image, timestamp) pair, appending every processed result as it arrives.
// Mirrors static_mode_thread.
func runStaticWorker(ctx context.Context, slot *registry.Slot, chunk []Task, batch *Batch, log *slog.Logger) error {
	if err := SendStaticImagesCount(ctx, slot.Conn, len(chunk)); err != nil {
		return fmt.Errorf("slot %d: send image count: %w", slot.ID, err)
	}

	for i, task := range chunk {
		spanCtx, span := batch.Tracer.StartDispatch(ctx, slot.ID, string(ModeStatic))

		start := time.Now()
		if err := SendStaticImage(spanCtx, slot.Conn, task.ImagePath, task.Timestamp); err != nil {
			tracing.RecordError(span, err)
			span.End()
			return fmt.Errorf("slot %d: send image %d: %w", slot.ID, i, err)
		}
		batch.recordDispatch()
		log.Info("image sent", "slot", slot.ID, "index", i, "timestamp", task.Timestamp)

		result, err := RecvProcessedData(spanCtx, slot.Conn)
		if err != nil {
			tracing.RecordError(span, err)
			span.End()
			return fmt.Errorf("slot %d: recv processed data %d: %w", slot.ID, i, err)
		}
		batch.recordCompletion(start)
		tracing.RecordResult(span, time.Since(start))
		span.End()
		if err := batch.Log.Append(result); err != nil {
			return fmt.Errorf("slot %d: append result %d: %w", slot.ID, i, err)
		}
	}

	log.Info("static worker completed", "slot", slot.ID, "tasks", len(chunk))
	return nil
}
