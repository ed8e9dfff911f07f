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

// sweepInterval is how often the dynamic scheduler re-scans for a free
// worker to hand the next queued task to, matching the original's
// `threading.Event().wait(0.1)`.
const sweepInterval = 100 * time.Millisecond

// drainPollInterval is how often the scheduler polls for all in-flight
// dispatches to finish before sending the terminal Done sentinel, matching
// `threading.Event().wait(1)`.
const drainPollInterval = 1 * time.Second

// RunDynamic runs a FIFO work-stealing loop over tasks: every sweep, any
// worker not currently busy is handed the next queued task on its own
// goroutine. Once the queue is empty the scheduler waits for all in-flight
// dispatches to finish, then sends every worker the terminal Done sentinel.
// Mirrors dynamic_mode/dynamic_mode_thread in
// original_source/distributed_server.py; sweep order is workers' registry
// iteration order (stable by id), matching the original's dict iteration
// over `clients` (insertion order == id order there too).
func RunDynamic(ctx context.Context, workers []*registry.Slot, tasks []Task, batch *Batch, log *slog.Logger) error {
	queue := make([]Task, len(tasks))
	copy(queue, tasks)

	var mu sync.Mutex // guards queue
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	recordErr := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

sweep:
	for {
		mu.Lock()
		empty := len(queue) == 0
		mu.Unlock()
		if empty {
			break sweep
		}

		for _, slot := range workers {
			if slot.Busy() {
				continue
			}
			mu.Lock()
			if len(queue) == 0 {
				mu.Unlock()
				break
			}
			task := queue[0]
			queue = queue[1:]
			depth := len(queue)
			mu.Unlock()
			if batch.Metrics != nil {
				batch.Metrics.QueueDepth.Set(float64(depth))
			}

			slot.SetBusy(true)
			if batch.Metrics != nil {
				batch.Metrics.WorkersBusy.Inc()
			}
			wg.Add(1)
			go func(slot *registry.Slot, task Task) {
				defer wg.Done()
				defer slot.SetBusy(false)
				if batch.Metrics != nil {
					defer batch.Metrics.WorkersBusy.Dec()
				}
				if err := dispatchDynamic(ctx, slot, task, batch, log); err != nil {
					log.Error("dynamic dispatch failed", "slot", slot.ID, "error", err)
					recordErr(err)
				}
			}(slot, task)
		}

		select {
		case <-ctx.Done():
			return newErr(UserInterrupt, "dynamic scheduling cancelled", ctx.Err())
		case <-ticker.C:
		}
	}

	// Drain: wait for all in-flight dispatches to finish before announcing Done.
	for {
		anyBusy := false
		for _, slot := range workers {
			if slot.Busy() {
				anyBusy = true
				log.Warn("worker still processing a task, waiting", "slot", slot.ID)
			}
		}
		if !anyBusy {
			break
		}
		select {
		case <-ctx.Done():
			return newErr(UserInterrupt, "dynamic scheduling cancelled", ctx.Err())
		case <-time.After(drainPollInterval):
		}
	}
	wg.Wait()

	for _, slot := range workers {
		if err := SendDynamicDone(ctx, slot.Conn); err != nil {
			recordErr(fmt.Errorf("slot %d: send done: %w", slot.ID, err))
		}
	}

	errMu.Lock()
	defer errMu.Unlock()
	return firstErr
}

// dispatchDynamic sends one task to a worker and appends its result.
// Mirrors dynamic_mode_thread.
func dispatchDynamic(ctx context.Context, slot *registry.Slot, task Task, batch *Batch, log *slog.Logger) error {
	ctx, span := batch.Tracer.StartDispatch(ctx, slot.ID, string(ModeDynamic))
	defer span.End()

	start := time.Now()
	if err := SendDynamicTask(ctx, slot.Conn, task.ImagePath, task.Timestamp); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("send task: %w", err)
	}
	batch.recordDispatch()
	log.Info("task sent", "slot", slot.ID, "timestamp", task.Timestamp)

	result, err := RecvProcessedData(ctx, slot.Conn)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("recv processed data: %w", err)
	}
	batch.recordCompletion(start)
	tracing.RecordResult(span, time.Since(start))
	if err := batch.Log.Append(result); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}
