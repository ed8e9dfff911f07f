package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/flockd-project/flockd/internal/registry"
	"github.com/flockd-project/flockd/internal/tracing"
	"github.com/flockd-project/flockd/internal/transport"
)

// RunSetup accepts exactly reg.Size() connections from ln, runs the setup
// dialog on each concurrently, and barrier-waits for all of them - the Go
// rendition of get_clients()/handle_client_initialization in
// original_source/distributed_server.py. A per-connection setup failure is
// logged and leaves that slot held rather than retried or released (spec.md
// §4.4, open question #4: not re-offered).
func RunSetup(ctx context.Context, ln transport.Listener, reg *registry.Registry, batch *Batch, log *slog.Logger) error {
	n := reg.Size()
	log.Info("waiting for workers to connect", "count", n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return fmt.Errorf("core: accept connection %d/%d: %w", i+1, n, err)
		}

		slot, err := reg.Claim()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("core: claim slot: %w", err)
		}

		wg.Add(1)
		go func(slot *registry.Slot, conn transport.Conn) {
			defer wg.Done()
			if err := setupOne(ctx, reg, slot, conn, batch); err != nil {
				log.Error("worker setup failed", "slot", slot.ID, "error", err)
			}
		}(slot, conn)
	}

	wg.Wait()
	log.Info("all workers connected", "count", n)
	return nil
}

// setupOne runs the S1/R1/S2/S3/S4/S5 exchange against one newly-accepted
// connection and finalizes its slot in reg on success.
func setupOne(ctx context.Context, reg *registry.Registry, slot *registry.Slot, conn transport.Conn, batch *Batch) (err error) {
	ctx, span := batch.Tracer.StartSetup(ctx, slot.ID)
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		}
		span.End()
	}()

	// S1 - welcome:
	if err := SendHi(ctx, conn); err != nil {
		return fmt.Errorf("slot %d: send Hi: %w", slot.ID, err)
	}

	// R1 - worker's self-reported name:
	name, err := RecvSetup(ctx, conn)
	if err != nil {
		return fmt.Errorf("slot %d: recv setup: %w", slot.ID, err)
	}

	// S2 - assigned client id:
	if err := SendClientID(ctx, conn, slot.ID); err != nil {
		return fmt.Errorf("slot %d (%s): send client id: %w", slot.ID, name, err)
	}

	// S3 - shared class register file:
	if err := SendClassRegister(ctx, conn, batch.Config.ClassRegister); err != nil {
		return fmt.Errorf("slot %d (%s): send class register: %w", slot.ID, name, err)
	}

	// S4/S5 - model count, then each model file:
	entries, err := os.ReadDir(batch.Config.ModelsDir)
	if err != nil {
		return fmt.Errorf("slot %d (%s): list models dir: %w", slot.ID, name, err)
	}
	if err := SendModelsCount(ctx, conn, len(entries)); err != nil {
		return fmt.Errorf("slot %d (%s): send models count: %w", slot.ID, name, err)
	}
	for _, entry := range entries {
		path := filepath.Join(batch.Config.ModelsDir, entry.Name())
		if err := SendPickle(ctx, conn, path); err != nil {
			return fmt.Errorf("slot %d (%s): send model %s: %w", slot.ID, name, entry.Name(), err)
		}
	}

	reg.Finalize(slot, name, conn)
	return nil
}
