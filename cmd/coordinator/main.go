// Command coordinator runs one flockd batch to completion: it accepts a
// fixed number of worker connections, shares the class register and model
// files, dispatches the batch descriptor's tasks under the configured
// scheduling policy, and persists both the per-task result log and a
// run-history entry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flockd-project/flockd/internal/audit"
	"github.com/flockd-project/flockd/internal/config"
	"github.com/flockd-project/flockd/internal/core"
	"github.com/flockd-project/flockd/internal/discovery"
	"github.com/flockd-project/flockd/internal/registry"
	"github.com/flockd-project/flockd/internal/transport"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"
)

var (
	flagConfigPath  string
	flagBatchPath   string
	flagMetricsAddr string
	flagAdvertise   bool
	flagTail        int
)

func main() {
	root := &cobra.Command{
		Use:   "flockd",
		Short: "flockd runs a fixed-size distributed image-analysis batch",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run one batch to completion",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagConfigPath, "config", "", "not read; .flockd.yaml is loaded from the working directory or ~/.flockd")
	serve.Flags().StringVar(&flagBatchPath, "batch", "", "path to the batch descriptor JSON (overrides config)")
	serve.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "address to serve /metrics on, e.g. :9090 (disabled if empty)")
	serve.Flags().BoolVar(&flagAdvertise, "advertise", true, "advertise this coordinator over mDNS so workers can --discover it")

	results := &cobra.Command{
		Use:   "results",
		Short: "Print the run-history table",
		RunE: func(cmd *cobra.Command, args []string) error {
			audit.ShowHistory(flagTail)
			return nil
		},
	}
	results.Flags().IntVar(&flagTail, "tail", 0, "show only the N most recent runs (0 = all)")

	root.AddCommand(serve, results)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagBatchPath != "" {
		cfg.BatchFile = flagBatchPath
	}

	desc, err := core.LoadDescriptor(cfg.BatchFile)
	if err != nil {
		return fmt.Errorf("load batch descriptor: %w", err)
	}
	mode, err := core.ParseMode(desc.ProcessingMode)
	if err != nil {
		return fmt.Errorf("batch descriptor: %w", err)
	}
	tasks := desc.Tasks()

	runID := petname.Generate(2, "-")
	batch, err := core.NewBatch(core.Config{
		NumWorkers:    cfg.NumWorkers,
		ClassRegister: cfg.ClassRegister,
		ModelsDir:     cfg.ModelsDir,
		ResultLogPath: cfg.ResultLogPath,
		RunID:         runID,
	})
	if err != nil {
		return fmt.Errorf("init batch: %w", err)
	}

	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", batch.Metrics.Handler())
		srv := &http.Server{Addr: flagMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("metrics listening", "addr", flagMetricsAddr)
	}

	var tr transport.Transport
	switch cfg.Transport {
	case "quic":
		tr = transport.NewQUICTransport()
	case "tcp", "":
		tr = transport.NewTCPTransport()
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := tr.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	code := petname.Generate(3, "-")
	log.Info("batch starting", "run_id", runID, "code", code, "workers", cfg.NumWorkers, "mode", mode, "addr", addr)

	if flagAdvertise {
		_, port, _ := net.SplitHostPort(addr)
		portNum := 0
		fmt.Sscanf(port, "%d", &portNum)
		stop, err := discovery.StartAdvertising(cfg.Transport, portNum, code, cfg.NumWorkers)
		if err != nil {
			log.Warn("mDNS advertising failed to start", "error", err)
		} else {
			defer stop()
		}
	}

	reg := registry.New(cfg.NumWorkers)
	start := time.Now()

	entry := audit.RunEntry{
		ID:         runID,
		Mode:       string(mode),
		NumWorkers: cfg.NumWorkers,
		TasksTotal: len(tasks),
		Status:     "failed",
	}

	if err := core.RunSetup(ctx, ln, reg, batch, log); err != nil {
		entry.Error = err.Error()
		entry.Duration = time.Since(start).Seconds()
		if werr := audit.WriteEntry(entry); werr != nil {
			log.Error("failed to write run-history entry", "error", werr)
		}
		releaseWorkers(reg.Ready(), log)
		return fmt.Errorf("setup: %w", err)
	}

	workers := reg.Ready()
	defer releaseWorkers(workers, log)
	for _, slot := range workers {
		if err := core.SendLoadBalancingMode(ctx, slot.Conn, string(mode)); err != nil {
			entry.Error = err.Error()
			entry.Duration = time.Since(start).Seconds()
			if werr := audit.WriteEntry(entry); werr != nil {
				log.Error("failed to write run-history entry", "error", werr)
			}
			return fmt.Errorf("announce mode to slot %d: %w", slot.ID, err)
		}
	}

	var runErr error
	switch mode {
	case core.ModeStatic:
		runErr = core.RunStatic(ctx, workers, tasks, batch, log)
	case core.ModeDynamic:
		runErr = core.RunDynamic(ctx, workers, tasks, batch, log)
	}

	entry.Duration = time.Since(start).Seconds()
	entry.TasksComplete = batch.Log.Len()
	if runErr != nil {
		entry.Error = runErr.Error()
	} else {
		entry.Status = "success"
	}
	if err := audit.WriteEntry(entry); err != nil {
		log.Error("failed to write run-history entry", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("batch run: %w", runErr)
	}
	log.Info("batch complete", "run_id", runID, "tasks", entry.TasksComplete, "duration_seconds", entry.Duration)
	return nil
}

// releaseWorkers closes every finalized slot's connection, grounded on
// distributed_server.py's release_clients(): the coordinator owns these
// sockets for exactly one batch and must tear them down on every exit path
// (success, scheduler error, or setup failure), not just on a clean run.
func releaseWorkers(workers []*registry.Slot, log *slog.Logger) {
	for _, slot := range workers {
		if slot.Conn == nil {
			continue
		}
		if err := slot.Conn.Close(); err != nil {
			log.Warn("failed to close worker connection", "slot", slot.ID, "error", err)
		}
	}
}
