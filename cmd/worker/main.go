// Command worker connects to a flockd coordinator, completes the setup
// handshake, and processes whichever scheduling mode the coordinator
// announces until the batch (or its own connection) ends.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flockd-project/flockd/internal/audit"
	"github.com/flockd-project/flockd/internal/config"
	"github.com/flockd-project/flockd/internal/core"
	"github.com/flockd-project/flockd/internal/discovery"
	"github.com/flockd-project/flockd/internal/transport"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagAddr       string
	flagDiscover   bool
	flagCode       string
	flagName       string
	flagTail       int
)

func main() {
	root := &cobra.Command{
		Use:   "flockd-worker",
		Short: "flockd-worker connects to a coordinator and processes tasks",
	}

	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a coordinator and run until the batch completes",
		RunE:  runConnect,
	}
	connect.Flags().StringVar(&flagConfigPath, "config", "", "not read; .flockd.yaml is loaded from the working directory or ~/.flockd")
	connect.Flags().StringVar(&flagAddr, "addr", "", "coordinator host:port to dial directly")
	connect.Flags().BoolVar(&flagDiscover, "discover", false, "find the coordinator via mDNS instead of --addr")
	connect.Flags().StringVar(&flagCode, "code", "", "batch code, required for --discover or registry lookup")
	connect.Flags().StringVar(&flagName, "name", "", "name reported to the coordinator (defaults to hostname)")

	history := &cobra.Command{
		Use:   "history",
		Short: "Print this worker's run-history table",
		RunE: func(cmd *cobra.Command, args []string) error {
			audit.ShowHistory(flagTail)
			return nil
		},
	}
	history.Flags().IntVar(&flagTail, "tail", 0, "show only the N most recent runs (0 = all)")

	root.AddCommand(connect, history)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagAddr != "" {
		cfg.CoordinatorAddr = flagAddr
	}
	if flagCode != "" {
		cfg.Code = flagCode
	}
	if flagName != "" {
		cfg.Name = flagName
	}
	if flagDiscover {
		cfg.Discover = true
	}

	addr := cfg.CoordinatorAddr
	if cfg.Discover {
		if cfg.Code == "" {
			return fmt.Errorf("--discover requires --code")
		}
		found, err := discovery.FindCoordinator(cfg.Transport, cfg.Code, 10*time.Second)
		if err != nil {
			log.Warn("mDNS discovery failed, falling back to registry", "error", err)
			found, err = discovery.LookupCloud(cfg.Code)
			if err != nil {
				return fmt.Errorf("discover coordinator: %w", err)
			}
		}
		addr = found
	}

	if err := core.PrepareFolders(cfg.ModelsDir, cfg.ImagesDir, cfg.JSONsDir); err != nil {
		return fmt.Errorf("prepare folders: %w", err)
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

	conn, err := tr.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial coordinator %s: %w", addr, err)
	}
	defer conn.Close()

	w := core.NewWorker(core.WorkerConfig{
		Name:      cfg.Name,
		ModelsDir: cfg.ModelsDir,
		ImagesDir: cfg.ImagesDir,
		JSONsDir:  cfg.JSONsDir,
	}, conn, nil, log)

	runID := petname.Generate(2, "-")
	start := time.Now()
	log.Info("connecting to coordinator", "addr", addr, "run_id", runID)

	processed, runErr := w.Run(ctx)

	entry := audit.RunEntry{
		ID:            runID,
		NumWorkers:    1,
		TasksComplete: processed,
		Duration:      time.Since(start).Seconds(),
		Status:        "success",
	}
	if runErr != nil {
		entry.Status = "failed"
		entry.Error = runErr.Error()
	}
	if err := audit.WriteEntry(entry); err != nil {
		log.Error("failed to write run-history entry", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("worker run: %w", runErr)
	}
	log.Info("batch complete", "tasks_processed", processed, "duration_seconds", entry.Duration)
	return nil
}
