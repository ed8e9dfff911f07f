package core

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/flockd-project/flockd/pkg/protocol"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// fakeCoordinator plays the coordinator side of the setup + static dialog
// against one worker connection, for exercising Worker.Run end to end.
func fakeCoordinator(t *testing.T, conn net.Conn, classRegisterPath, modelPath string) {
	t.Helper()
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("fake coordinator: %v", err)
		}
	}

	must(send(ctx, conn, protocol.TopicHi, sendOpts{}))

	res, err := recv(ctx, conn, "")
	must(err)
	if res.Envelope.Topic != protocol.TopicSetup {
		t.Fatalf("topic = %v, want setup", res.Envelope.Topic)
	}

	must(send(ctx, conn, protocol.TopicClientID, sendOpts{message: "1"}))
	must(send(ctx, conn, protocol.TopicClassRegister, sendOpts{filePath: classRegisterPath}))
	must(send(ctx, conn, protocol.TopicModelsCount, sendOpts{message: "1"}))
	must(send(ctx, conn, protocol.TopicPickle, sendOpts{filePath: modelPath}))

	must(send(ctx, conn, protocol.TopicLoadBalancing, sendOpts{message: "static"}))
	must(send(ctx, conn, protocol.TopicStaticImagesCount, sendOpts{message: "1"}))
	must(send(ctx, conn, protocol.TopicStaticImage, sendOpts{message: "ts1", filePath: modelPath}))

	result, err := RecvProcessedData(ctx, conn)
	must(err)
	if len(result) == 0 {
		t.Fatalf("expected a non-empty result")
	}
}

func TestWorkerRunStaticEndToEnd(t *testing.T) {
	dir := t.TempDir()
	classPath := filepath.Join(dir, "register.json")
	modelPath := filepath.Join(dir, "model.pkl")
	writeFile(t, classPath, `[]`)
	writeFile(t, modelPath, "model-bytes")

	workerDir := t.TempDir()
	cfg := WorkerConfig{
		Name:      "test-worker",
		ModelsDir: filepath.Join(workerDir, "Models"),
		ImagesDir: filepath.Join(workerDir, "Images"),
		JSONsDir:  filepath.Join(workerDir, "Jsons"),
	}
	if err := PrepareFolders(cfg.ModelsDir, cfg.ImagesDir, cfg.JSONsDir); err != nil {
		t.Fatalf("PrepareFolders: %v", err)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeCoordinator(t, server, classPath, modelPath)
	}()

	w := NewWorker(cfg, client, nil, testLogger())
	processed, err := w.Run(context.Background())
	<-done

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if w.State() != StateClosing {
		t.Errorf("state = %v, want closing", w.State())
	}

	if _, err := os.Stat(filepath.Join(cfg.ModelsDir, "model.pkl")); err != nil {
		t.Errorf("model not saved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.JSONsDir, "register.json")); err != nil {
		t.Errorf("class register not saved: %v", err)
	}
}

func TestPrepareFoldersClearsExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "stale.jpg"), "old")

	if err := PrepareFolders(dir); err != nil {
		t.Fatalf("PrepareFolders: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir, got %v", entries)
	}
}
