package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/flockd-project/flockd/internal/registry"
	"github.com/flockd-project/flockd/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBatch(t *testing.T) *Batch {
	t.Helper()
	b, err := NewBatch(Config{ResultLogPath: filepath.Join(t.TempDir(), "results.json")})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	return b
}

// fakeStaticWorker plays the worker side of static_load_balancing: read the
// image count, then for each image echo back a fixed result.
func fakeStaticWorker(t *testing.T, conn net.Conn, wantCount int) {
	t.Helper()
	ctx := context.Background()

	res, err := recv(ctx, conn, "")
	if err != nil {
		t.Errorf("fake worker recv count: %v", err)
		return
	}
	if res.Envelope.Topic != protocol.TopicStaticImagesCount {
		t.Errorf("topic = %v, want StaticImagesCount", res.Envelope.Topic)
		return
	}
	var count int
	fmt.Sscanf(res.Envelope.Message, "%d", &count)
	if count != wantCount {
		t.Errorf("count = %d, want %d", count, wantCount)
	}

	for i := 0; i < count; i++ {
		res, err := recv(ctx, conn, t.TempDir())
		if err != nil {
			t.Errorf("fake worker recv image %d: %v", i, err)
			return
		}
		if res.Envelope.Topic != protocol.TopicStaticImage {
			t.Errorf("topic = %v, want StaticImage", res.Envelope.Topic)
			return
		}
		result, _ := json.Marshal(map[string]any{"people_present": []string{"a"}})
		if err := send(ctx, conn, protocol.TopicProcessedData, sendOpts{message: string(result)}); err != nil {
			t.Errorf("fake worker send result %d: %v", i, err)
			return
		}
	}
}

func TestRunStaticDispatchesContiguousChunks(t *testing.T) {
	n := 2
	tasks := []Task{
		{ImagePath: "a.jpg", Timestamp: "t1"},
		{ImagePath: "b.jpg", Timestamp: "t2"},
		{ImagePath: "c.jpg", Timestamp: "t3"},
	} // 3 tasks / 2 workers => 1 per worker, 1 dropped

	workers := make([]*registry.Slot, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()
		workers[i] = &registry.Slot{ID: i + 1, Name: fmt.Sprintf("w%d", i+1), Conn: client}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			fakeStaticWorker(t, conn, 1)
		}(server)
	}

	batch := testBatch(t)
	if err := RunStatic(context.Background(), workers, tasks, batch, testLogger()); err != nil {
		t.Fatalf("RunStatic: %v", err)
	}
	wg.Wait()

	if got := batch.Log.Len(); got != n {
		t.Errorf("result log has %d records, want %d", got, n)
	}
}
