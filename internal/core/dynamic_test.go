package core

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/flockd-project/flockd/internal/registry"
	"github.com/flockd-project/flockd/pkg/protocol"
)

// fakeDynamicWorker plays the worker side of dynamic_load_balancing: loop
// receiving tasks and echoing a result until the Done sentinel arrives.
func fakeDynamicWorker(t *testing.T, conn net.Conn) int {
	t.Helper()
	ctx := context.Background()
	processed := 0

	for {
		res, err := recv(ctx, conn, t.TempDir())
		if err != nil {
			t.Errorf("fake worker recv: %v", err)
			return processed
		}
		if res.Envelope.Topic != protocol.TopicDynamicTask {
			t.Errorf("topic = %v, want DynamicTask", res.Envelope.Topic)
			return processed
		}
		if strings.EqualFold(res.Envelope.Message, doneSentinel) {
			return processed
		}

		result, _ := json.Marshal(map[string]any{"people_present": []string{}})
		if err := send(ctx, conn, protocol.TopicProcessedData, sendOpts{message: string(result)}); err != nil {
			t.Errorf("fake worker send result: %v", err)
			return processed
		}
		processed++
	}
}

func TestRunDynamicDrainsQueueAndSendsDone(t *testing.T) {
	n := 3
	tasks := make([]Task, 7)
	for i := range tasks {
		tasks[i] = Task{ImagePath: "x.jpg", Timestamp: "t"}
	}

	workers := make([]*registry.Slot, n)
	var wg sync.WaitGroup
	processedCounts := make([]int, n)
	for i := 0; i < n; i++ {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()
		workers[i] = &registry.Slot{ID: i + 1, Conn: client}

		wg.Add(1)
		go func(idx int, conn net.Conn) {
			defer wg.Done()
			processedCounts[idx] = fakeDynamicWorker(t, conn)
		}(i, server)
	}

	batch := testBatch(t)
	if err := RunDynamic(context.Background(), workers, tasks, batch, testLogger()); err != nil {
		t.Fatalf("RunDynamic: %v", err)
	}
	wg.Wait()

	total := 0
	for _, c := range processedCounts {
		total += c
	}
	if total != len(tasks) {
		t.Errorf("total processed = %d, want %d", total, len(tasks))
	}
	if got := batch.Log.Len(); got != len(tasks) {
		t.Errorf("result log has %d records, want %d", got, len(tasks))
	}
	for _, w := range workers {
		if w.Busy() {
			t.Errorf("worker %d still marked busy after run", w.ID)
		}
	}
}
