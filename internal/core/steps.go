package core

import (
	"context"
	"strconv"

	"github.com/flockd-project/flockd/internal/transport"
	"github.com/flockd-project/flockd/pkg/protocol"
)

// The functions below are the named exchanges of spec.md §4.2, each a thin
// wrapper over send/recv pinned to one topic. They exist so setup.go,
// static.go, and dynamic.go read as a sequence of named steps instead of bare
// topic strings, mirroring the step comments (S1, R1, S2, ...) in
// original_source/distributed_server.py.

// SendHi is S1 of the setup dialog: the coordinator's welcome.
func SendHi(ctx context.Context, conn transport.Conn) error {
	return send(ctx, conn, protocol.TopicHi, sendOpts{})
}

// RecvSetup is R1 of the setup dialog: the worker's self-reported name.
func RecvSetup(ctx context.Context, conn transport.Conn) (string, error) {
	res, err := recv(ctx, conn, "")
	if err != nil {
		return "", err
	}
	if err := expectTopic(protocol.TopicSetup, res.Envelope.Topic); err != nil {
		return "", err
	}
	return res.Envelope.Message, nil
}

// SendClientID is S2: the slot id assigned to the worker.
func SendClientID(ctx context.Context, conn transport.Conn, id int) error {
	return send(ctx, conn, protocol.TopicClientID, sendOpts{message: strconv.Itoa(id)})
}

// SendClassRegister is S3: the shared register file every worker needs.
func SendClassRegister(ctx context.Context, conn transport.Conn, path string) error {
	return send(ctx, conn, protocol.TopicClassRegister, sendOpts{filePath: path})
}

// SendModelsCount is S4: how many model files follow.
func SendModelsCount(ctx context.Context, conn transport.Conn, count int) error {
	return send(ctx, conn, protocol.TopicModelsCount, sendOpts{message: strconv.Itoa(count)})
}

// SendPickle is S5 (repeated once per model file).
func SendPickle(ctx context.Context, conn transport.Conn, path string) error {
	return send(ctx, conn, protocol.TopicPickle, sendOpts{filePath: path})
}

// SendLoadBalancingMode announces STATIC or DYNAMIC to a worker.
func SendLoadBalancingMode(ctx context.Context, conn transport.Conn, mode string) error {
	return send(ctx, conn, protocol.TopicLoadBalancing, sendOpts{message: mode})
}

// SendStaticImagesCount tells a worker how many images it owns under STATIC.
func SendStaticImagesCount(ctx context.Context, conn transport.Conn, count int) error {
	return send(ctx, conn, protocol.TopicStaticImagesCount, sendOpts{message: strconv.Itoa(count)})
}

// SendStaticImage dispatches one image+timestamp under STATIC.
func SendStaticImage(ctx context.Context, conn transport.Conn, imagePath, timestamp string) error {
	return send(ctx, conn, protocol.TopicStaticImage, sendOpts{message: timestamp, filePath: imagePath})
}

// SendDynamicTask dispatches one image+timestamp under DYNAMIC. The terminal
// sentinel is sent by SendDynamicDone, not by this function.
func SendDynamicTask(ctx context.Context, conn transport.Conn, imagePath, timestamp string) error {
	return send(ctx, conn, protocol.TopicDynamicTask, sendOpts{message: timestamp, filePath: imagePath})
}

// doneSentinel is the terminal message the dynamic scheduler sends once the
// task queue is drained, matching the original's literal "Done".
const doneSentinel = "Done"

// SendDynamicDone sends the terminal sentinel that tells a worker there is no
// more work coming.
func SendDynamicDone(ctx context.Context, conn transport.Conn) error {
	return send(ctx, conn, protocol.TopicDynamicTask, sendOpts{message: doneSentinel})
}

// RecvProcessedData is the common response step after dispatching a task,
// whether under STATIC or DYNAMIC.
func RecvProcessedData(ctx context.Context, conn transport.Conn) ([]byte, error) {
	res, err := recv(ctx, conn, "")
	if err != nil {
		return nil, err
	}
	if err := expectTopic(protocol.TopicProcessedData, res.Envelope.Topic); err != nil {
		return nil, err
	}
	return []byte(res.Envelope.Message), nil
}
