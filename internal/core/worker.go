package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/flockd-project/flockd/internal/transport"
	"github.com/flockd-project/flockd/pkg/protocol"
)

// State is a worker's position in its connection lifecycle.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateInitializing
	StateIdle
	StateProcessing
	StateClosing
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateClosing:
		return "closing"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// WorkerConfig names the worker-local directories prepared fresh each run,
// mirroring MODELS_FOLDER/IMAGES_FOLDER/JSONS_FOLDER in
// original_source/Client/distributed_client.py.
type WorkerConfig struct {
	Name      string // reported in the setup dialog; defaults to os.Hostname()
	ModelsDir string
	ImagesDir string
	JSONsDir  string
}

// Worker runs one worker's side of the protocol dialog against a single
// coordinator connection: connect, setup, then whichever scheduling mode the
// coordinator announces.
type Worker struct {
	cfg      WorkerConfig
	conn     transport.Conn
	analyzer Analyzer
	log      *slog.Logger

	state State
	id    string
}

// NewWorker wraps an already-dialed connection. PrepareFolders must be called
// before Run if the caller wants a clean directory layout (Run does not call
// it implicitly, so tests can reuse fixture directories).
func NewWorker(cfg WorkerConfig, conn transport.Conn, analyzer Analyzer, log *slog.Logger) *Worker {
	if cfg.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Name = host
		} else {
			cfg.Name = "unknown-worker"
		}
	}
	if analyzer == nil {
		analyzer = StubAnalyzer{}
	}
	return &Worker{cfg: cfg, conn: conn, analyzer: analyzer, log: log, state: StateConnecting}
}

// PrepareFolders empties the worker's Models/Images/Jsons directories,
// matching prepare_folder in the original client: delete every entry in an
// existing directory, or create the directory if it is missing.
func PrepareFolders(dirs ...string) error {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("core: create folder %s: %w", dir, err)
				}
				continue
			}
			return fmt.Errorf("core: read folder %s: %w", dir, err)
		}
		for _, e := range entries {
			if err := os.RemoveAll(dir + "/" + e.Name()); err != nil {
				return fmt.Errorf("core: clear folder %s: %w", dir, err)
			}
		}
	}
	return nil
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State { return w.state }

// Run drives the connection through setup and then one scheduling mode to
// completion, returning the number of tasks processed.
func (w *Worker) Run(ctx context.Context) (int, error) {
	w.state = StateHandshaking
	if err := w.setup(ctx); err != nil {
		w.state = StateAborted
		return 0, err
	}

	w.state = StateIdle
	mode, err := w.recvMode(ctx)
	if err != nil {
		w.state = StateAborted
		return 0, err
	}

	var processed int
	switch mode {
	case ModeStatic:
		processed, err = w.runStatic(ctx)
	case ModeDynamic:
		processed, err = w.runDynamic(ctx)
	default:
		err = fmt.Errorf("core: worker received unknown mode %q", mode)
	}
	if err != nil {
		w.state = StateAborted
		return processed, err
	}

	w.state = StateClosing
	return processed, nil
}

// setup runs R1/S1/R2/R3/R4/R5 against the coordinator, matching
// connect_to_server.
func (w *Worker) setup(ctx context.Context) error {
	// R1 - welcome:
	res, err := recv(ctx, w.conn, "")
	if err != nil {
		return err
	}
	if err := expectTopic(protocol.TopicHi, res.Envelope.Topic); err != nil {
		return err
	}

	// S1 - device name:
	if err := send(ctx, w.conn, protocol.TopicSetup, sendOpts{message: w.cfg.Name}); err != nil {
		return err
	}

	// R2 - client id:
	res, err = recv(ctx, w.conn, "")
	if err != nil {
		return err
	}
	if err := expectTopic(protocol.TopicClientID, res.Envelope.Topic); err != nil {
		return err
	}
	w.id = res.Envelope.Message

	// R3 - class register (saved to Jsons/):
	res, err = recv(ctx, w.conn, w.cfg.JSONsDir)
	if err != nil {
		return err
	}
	if err := expectTopic(protocol.TopicClassRegister, res.Envelope.Topic); err != nil {
		return err
	}

	// R4 - models count:
	res, err = recv(ctx, w.conn, "")
	if err != nil {
		return err
	}
	if err := expectTopic(protocol.TopicModelsCount, res.Envelope.Topic); err != nil {
		return err
	}
	var modelsCount int
	if _, err := fmt.Sscanf(res.Envelope.Message, "%d", &modelsCount); err != nil {
		return newErr(DecodePayloadFailed, "parse models count", err)
	}

	// R5 - the models themselves (saved to Models/):
	for i := 0; i < modelsCount; i++ {
		res, err = recv(ctx, w.conn, w.cfg.ModelsDir)
		if err != nil {
			return err
		}
		if err := expectTopic(protocol.TopicPickle, res.Envelope.Topic); err != nil {
			return err
		}
	}

	w.state = StateInitializing
	return nil
}

// recvMode reads the scheduling mode announced on TopicLoadBalancing.
func (w *Worker) recvMode(ctx context.Context) (Mode, error) {
	res, err := recv(ctx, w.conn, "")
	if err != nil {
		return "", err
	}
	if err := expectTopic(protocol.TopicLoadBalancing, res.Envelope.Topic); err != nil {
		return "", err
	}
	return ParseMode(res.Envelope.Message)
}

// runStatic receives its image count, then processes exactly that many
// images, matching static_load_balancing.
func (w *Worker) runStatic(ctx context.Context) (int, error) {
	res, err := recv(ctx, w.conn, "")
	if err != nil {
		return 0, err
	}
	if err := expectTopic(protocol.TopicStaticImagesCount, res.Envelope.Topic); err != nil {
		return 0, err
	}
	var count int
	if _, err := fmt.Sscanf(res.Envelope.Message, "%d", &count); err != nil {
		return 0, newErr(DecodePayloadFailed, "parse image count", err)
	}

	for i := 0; i < count; i++ {
		w.state = StateProcessing
		if err := w.processOne(ctx, protocol.TopicStaticImage); err != nil {
			return i, err
		}
		w.state = StateIdle
	}
	return count, nil
}

// runDynamic processes images until the terminal Done sentinel arrives,
// matching dynamic_load_balancing.
func (w *Worker) runDynamic(ctx context.Context) (int, error) {
	processed := 0
	for {
		res, err := recv(ctx, w.conn, w.cfg.ImagesDir)
		if err != nil {
			return processed, err
		}
		if err := expectTopic(protocol.TopicDynamicTask, res.Envelope.Topic); err != nil {
			return processed, err
		}
		if strings.EqualFold(res.Envelope.Message, doneSentinel) {
			return processed, nil
		}

		w.state = StateProcessing
		if err := w.respond(ctx, res); err != nil {
			return processed, err
		}
		w.state = StateIdle
		processed++
	}
}

// processOne receives one image+timestamp envelope of the given topic and
// responds with its processed result.
func (w *Worker) processOne(ctx context.Context, topic protocol.Topic) error {
	res, err := recv(ctx, w.conn, w.cfg.ImagesDir)
	if err != nil {
		return err
	}
	if err := expectTopic(topic, res.Envelope.Topic); err != nil {
		return err
	}
	return w.respond(ctx, res)
}

// respond analyzes an already-received task envelope and sends the result
// back on TopicProcessedData.
func (w *Worker) respond(ctx context.Context, res recvResult) error {
	var imageBytes []byte
	if res.SavedTo != "" {
		data, err := os.ReadFile(res.SavedTo)
		if err != nil {
			return newErr(TransientIO, "read saved image", err)
		}
		imageBytes = data
	}

	result, err := w.analyzer.Analyze(imageBytes, res.Envelope.Message)
	if err != nil {
		return newErr(DecodePayloadFailed, "analyze image", err)
	}

	return send(ctx, w.conn, protocol.TopicProcessedData, sendOpts{message: string(result)})
}
