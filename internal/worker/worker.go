// Package worker provides a NATS worker that assembles lesson scripts into
// audio on request.
//
// A request is a TextProcessedEvent whose TextKey names a script CSV in the
// script object store. The worker renders it, uploads one object per audio
// chunk to the audio object store and replies with one
// AudioChunkCreatedEvent per chunk, as a JSON array in chunk order.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/pipeline"
	"github.com/book-expert/lesson-audio/internal/script"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultHandleTimeout bounds the work done for one request.
const DefaultHandleTimeout = 10 * time.Minute

var (
	// ErrTextKeyEmpty indicates that the request names no script.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTestModeUnsupported indicates an assembler that produces summaries
	// instead of audio.
	ErrTestModeUnsupported = errors.New("worker cannot serve requests in test mode")
	// ErrAlreadyStarted indicates a second Start without Stop.
	ErrAlreadyStarted = errors.New("worker already started")
)

// Options configures a NatsWorker.
type Options struct {
	// Subject is where assembly requests arrive.
	Subject string
	// CreatedSubject, when set, also receives every chunk event.
	CreatedSubject string
	// HandleTimeout bounds one request. Zero means DefaultHandleTimeout.
	HandleTimeout time.Duration
}

// NatsWorker listens for assembly requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	opts           Options
	scriptStore    core.ObjectStore
	audioStore     core.ObjectStore
	assembler      *pipeline.Assembler
	log            *logger.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	opts Options,
	scriptStore core.ObjectStore,
	audioStore core.ObjectStore,
	assembler *pipeline.Assembler,
	log *logger.Logger,
) (*NatsWorker, error) {
	if assembler.TestMode() {
		return nil, ErrTestModeUnsupported
	}

	if opts.HandleTimeout == 0 {
		opts.HandleTimeout = DefaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		opts:           opts,
		scriptStore:    scriptStore,
		audioStore:     audioStore,
		assembler:      assembler,
		log:            log,
	}, nil
}

// Start subscribes to the request subject. Requests sent on the same
// connection after Start returns are delivered to the worker.
func (w *NatsWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub != nil {
		return ErrAlreadyStarted
	}

	sub, err := w.natsConnection.Subscribe(w.opts.Subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	w.sub = sub

	return nil
}

// Stop drains the subscription, letting in-flight requests finish.
func (w *NatsWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub == nil {
		return nil
	}

	drainErr := w.sub.Drain()
	w.sub = nil

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// Run starts the worker and serves requests until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	err := w.Start()
	if err != nil {
		return err
	}

	<-ctx.Done()

	return w.Stop()
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.HandleTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	replyEvents, processErr := w.processAssemblyJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to assemble script for event %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	err = w.publishReplyEvents(msg, replyEvents)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processAssemblyJob downloads the script, renders it and uploads the chunks.
func (w *NatsWorker) processAssemblyJob(ctx context.Context, event *events.TextProcessedEvent) ([]events.AudioChunkCreatedEvent, error) {
	scriptData, err := w.scriptStore.Download(ctx, event.TextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download script for key '%s': %w", event.TextKey, err)
	}

	entries, err := script.Parse(bytes.NewReader(scriptData))
	if err != nil {
		return nil, fmt.Errorf("script '%s': %w", event.TextKey, err)
	}

	if len(entries) == 0 {
		w.log.Warn("Script %s for workflow %s is empty", event.TextKey, event.Header.WorkflowID)

		return []events.AudioChunkCreatedEvent{}, nil
	}

	payloads, durationMs, err := w.assembler.Render(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble script '%s': %w", event.TextKey, err)
	}

	extension := w.assembler.Codec().Container().Extension()
	replyEvents := make([]events.AudioChunkCreatedEvent, 0, len(payloads))

	for index, payload := range payloads {
		audioKey := uuid.NewString() + extension

		err = w.audioStore.Upload(ctx, audioKey, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
		}

		header := event.Header
		header.EventID = uuid.NewString()
		header.Timestamp = time.Now()

		replyEvents = append(replyEvents, events.AudioChunkCreatedEvent{
			Header:     header,
			AudioKey:   audioKey,
			PageNumber: index + 1,
			TotalPages: len(payloads),
		})
	}

	w.log.Info("Assembled %s into %d chunk(s), %dms of audio", event.TextKey, len(payloads), durationMs)

	return replyEvents, nil
}

// publishReplyEvents responds with every chunk event and mirrors each one
// onto the created subject when configured.
func (w *NatsWorker) publishReplyEvents(msg *nats.Msg, replyEvents []events.AudioChunkCreatedEvent) error {
	if w.opts.CreatedSubject != "" {
		for i := range replyEvents {
			eventData, err := json.Marshal(&replyEvents[i])
			if err != nil {
				return fmt.Errorf("failed to marshal chunk event: %w", err)
			}

			err = w.natsConnection.Publish(w.opts.CreatedSubject, eventData)
			if err != nil {
				return fmt.Errorf("failed to publish chunk event: %w", err)
			}
		}
	}

	replyData, err := json.Marshal(replyEvents)
	if err != nil {
		return fmt.Errorf("failed to marshal reply events: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
