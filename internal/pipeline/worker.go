package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/dlq"
	"github.com/vietddude/taskguard/internal/infra/queue"
	"github.com/vietddude/taskguard/internal/lifecycle"
	"github.com/vietddude/taskguard/internal/metrics"
)

// Handler executes one task attempt.
type Handler func(ctx context.Context, task *domain.Task) error

// DestinyHandler is the default handler: it fails every attempt of a task
// whose failure destiny was decided at creation, and succeeds otherwise.
func DestinyHandler(ctx context.Context, task *domain.Task) error {
	if task.FailureDestiny {
		return fmt.Errorf("internal processing failure for task %s", task.TaskID)
	}
	return nil
}

// Worker consumes the transport and drives tasks through their lifecycle.
// Workers are stateless; any number may run in parallel against the same
// store and transport.
type Worker struct {
	id           int
	svc          *Service
	transport    queue.Transport
	handler      Handler
	pollInterval time.Duration
	log          *slog.Logger
}

func NewWorker(
	id int,
	svc *Service,
	transport queue.Transport,
	handler Handler,
	pollInterval time.Duration,
	log *slog.Logger,
) *Worker {
	if handler == nil {
		handler = DestinyHandler
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		id:           id,
		svc:          svc,
		transport:    transport,
		handler:      handler,
		pollInterval: pollInterval,
		log:          log.With("worker", id),
	}
}

// Run polls the transport until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down")
			return
		case <-ticker.C:
			for {
				msg, err := w.transport.Receive(ctx)
				if err != nil {
					w.log.Error("receive failed", "error", err)
					break
				}
				if msg == nil {
					break
				}
				if err := w.processMessage(ctx, msg); err != nil {
					w.log.Error("message processing failed",
						"message_id", msg.ID, "error", err)
				}
			}
		}
	}
}

// processMessage drives one delivery: mark processing, execute the handler,
// and either complete, extend visibility for a retry, or dead-letter.
func (w *Worker) processMessage(ctx context.Context, msg *queue.Message) error {
	var ref TaskMessage
	if err := json.Unmarshal(msg.Body, &ref); err != nil {
		// Malformed body can never succeed; drop it.
		w.log.Warn("dropping malformed message", "message_id", msg.ID, "error", err)
		return w.transport.Ack(ctx, msg.Handle)
	}

	attemptIndex := msg.DeliveryCount - 1

	task, err := w.svc.lifecycle.Get(ctx, ref.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", ref.TaskID, err)
	}
	if task.Status.Terminal() {
		// Redelivery of an already settled task; nothing left to do.
		return w.transport.Ack(ctx, msg.Handle)
	}

	task, err = w.svc.lifecycle.Transition(ctx, ref.TaskID, lifecycle.Transition{
		Status: domain.TaskStatusProcessing,
	})
	if err != nil {
		return fmt.Errorf("failed to mark task %s processing: %w", ref.TaskID, err)
	}

	attemptErr := w.handler(ctx, task)

	outcome, err := w.svc.RecordAttemptOutcome(ctx, ref.TaskID, attemptIndex, attemptErr)
	if err != nil {
		return fmt.Errorf("failed to record outcome for task %s: %w", ref.TaskID, err)
	}

	switch outcome.Type {
	case OutcomeCompleted:
		return w.transport.Ack(ctx, msg.Handle)

	case OutcomeRetry:
		// Extending visibility keeps the message in flight for the
		// backoff delay without a duplicate delivery.
		if outcome.VisibilitySeconds > 0 {
			if err := w.transport.ExtendVisibility(ctx, msg.Handle, outcome.VisibilitySeconds); err != nil {
				return fmt.Errorf("failed to extend visibility for task %s: %w", ref.TaskID, err)
			}
			metrics.VisibilityExtensions.Inc()
		}
		return nil

	case OutcomeTerminal:
		settled, err := w.svc.lifecycle.Get(ctx, ref.TaskID)
		if err != nil {
			return fmt.Errorf("failed to load dead-lettered task %s: %w", ref.TaskID, err)
		}
		entry := w.svc.BuildDLQEntry(settled, dlq.TransportMetadata{
			MessageID:       msg.ID,
			DeliveryCount:   msg.DeliveryCount,
			FirstReceivedAt: msg.FirstReceivedAt,
			LastReceivedAt:  time.Now().UTC(),
		})
		if err := w.svc.ArchiveDLQEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to archive dlq entry for task %s: %w", ref.TaskID, err)
		}
		return w.transport.Ack(ctx, msg.Handle)
	}

	return errors.New("unreachable attempt outcome")
}
