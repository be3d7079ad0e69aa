// Package audit records administrative security changes. Events are enqueued
// by the API process and persisted by the worker, so a slow audit store never
// blocks the originating request.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/festeja/festeja/internal/identity"
)

const (
	// QueueDefault is the queue audit tasks are enqueued on.
	QueueDefault = "default"
	// TaskTypeEvent is the task type carrying one audit event.
	TaskTypeEvent = "audit:event"
	// TaskTypePurge is the task type for retention cleanup.
	TaskTypePurge = "audit:purge"
)

// Event describes one recorded administrative action.
type Event struct {
	Actor    string    `json:"actor"`
	Action   string    `json:"accion"`
	Entity   string    `json:"entidad"`
	EntityID string    `json:"id_entidad"`
	Detail   string    `json:"detalle,omitempty"`
	At       time.Time `json:"created_at"`
}

// NewEventTask builds an asynq task carrying the event.
func NewEventTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEvent, payload), nil
}

// Recorder enqueues audit events. Failures are logged and swallowed: losing an
// audit row must never fail the administrative operation that produced it.
type Recorder struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewRecorder builds a Recorder on the provided asynq client.
func NewRecorder(client *asynq.Client, logger *slog.Logger) *Recorder {
	return &Recorder{client: client, logger: logger}
}

// Record enqueues one event, attributing it to the caller on the context.
func (r *Recorder) Record(ctx context.Context, action, entity, entityID string) {
	if r == nil || r.client == nil {
		return
	}
	actor, _ := identity.UserFromContext(ctx)
	task, err := NewEventTask(Event{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		At:       time.Now().UTC(),
	})
	if err != nil {
		r.warn("audit task build", err)
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		r.warn("audit enqueue", err)
	}
}

func (r *Recorder) warn(msg string, err error) {
	if r.logger != nil {
		r.logger.Warn(msg, slog.Any("error", err))
	}
}
