package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/festeja/festeja/internal/store"
)

const relEvents = "eventos_auditoria"

// Writer persists consumed audit events into the eventos_auditoria relation.
type Writer struct {
	store     store.Gateway
	logger    *slog.Logger
	retention time.Duration
}

// NewWriter builds a Writer. Events older than retention are removed by the
// purge task; zero keeps everything.
func NewWriter(gw store.Gateway, logger *slog.Logger, retention time.Duration) *Writer {
	return &Writer{store: gw, logger: logger, retention: retention}
}

// HandleEventTask processes TaskTypeEvent tasks.
func (w *Writer) HandleEventTask(ctx context.Context, t *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		if w.logger != nil {
			w.logger.Error("audit payload unreadable", slog.Any("error", err))
		}
		return asynq.SkipRetry
	}
	if _, err := w.store.Insert(ctx, relEvents, map[string]any{
		"actor":      event.Actor,
		"accion":     event.Action,
		"entidad":    event.Entity,
		"id_entidad": event.EntityID,
		"detalle":    event.Detail,
		"created_at": event.At,
	}); err != nil {
		return fmt.Errorf("audit: persist event: %w", err)
	}
	return nil
}

// HandlePurgeTask removes events older than the retention window.
func (w *Writer) HandlePurgeTask(ctx context.Context, t *asynq.Task) error {
	if w.retention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-w.retention)
	if err := w.store.Delete(ctx, relEvents, []store.Filter{store.Lt("created_at", cutoff)}); err != nil {
		return fmt.Errorf("audit: purge events: %w", err)
	}
	if w.logger != nil {
		w.logger.Info("audit events purged", slog.Time("cutoff", cutoff))
	}
	return nil
}

// NewPurgeTask builds the retention cleanup task.
func NewPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurge, nil)
}
