// Package audit appends a durable audit_logs row and emits a structured
// log line for each action its caller records. The commitment engine is
// the only caller: it records commitment create, release and cancel, and
// passes an empty correlation id. Logging follows pkg/logger's zap
// conventions.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatpay-core/internal/store"
	"chatpay-core/pkg/logger"
)

type Logger struct {
	repo *store.AuditRepository
}

func New(repo *store.AuditRepository) *Logger {
	return &Logger{repo: repo}
}

// Record writes an audit row and logs it at info level. Failures to
// persist the row are logged but never bubbled up to the caller: an
// audit-trail gap must not block the user-facing operation it describes.
func (l *Logger) Record(ctx context.Context, actor, action, entityType, entityID, detail, correlationID string) {
	a := &store.AuditLog{
		ID:            uuid.New().String(),
		Actor:         actor,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
	}
	if err := l.repo.Record(ctx, a); err != nil {
		logger.Error("failed to persist audit log", zap.Error(err), zap.String("action", action), zap.String("entity_id", entityID))
	}
	logger.Info("audit",
		zap.String("actor", actor),
		zap.String("action", action),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("correlation_id", correlationID),
	)
}

func (l *Logger) History(ctx context.Context, entityType, entityID string) ([]*store.AuditLog, error) {
	return l.repo.ListByEntity(ctx, entityType, entityID)
}
