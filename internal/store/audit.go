package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository appends security-relevant action records (today the
// commitment engine's create, release and cancel). Supplemental to the spec's
// named modules, following the teacher's append-only audit-trail habit.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db.pool}
}

func (r *AuditRepository) Record(ctx context.Context, a *AuditLog) error {
	const q = `INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, correlation_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, q, a.ID, a.Actor, a.Action, a.EntityType, a.EntityID, a.Detail, a.CorrelationID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*AuditLog, error) {
	const q = `SELECT id, actor, action, entity_type, entity_id, detail, correlation_id, created_at
		FROM audit_logs WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs for %s/%s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	var out []*AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.Actor, &a.Action, &a.EntityType, &a.EntityID, &a.Detail, &a.CorrelationID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log row: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
