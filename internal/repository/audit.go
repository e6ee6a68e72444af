package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"webcaf.gov.uk/webcaf/internal/domain"
)

// AuditRepository appends audit records. Rows are never updated or deleted.
type AuditRepository struct {
	db DBTX
}

// Insert appends e.
func (r *AuditRepository) Insert(ctx context.Context, e domain.AuditEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_logs (id, action, actor, resource_type, resource_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Action, e.Actor, e.ResourceType, e.ResourceID, raw,
	)
	if err != nil {
		return fmt.Errorf("insert audit log %s: %w", e.Action, err)
	}
	return nil
}

// ListByResource returns the audit trail of one resource, oldest first.
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, action, actor, resource_type, resource_id, details, created_at
		FROM audit_logs WHERE resource_type = $1 AND resource_id = $2 ORDER BY created_at`,
		resourceType, resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.ResourceType, &e.ResourceID, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Details); err != nil {
			return nil, fmt.Errorf("decode audit details %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
