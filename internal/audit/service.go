package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"konsinyasi-backend/internal/models"
)

const (
	EntityStore       = "store"
	EntityProduct     = "product"
	EntityConsignment = "consignment"
	EntityTransaction = "transaction"
)

type LogOptions struct {
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog stores an audit entry through tx, so it commits or rolls back
// together with the change it describes. The actor comes from ctx.
func WriteLog(ctx context.Context, tx *gorm.DB, opts LogOptions) error {
	actor := ActorFromContext(ctx)

	log := models.AuditLog{
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}

	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// jsonb columns need the JSON literal null rather than an empty string.
func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
