package audit_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/testutil"
)

func TestWriteLogUsesActorFromContext(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := audit.WithActor(context.Background(), audit.Actor{UserID: 7, UserName: "Sari"})

	err := audit.WriteLog(ctx, db, audit.LogOptions{
		EntityType:  audit.EntityStore,
		EntityID:    3,
		Action:      models.AuditActionUpdate,
		Description: "store updated",
		Before:      map[string]string{"name": "old"},
	})
	require.NoError(t, err)

	var log models.AuditLog
	require.NoError(t, db.First(&log).Error)
	assert.Equal(t, uint(7), log.UserID)
	assert.Equal(t, "Sari", log.UserName)
	assert.JSONEq(t, `{"name":"old"}`, log.BeforeData)
	assert.Equal(t, "null", log.AfterData)
}

func TestActorFromEmptyContext(t *testing.T) {
	assert.Equal(t, audit.Actor{}, audit.ActorFromContext(context.Background()))
}

func TestListAuditLogsFiltersAndPages(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	for i := uint(1); i <= 3; i++ {
		require.NoError(t, audit.WriteLog(ctx, db, audit.LogOptions{
			EntityType: audit.EntityConsignment, EntityID: i, Action: models.AuditActionCreate,
		}))
	}
	require.NoError(t, audit.WriteLog(ctx, db, audit.LogOptions{
		EntityType: audit.EntityProduct, EntityID: 1, Action: models.AuditActionDelete,
	}))

	app := fiber.New()
	app.Get("/audit-logs", audit.ListAuditLogsHandler(db, 2))

	resp, err := app.Test(httptest.NewRequest("GET", "/audit-logs?entity_type=consignment", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data []audit.AuditLogResponse `json:"data"`
		Meta struct {
			Total    int64 `json:"total"`
			LastPage int   `json:"last_page"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(3), body.Meta.Total)
	assert.Equal(t, 2, body.Meta.LastPage)
	require.Len(t, body.Data, 2)
	for _, l := range body.Data {
		assert.Equal(t, audit.EntityConsignment, l.EntityType)
	}
}
