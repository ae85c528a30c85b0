package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/coursedesk/internal/audit/domain"
	"github.com/smallbiznis/coursedesk/internal/audit/repository"
	"github.com/smallbiznis/coursedesk/internal/clock"
	obscontext "github.com/smallbiznis/coursedesk/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, db, clk
}

func TestAuditLog_ResolvesActorAndMasksReferences(t *testing.T) {
	svc, db, _ := newTestService(t)

	ctx := obscontext.WithActor(context.Background(), obscontext.Actor{ID: "staff-9", Role: "staff"})
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "curl/8")
	target := "42"

	err := svc.AuditLog(ctx, "", nil, "subscription.payment_added", "subscription", &target, map[string]any{
		"amount":         300,
		"transaction_id": "TX-99887766",
	})
	require.NoError(t, err)

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "staff", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "staff-9", *stored.ActorID)
	assert.Equal(t, "****7766", stored.Metadata["transaction_id"])
	assert.Equal(t, "req-1", stored.Metadata["request_id"])
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.1", *stored.IPAddress)
}

func TestAuditLog_SystemActorAndEmptyAction(t *testing.T) {
	svc, db, _ := newTestService(t)

	assert.ErrorIs(t, svc.AuditLog(context.Background(), "", nil, " ", "subscription", nil, nil), auditdomain.ErrInvalidAction)

	require.NoError(t, svc.AuditLog(context.Background(), "", nil, "user.status_recomputed", "", nil, nil))
	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "system", stored.ActorType)
	assert.Equal(t, "unknown", stored.TargetType)
	assert.Nil(t, stored.ActorID)
}

func TestList_PagesNewestFirst(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, "staff", nil, "subscription.created", "subscription", nil, map[string]any{"n": i}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	seen := map[snowflake.ID]bool{}
	for _, log := range first.AuditLogs {
		seen[log.ID] = true
	}

	token := first.NextPageToken
	for token != "" {
		page, err := svc.List(ctx, auditdomain.ListAuditLogRequest{PageSize: 2, PageToken: token})
		require.NoError(t, err)
		for _, log := range page.AuditLogs {
			assert.False(t, seen[log.ID])
			seen[log.ID] = true
		}
		token = page.NextPageToken
	}
	assert.Len(t, seen, 5)
}

func TestList_RejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
