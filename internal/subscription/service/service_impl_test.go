package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/coursedesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/coursedesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/coursedesk/internal/audit/service"
	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/config"
	coursedomain "github.com/smallbiznis/coursedesk/internal/course/domain"
	courseservice "github.com/smallbiznis/coursedesk/internal/course/service"
	"github.com/smallbiznis/coursedesk/internal/lock"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"github.com/smallbiznis/coursedesk/internal/subscription/repository"
	userdomain "github.com/smallbiznis/coursedesk/internal/user/domain"
	userservice "github.com/smallbiznis/coursedesk/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	testUserID   = "100"
	testCourseID = "200"
	testActor    = "staff-1"
)

type recordingObserver struct {
	mu    sync.Mutex
	users []snowflake.ID
	err   error
}

func (o *recordingObserver) SubscriptionChanged(_ context.Context, userID snowflake.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.users = append(o.users, userID)
	return o.err
}

func (o *recordingObserver) calls() []snowflake.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]snowflake.ID(nil), o.users...)
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	observer *recordingObserver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&userdomain.User{},
		&coursedomain.Course{},
		&auditdomain.AuditLog{},
	))
	require.NoError(t, db.Create(&userdomain.User{ID: 100, Name: "Student", Email: "student@example.com", Role: userdomain.RoleStudent}).Error)
	require.NoError(t, db.Create(&coursedomain.Course{ID: 200, Name: "Algebra I"}).Error)

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	observer := &recordingObserver{}

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		Locker:  lock.NewMemoryLocker(),
		Policy:  config.NewStaticLedgerPolicyHolder(config.DefaultLedgerPolicy()),
		Users:   userservice.NewDirectory(userservice.Params{DB: db, Log: log}),
		Courses: courseservice.NewDirectory(courseservice.Params{DB: db, Log: log}),
		Audit: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Clock: clk,
			Repo:  auditrepository.Provide(),
		}),
		Observers: []subscriptiondomain.Observer{observer},
	}).(*Service)

	return &testEnv{svc: svc, db: db, clock: clk, observer: observer}
}

func (e *testEnv) create(t *testing.T, amount int64, start, end time.Time) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := e.svc.CreateOrRenew(context.Background(), subscriptiondomain.CreateOrRenewRequest{
		UserID:           testUserID,
		SubscriptionType: string(subscriptiondomain.SubscriptionTypeMonthly),
		Amount:           amount,
		StartDate:        &start,
		EndDate:          &end,
	}, testActor)
	require.NoError(t, err)
	return sub
}

func (e *testEnv) auditActions(t *testing.T, action string) []auditdomain.AuditLog {
	t.Helper()
	var logs []auditdomain.AuditLog
	require.NoError(t, e.db.Where("action = ?", action).Order("created_at asc").Find(&logs).Error)
	return logs
}

func assertLedgerConsistent(t *testing.T, sub subscriptiondomain.Subscription) {
	t.Helper()
	expected := max(sub.Amount-subscriptiondomain.TotalPaid(sub.PaymentHistory), 0)
	assert.Equal(t, expected, sub.PendingAmount)
	assert.Equal(t, sub.PendingAmount == 0, sub.PaymentStatus == subscriptiondomain.PaymentStatusPaid)
	assert.Equal(t, subscriptiondomain.PendingSourceLedger, sub.PendingSource)
}

func TestCreateOrRenew_NewSubscriptionUsesDefaultTerm(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Now()
	course := testCourseID

	sub, err := env.svc.CreateOrRenew(context.Background(), subscriptiondomain.CreateOrRenewRequest{
		UserID:           testUserID,
		SubscriptionType: "6-months",
		Amount:           6000,
		StartDate:        &start,
		CourseID:         &course,
	}, testActor)
	require.NoError(t, err)

	assert.True(t, sub.EndDate.Equal(start.AddDate(0, 6, 0)))
	assert.Equal(t, int64(6000), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPending, sub.PaymentStatus)
	assert.Empty(t, sub.PaymentHistory)
	require.NotNil(t, sub.CourseName)
	assert.Equal(t, "Algebra I", *sub.CourseName)
	assert.Nil(t, sub.LastPaymentDate)
	assert.Len(t, env.auditActions(t, "subscription.created"), 1)
	assert.Equal(t, []snowflake.ID{100}, env.observer.calls())

	stored, err := env.svc.Get(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)
	assertLedgerConsistent(t, stored)
}

func TestCreateOrRenew_InitialStatusPaid(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Now()

	sub, err := env.svc.CreateOrRenew(context.Background(), subscriptiondomain.CreateOrRenewRequest{
		UserID:           testUserID,
		SubscriptionType: "monthly",
		Amount:           1500,
		StartDate:        &start,
		InitialStatus:    "paid",
		PaymentMethod:    "online",
	}, testActor)
	require.NoError(t, err)

	require.Len(t, sub.PaymentHistory, 1)
	assert.Equal(t, int64(1500), sub.PaymentHistory[0].Amount)
	assert.Equal(t, subscriptiondomain.PaymentMethodOnline, sub.PaymentHistory[0].PaymentMethod)
	assert.Equal(t, testActor, sub.PaymentHistory[0].RecordedBy)
	assert.Equal(t, subscriptiondomain.PaymentStatusPaid, sub.PaymentStatus)
	require.NotNil(t, sub.LastPaymentDate)
	assert.True(t, sub.LastPaymentDate.Equal(env.clock.Now()))
}

func TestCreateOrRenew_RenewsOpenSubscriptionInPlace(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Now()
	first := env.create(t, 1000, start, start.AddDate(0, 1, 0))

	_, err := env.svc.AddPayment(context.Background(), first.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 400, PaymentMethod: "cash"}, testActor)
	require.NoError(t, err)

	nextStart := start.AddDate(0, 1, 0)
	nextEnd := nextStart.AddDate(0, 1, 0)
	renewed, err := env.svc.CreateOrRenew(context.Background(), subscriptiondomain.CreateOrRenewRequest{
		UserID:           testUserID,
		SubscriptionType: "monthly",
		Amount:           1200,
		StartDate:        &nextStart,
		EndDate:          &nextEnd,
	}, testActor)
	require.NoError(t, err)

	assert.Equal(t, first.ID, renewed.ID)
	assert.Equal(t, int64(1200), renewed.Amount)
	assert.Equal(t, int64(800), renewed.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPartial, renewed.PaymentStatus)
	require.Len(t, renewed.PaymentHistory, 1)
	require.Len(t, renewed.LedgerNotes, 1)
	assert.Equal(t, subscriptiondomain.LedgerNoteRenewed, renewed.LedgerNotes[0].Kind)
	assert.Len(t, env.auditActions(t, "subscription.renewed"), 1)

	all, err := env.svc.ListByUser(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateOrRenew_ExpiredAndSettledStartsNewRecord(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()
	old := env.create(t, 1000, now.AddDate(0, -2, 0), now.AddDate(0, -1, 0))
	_, err := env.svc.MarkFullyPaid(context.Background(), old.ID.String(), subscriptiondomain.MarkPaidRequest{}, testActor)
	require.NoError(t, err)

	fresh := env.create(t, 1000, now, now.AddDate(0, 1, 0))
	assert.NotEqual(t, old.ID, fresh.ID)

	all, err := env.svc.ListByUser(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateOrRenew_Validation(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Now()
	before := start.Add(-time.Hour)
	missingCourse := "999"

	base := func() subscriptiondomain.CreateOrRenewRequest {
		return subscriptiondomain.CreateOrRenewRequest{
			UserID:           testUserID,
			SubscriptionType: "monthly",
			Amount:           1000,
			StartDate:        &start,
		}
	}

	cases := []struct {
		name   string
		mutate func(*subscriptiondomain.CreateOrRenewRequest)
		actor  string
		want   error
	}{
		{name: "zero amount", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.Amount = 0 }, want: subscriptiondomain.ErrInvalidAmount},
		{name: "missing start", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.StartDate = nil }, want: subscriptiondomain.ErrInvalidStartDate},
		{name: "end before start", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.EndDate = &before }, want: subscriptiondomain.ErrInvalidEndDate},
		{name: "end equals start", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.EndDate = &start }, want: subscriptiondomain.ErrInvalidEndDate},
		{name: "unknown type", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.SubscriptionType = "weekly" }, want: subscriptiondomain.ErrInvalidSubscriptionType},
		{name: "bad initial status", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.InitialStatus = "overdue" }, want: subscriptiondomain.ErrInvalidInitialStatus},
		{name: "bad method", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.PaymentMethod = "crypto" }, want: subscriptiondomain.ErrInvalidPaymentMethod},
		{name: "malformed user", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.UserID = "abc" }, want: subscriptiondomain.ErrInvalidUser},
		{name: "unknown user", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.UserID = "101" }, want: subscriptiondomain.ErrUserNotFound},
		{name: "unknown course", mutate: func(r *subscriptiondomain.CreateOrRenewRequest) { r.CourseID = &missingCourse }, want: subscriptiondomain.ErrCourseNotFound},
		{name: "missing actor", actor: " ", want: subscriptiondomain.ErrInvalidActor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			actor := testActor
			if tc.actor != "" {
				actor = tc.actor
			}
			_, err := env.svc.CreateOrRenew(context.Background(), req, actor)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAddPayment_PartialThenSettled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	sub, err := env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 400, PaymentMethod: "cash"}, testActor)
	require.NoError(t, err)
	assert.Equal(t, int64(600), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPartial, sub.PaymentStatus)
	assert.Nil(t, sub.LastPaymentDate)

	env.clock.Advance(48 * time.Hour)
	ref := "TX-0001-9999"
	sub, err = env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 600, PaymentMethod: "bank-transfer", TransactionID: &ref}, testActor)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPaid, sub.PaymentStatus)
	require.Len(t, sub.PaymentHistory, 2)
	require.NotNil(t, sub.LastPaymentDate)
	assert.True(t, sub.LastPaymentDate.Equal(sub.PaymentHistory[1].PaymentDate))
	assert.True(t, sub.PaymentHistory[1].PaymentDate.Equal(env.clock.Now()))

	logs := env.auditActions(t, "subscription.payment_added")
	require.Len(t, logs, 2)
	assert.Equal(t, "****9999", logs[1].Metadata["transaction_id"])

	stored, err := env.svc.Get(ctx, sub.ID.String())
	require.NoError(t, err)
	assertLedgerConsistent(t, stored)
	require.NotNil(t, stored.LastPaymentDate)
}

func TestAddPayment_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	_, err := env.svc.AddPayment(ctx, "12345", subscriptiondomain.AddPaymentRequest{Amount: 10, PaymentMethod: "cash"}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = env.svc.AddPayment(ctx, "nope", subscriptiondomain.AddPaymentRequest{Amount: 10, PaymentMethod: "cash"}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidID)

	_, err = env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 0, PaymentMethod: "cash"}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidAmount)

	_, err = env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 10, PaymentMethod: "barter"}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPaymentMethod)

	history, err := env.svc.ListPaymentHistory(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Empty(t, history.Entries)
	assert.Equal(t, int64(1000), history.PendingAmount)
}

func TestStatusBoundaryAroundEndDate(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()

	lapsed := env.create(t, 1000, now.AddDate(0, -1, 0), now.Add(-24*time.Hour))
	assert.Equal(t, subscriptiondomain.PaymentStatusOverdue, lapsed.PaymentStatus)

	_, err := env.svc.CreateOrRenew(context.Background(), subscriptiondomain.CreateOrRenewRequest{
		UserID:           testUserID,
		SubscriptionType: "yearly",
		Amount:           1000,
		StartDate:        &now,
		EndDate:          ptrTime(now.Add(24 * time.Hour)),
	}, testActor)
	require.NoError(t, err)

	all, err := env.svc.ListByUser(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, subscriptiondomain.PaymentStatusPending, all[1].PaymentStatus)
}

func TestMarkFullyPaid_AppendsShortfallOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 500, now, now.AddDate(0, 1, 0))

	_, err := env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 200, PaymentMethod: "cash"}, testActor)
	require.NoError(t, err)

	sub, err = env.svc.MarkFullyPaid(ctx, sub.ID.String(), subscriptiondomain.MarkPaidRequest{PaymentMethod: "cheque"}, testActor)
	require.NoError(t, err)
	require.Len(t, sub.PaymentHistory, 2)
	assert.Equal(t, int64(300), sub.PaymentHistory[1].Amount)
	assert.Equal(t, subscriptiondomain.PaymentMethodCheque, sub.PaymentHistory[1].PaymentMethod)
	assert.Equal(t, subscriptiondomain.PaymentStatusPaid, sub.PaymentStatus)

	sub, err = env.svc.MarkFullyPaid(ctx, sub.ID.String(), subscriptiondomain.MarkPaidRequest{}, testActor)
	require.NoError(t, err)
	assert.Len(t, sub.PaymentHistory, 2)
	assertLedgerConsistent(t, sub)
}

func TestDeletePaymentEntry_ReopensBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now.AddDate(0, -1, 0), now.Add(-time.Hour))

	paidAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sub, err := env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 1000, PaymentMethod: "cash", PaymentDate: &paidAt}, testActor)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.PaymentStatusPaid, sub.PaymentStatus)
	entryID := sub.PaymentHistory[0].ID

	sub, err = env.svc.DeletePaymentEntry(ctx, sub.ID.String(), entryID.String(), testActor)
	require.NoError(t, err)
	assert.Empty(t, sub.PaymentHistory)
	assert.Equal(t, int64(1000), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusOverdue, sub.PaymentStatus)
	require.NotNil(t, sub.LastPaymentDate)
	require.Len(t, sub.LedgerNotes, 1)
	assert.Equal(t, subscriptiondomain.LedgerNotePaymentDeleted, sub.LedgerNotes[0].Kind)
	assert.Equal(t, "removed payment of 1000 dated 2026-03-01 (entry "+entryID.String()+")", sub.LedgerNotes[0].Message)

	_, err = env.svc.DeletePaymentEntry(ctx, sub.ID.String(), entryID.String(), testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrPaymentEntryNotFound)
}

func TestEditPaymentEntry_KeepsIDAndReconciles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	sub, err := env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 300, PaymentMethod: "cash"}, testActor)
	require.NoError(t, err)
	sub, err = env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 300, PaymentMethod: "cash"}, testActor)
	require.NoError(t, err)
	first := sub.PaymentHistory[0].ID

	amount := int64(700)
	method := "online"
	sub, err = env.svc.EditPaymentEntry(ctx, sub.ID.String(), first.String(), subscriptiondomain.EditPaymentRequest{Amount: &amount, PaymentMethod: &method}, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, first, sub.PaymentHistory[0].ID)
	assert.Equal(t, int64(700), sub.PaymentHistory[0].Amount)
	assert.Equal(t, subscriptiondomain.PaymentMethodOnline, sub.PaymentHistory[0].PaymentMethod)
	require.NotNil(t, sub.PaymentHistory[0].UpdatedBy)
	assert.Equal(t, "staff-2", *sub.PaymentHistory[0].UpdatedBy)
	assert.Equal(t, int64(0), sub.PendingAmount)
	assertLedgerConsistent(t, sub)

	amount = 100
	sub, err = env.svc.EditPaymentEntry(ctx, sub.ID.String(), first.String(), subscriptiondomain.EditPaymentRequest{Amount: &amount}, testActor)
	require.NoError(t, err)
	assert.Equal(t, int64(600), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPartial, sub.PaymentStatus)
	assertLedgerConsistent(t, sub)

	_, err = env.svc.EditPaymentEntry(ctx, sub.ID.String(), "777", subscriptiondomain.EditPaymentRequest{Amount: &amount}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrPaymentEntryNotFound)

	zero := int64(0)
	_, err = env.svc.EditPaymentEntry(ctx, sub.ID.String(), first.String(), subscriptiondomain.EditPaymentRequest{Amount: &zero}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidAmount)
}

func TestSetPendingAmountOverride_TagsAndResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	_, err := env.svc.SetPendingAmountOverride(ctx, sub.ID.String(), 1001, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPendingAmount)
	_, err = env.svc.SetPendingAmountOverride(ctx, sub.ID.String(), -1, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPendingAmount)

	sub, err = env.svc.SetPendingAmountOverride(ctx, sub.ID.String(), 250, testActor)
	require.NoError(t, err)
	assert.Equal(t, int64(250), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPartial, sub.PaymentStatus)
	assert.Equal(t, subscriptiondomain.PendingSourceManualOverride, sub.PendingSource)
	require.Len(t, sub.LedgerNotes, 1)
	assert.Equal(t, subscriptiondomain.LedgerNoteManualOverride, sub.LedgerNotes[0].Kind)

	logs := env.auditActions(t, "subscription.pending_amount_overridden")
	require.Len(t, logs, 1)
	assert.Equal(t, true, logs[0].Metadata["authoritative_override"])

	sub, err = env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 100, PaymentMethod: "cash"}, testActor)
	require.NoError(t, err)
	assert.Equal(t, int64(900), sub.PendingAmount)
	assertLedgerConsistent(t, sub)
}

func TestSetPendingAmountOverride_StatusByAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	lapsed := env.create(t, 1000, now.AddDate(0, -1, 0), now.Add(-time.Hour))

	sub, err := env.svc.SetPendingAmountOverride(ctx, lapsed.ID.String(), 1000, testActor)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.PaymentStatusOverdue, sub.PaymentStatus)

	sub, err = env.svc.SetPendingAmountOverride(ctx, lapsed.ID.String(), 0, testActor)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.PaymentStatusPaid, sub.PaymentStatus)
	require.NotNil(t, sub.LastPaymentDate)

	sub, err = env.svc.Reconcile(ctx, lapsed.ID.String(), testActor)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.PaymentStatusOverdue, sub.PaymentStatus)
	assertLedgerConsistent(t, sub)
}

func TestUpdate_ChangesTermAndReconciles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now.AddDate(0, -1, 0), now.Add(-time.Hour))
	require.Equal(t, subscriptiondomain.PaymentStatusOverdue, sub.PaymentStatus)

	end := now.AddDate(0, 1, 0)
	amount := int64(800)
	level := "grade-9"
	course := testCourseID
	sub, err := env.svc.Update(ctx, sub.ID.String(), subscriptiondomain.UpdateRequest{
		Amount:     &amount,
		EndDate:    &end,
		ClassLevel: &level,
		CourseID:   &course,
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, int64(800), sub.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPending, sub.PaymentStatus)
	require.NotNil(t, sub.ClassLevel)
	assert.Equal(t, "grade-9", *sub.ClassLevel)
	require.NotNil(t, sub.CourseName)
	assert.Equal(t, "Algebra I", *sub.CourseName)

	past := now.AddDate(0, -2, 0)
	_, err = env.svc.Update(ctx, sub.ID.String(), subscriptiondomain.UpdateRequest{EndDate: &past}, testActor)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidEndDate)

	stored, err := env.svc.Get(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(800), stored.Amount)
}

func TestDelete_RemovesRowAndAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	require.NoError(t, env.svc.Delete(ctx, sub.ID.String(), testActor))

	_, err := env.svc.Get(ctx, sub.ID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	logs := env.auditActions(t, "subscription.deleted")
	require.Len(t, logs, 1)
	assert.Equal(t, testUserID, logs[0].Metadata["user_id"])
	assert.Len(t, env.observer.calls(), 2)

	assert.ErrorIs(t, env.svc.Delete(ctx, sub.ID.String(), testActor), subscriptiondomain.ErrSubscriptionNotFound)
}

func TestPropagationFailureKeepsCommittedMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	env.observer.err = errors.New("directory unavailable")
	updated, err := env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{Amount: 1000, PaymentMethod: "cash"}, testActor)

	var propErr *subscriptiondomain.PropagationError
	require.ErrorAs(t, err, &propErr)
	assert.Equal(t, sub.UserID, propErr.UserID)
	assert.Equal(t, subscriptiondomain.PaymentStatusPaid, updated.PaymentStatus)

	stored, err := env.svc.Get(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.PendingAmount)
}

func TestConcurrentAddPaymentsKeepLedgerConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 1000, now, now.AddDate(0, 1, 0))

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.AddPayment(ctx, sub.ID.String(), subscriptiondomain.AddPaymentRequest{
				Amount:        100,
				PaymentMethod: "cash",
			}, "staff-"+strconv.Itoa(i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	stored, err := env.svc.Get(ctx, sub.ID.String())
	require.NoError(t, err)
	assert.Len(t, stored.PaymentHistory, workers)
	assert.Equal(t, int64(0), stored.PendingAmount)
	assert.Equal(t, subscriptiondomain.PaymentStatusPaid, stored.PaymentStatus)
	assertLedgerConsistent(t, stored)
}

func TestLedgerRoundTripAcrossMutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	sub := env.create(t, 900, now, now.AddDate(0, 1, 0))
	id := sub.ID.String()

	steps := []func() (subscriptiondomain.Subscription, error){
		func() (subscriptiondomain.Subscription, error) {
			return env.svc.AddPayment(ctx, id, subscriptiondomain.AddPaymentRequest{Amount: 500, PaymentMethod: "cash"}, testActor)
		},
		func() (subscriptiondomain.Subscription, error) {
			return env.svc.AddPayment(ctx, id, subscriptiondomain.AddPaymentRequest{Amount: 700, PaymentMethod: "online"}, testActor)
		},
		func() (subscriptiondomain.Subscription, error) {
			current, err := env.svc.Get(ctx, id)
			if err != nil {
				return current, err
			}
			return env.svc.DeletePaymentEntry(ctx, id, current.PaymentHistory[1].ID.String(), testActor)
		},
		func() (subscriptiondomain.Subscription, error) {
			current, err := env.svc.Get(ctx, id)
			if err != nil {
				return current, err
			}
			amount := int64(50)
			return env.svc.EditPaymentEntry(ctx, id, current.PaymentHistory[0].ID.String(), subscriptiondomain.EditPaymentRequest{Amount: &amount}, testActor)
		},
		func() (subscriptiondomain.Subscription, error) {
			return env.svc.MarkFullyPaid(ctx, id, subscriptiondomain.MarkPaidRequest{}, testActor)
		},
	}

	for i, step := range steps {
		got, err := step()
		require.NoError(t, err, "step %d", i)
		assertLedgerConsistent(t, got)

		stored, err := env.svc.Get(ctx, id)
		require.NoError(t, err)
		assertLedgerConsistent(t, stored)
		assert.Equal(t, got.PendingAmount, stored.PendingAmount)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
