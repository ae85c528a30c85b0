package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/coursedesk/internal/audit/domain"
	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/config"
	coursedomain "github.com/smallbiznis/coursedesk/internal/course/domain"
	"github.com/smallbiznis/coursedesk/internal/lock"
	"github.com/smallbiznis/coursedesk/internal/observability/logger"
	"github.com/smallbiznis/coursedesk/internal/observability/metrics"
	"github.com/smallbiznis/coursedesk/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	userdomain "github.com/smallbiznis/coursedesk/internal/user/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "coursedesk/subscription"

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	repo      subscriptiondomain.Repository
	locker    lock.Locker
	policy    *config.LedgerPolicyHolder
	users     userdomain.Directory
	courses   coursedomain.Directory
	auditsvc  auditdomain.Service
	metrics   *metrics.Metrics
	observers []subscriptiondomain.Observer
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Locker  lock.Locker
	Policy  *config.LedgerPolicyHolder
	Users   userdomain.Directory
	Courses coursedomain.Directory
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`

	Observers []subscriptiondomain.Observer `group:"subscription.observers"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locker:    p.Locker,
		policy:    p.Policy,
		users:     p.Users,
		courses:   p.Courses,
		auditsvc:  p.Audit,
		metrics:   p.Metrics,
		observers: p.Observers,
	}
}

// change describes the committed effect of one mutation, for the audit trail.
type change struct {
	action   string
	metadata map[string]any
}

// mutateFunc edits a locked subscription in place inside the transaction.
type mutateFunc func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error)

// CreateOrRenew implements domain.Service.
func (s *Service) CreateOrRenew(ctx context.Context, req subscriptiondomain.CreateOrRenewRequest, actor string) (result subscriptiondomain.Subscription, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "subscription.create_or_renew")
	defer func() { tracing.End(span, err) }()
	defer func() { s.metrics.RecordLedgerMutation(ctx, "create_or_renew", outcomeOf(err)) }()

	actor, err = normalizeActor(actor)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	userID, err := parseID(req.UserID, subscriptiondomain.ErrInvalidUser)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if req.Amount <= 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}
	subType, ok := subscriptiondomain.ParseSubscriptionType(strings.TrimSpace(req.SubscriptionType))
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscriptionType
	}
	if req.StartDate == nil || req.StartDate.IsZero() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStartDate
	}
	policy := s.policy.Get()
	start := req.StartDate.UTC()
	end, err := resolveEndDate(policy, subType, start, req.EndDate)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	initialStatus := strings.TrimSpace(req.InitialStatus)
	if initialStatus != "" &&
		initialStatus != string(subscriptiondomain.PaymentStatusPending) &&
		initialStatus != string(subscriptiondomain.PaymentStatusPaid) {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidInitialStatus
	}
	method, err := resolveMethod(policy, req.PaymentMethod)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrUserNotFound
		}
		return subscriptiondomain.Subscription{}, err
	}
	courseID, courseName, err := s.resolveCourse(ctx, req.CourseID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var (
		sub     subscriptiondomain.Subscription
		renewed bool
	)
	key := fmt.Sprintf("subscription:user:%s:%s", userID, subType)
	err = s.withLock(ctx, key, func() error {
		now := s.clock.Now()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := s.repo.FindOpenForUpdate(ctx, tx, userID, subType, now)
			if err != nil {
				return fmt.Errorf("find open subscription: %w", err)
			}

			if existing == nil {
				sub = subscriptiondomain.Subscription{
					ID:               s.genID.Generate(),
					UserID:           userID,
					SubscriptionType: subType,
					PendingAmount:    req.Amount,
					PendingSource:    subscriptiondomain.PendingSourceLedger,
					PaymentHistory:   []subscriptiondomain.PaymentEntry{},
					LedgerNotes:      []subscriptiondomain.LedgerNote{},
					CreatedBy:        actor,
					CreatedAt:        now,
				}
			} else {
				sub = *existing
				renewed = true
				sub.LedgerNotes = append(sub.LedgerNotes, subscriptiondomain.LedgerNote{
					At:    now,
					Actor: actor,
					Kind:  subscriptiondomain.LedgerNoteRenewed,
					Message: fmt.Sprintf("renewed from %s..%s (amount %d) to %s..%s (amount %d)",
						formatDate(existing.StartDate), formatDate(existing.EndDate), existing.Amount,
						formatDate(start), formatDate(end), req.Amount),
				})
			}

			previousPending := sub.PendingAmount
			sub.Amount = req.Amount
			sub.StartDate = start
			sub.EndDate = end
			sub.CourseID = courseID
			sub.CourseName = courseName
			sub.ClassLevel = normalizeOptional(req.ClassLevel)
			sub.Subject = normalizeOptional(req.Subject)
			if req.Metadata != nil {
				sub.Metadata = req.Metadata
			}

			if initialStatus == string(subscriptiondomain.PaymentStatusPaid) {
				if shortfall := sub.Amount - subscriptiondomain.TotalPaid(sub.PaymentHistory); shortfall > 0 {
					sub.PaymentHistory = append(sub.PaymentHistory, s.newEntry(shortfall, method, nil, nil, now, actor))
				}
			}

			applyReconcile(&sub, previousPending, now)
			sub.UpdatedBy = actor
			sub.UpdatedAt = now

			if renewed {
				return s.repo.Save(ctx, tx, &sub)
			}
			return s.repo.Insert(ctx, tx, &sub)
		})
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	action := "subscription.created"
	if renewed {
		action = "subscription.renewed"
	}
	s.writeAudit(ctx, actor, sub.ID, change{
		action: action,
		metadata: map[string]any{
			"user_id":           sub.UserID.String(),
			"subscription_type": string(sub.SubscriptionType),
			"amount":            sub.Amount,
			"pending_amount":    sub.PendingAmount,
			"payment_status":    string(sub.PaymentStatus),
		},
	})
	return sub, s.notify(ctx, sub.UserID)
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subscriptionID, err := parseID(id, subscriptiondomain.ErrInvalidID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

// ListByUser implements domain.Service.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]subscriptiondomain.Subscription, error) {
	parsed, err := parseID(userID, subscriptiondomain.ErrInvalidUser)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListByUserID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []subscriptiondomain.Subscription{}
	}
	return items, nil
}

// Update implements domain.Service.
func (s *Service) Update(ctx context.Context, id string, req subscriptiondomain.UpdateRequest, actor string) (subscriptiondomain.Subscription, error) {
	if req.Amount != nil && *req.Amount <= 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}
	if req.StartDate != nil && req.StartDate.IsZero() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStartDate
	}

	var (
		courseChanged bool
		courseID      *snowflake.ID
		courseName    *string
	)
	if req.CourseID != nil {
		var err error
		courseChanged = true
		courseID, courseName, err = s.resolveCourse(ctx, req.CourseID)
		if err != nil {
			return subscriptiondomain.Subscription{}, err
		}
	}

	return s.mutate(ctx, "update", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		fields := []string{}
		if req.Amount != nil {
			sub.Amount = *req.Amount
			fields = append(fields, "amount")
		}
		if req.StartDate != nil {
			sub.StartDate = req.StartDate.UTC()
			fields = append(fields, "start_date")
		}
		if req.EndDate != nil {
			sub.EndDate = req.EndDate.UTC()
			fields = append(fields, "end_date")
		}
		if !sub.EndDate.After(sub.StartDate) {
			return change{}, subscriptiondomain.ErrInvalidEndDate
		}
		if courseChanged {
			sub.CourseID = courseID
			sub.CourseName = courseName
			fields = append(fields, "course_id")
		}
		if req.ClassLevel != nil {
			sub.ClassLevel = normalizeOptional(req.ClassLevel)
			fields = append(fields, "class_level")
		}
		if req.Subject != nil {
			sub.Subject = normalizeOptional(req.Subject)
			fields = append(fields, "subject")
		}

		applyReconcile(sub, sub.PendingAmount, now)
		return change{
			action:   "subscription.updated",
			metadata: map[string]any{"fields": fields, "amount": sub.Amount, "pending_amount": sub.PendingAmount},
		}, nil
	})
}

// Delete implements domain.Service. The row is removed outright; the audit entry keeps its summary.
func (s *Service) Delete(ctx context.Context, id string, actor string) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, "subscription.delete")
	defer func() { tracing.End(span, err) }()
	defer func() { s.metrics.RecordLedgerMutation(ctx, "delete", outcomeOf(err)) }()

	actor, err = normalizeActor(actor)
	if err != nil {
		return err
	}
	subscriptionID, err := parseID(id, subscriptiondomain.ErrInvalidID)
	if err != nil {
		return err
	}

	var deleted subscriptiondomain.Subscription
	err = s.withLock(ctx, lockKey(subscriptionID), func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
			if err != nil {
				return fmt.Errorf("load subscription: %w", err)
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}
			deleted = *sub
			return s.repo.Delete(ctx, tx, subscriptionID)
		})
	})
	if err != nil {
		return err
	}

	s.writeAudit(ctx, actor, deleted.ID, change{
		action: "subscription.deleted",
		metadata: map[string]any{
			"user_id":           deleted.UserID.String(),
			"subscription_type": string(deleted.SubscriptionType),
			"amount":            deleted.Amount,
			"pending_amount":    deleted.PendingAmount,
			"total_paid":        subscriptiondomain.TotalPaid(deleted.PaymentHistory),
			"payment_count":     len(deleted.PaymentHistory),
			"start_date":        formatDate(deleted.StartDate),
			"end_date":          formatDate(deleted.EndDate),
		},
	})
	return s.notify(ctx, deleted.UserID)
}

// Reconcile implements domain.Service. It re-derives the cached state from the stored history.
func (s *Service) Reconcile(ctx context.Context, id string, actor string) (subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, "reconcile", id, actor, func(tx *gorm.DB, sub *subscriptiondomain.Subscription, now time.Time, actor string) (change, error) {
		before := sub.PendingAmount
		source := sub.PendingSource
		applyReconcile(sub, before, now)
		return change{
			action: "subscription.reconciled",
			metadata: map[string]any{
				"previous_pending":        before,
				"previous_pending_source": string(source),
				"pending_amount":          sub.PendingAmount,
			},
		}, nil
	})
}

// mutate runs fn against the locked row and handles persistence, audit and propagation.
func (s *Service) mutate(ctx context.Context, operation string, id string, actor string, fn mutateFunc) (result subscriptiondomain.Subscription, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "subscription."+operation,
		attribute.String("subscription.id", strings.TrimSpace(id)),
	)
	defer func() { tracing.End(span, err) }()
	defer func() { s.metrics.RecordLedgerMutation(ctx, operation, outcomeOf(err)) }()

	actor, err = normalizeActor(actor)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	subscriptionID, err := parseID(id, subscriptiondomain.ErrInvalidID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var (
		sub     subscriptiondomain.Subscription
		applied change
	)
	err = s.withLock(ctx, lockKey(subscriptionID), func() error {
		now := s.clock.Now()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			loaded, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
			if err != nil {
				return fmt.Errorf("load subscription: %w", err)
			}
			if loaded == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}

			applied, err = fn(tx, loaded, now, actor)
			if err != nil {
				return err
			}
			loaded.UpdatedBy = actor
			loaded.UpdatedAt = now
			if err := s.repo.Save(ctx, tx, loaded); err != nil {
				return fmt.Errorf("save subscription: %w", err)
			}
			sub = *loaded
			return nil
		})
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.writeAudit(ctx, actor, sub.ID, applied)
	return sub, s.notify(ctx, sub.UserID)
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer release()
	return fn()
}

func (s *Service) writeAudit(ctx context.Context, actor string, id snowflake.ID, c change) {
	if s.auditsvc == nil || c.action == "" {
		return
	}
	target := id.String()
	if err := s.auditsvc.AuditLog(ctx, string(auditdomain.ActorTypeStaff), &actor, c.action, "subscription", &target, c.metadata); err != nil {
		logger.WithContext(ctx, s.log).Warn("audit write failed after commit",
			zap.String("action", c.action),
			zap.String("subscription_id", target),
			zap.Error(err),
		)
	}
}

// notify runs every post-commit observer; failures are joined into one PropagationError.
func (s *Service) notify(ctx context.Context, userID snowflake.ID) error {
	var errs []error
	for _, observer := range s.observers {
		if observer == nil {
			continue
		}
		if err := observer.SubscriptionChanged(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	err := &subscriptiondomain.PropagationError{UserID: userID, Err: errors.Join(errs...)}
	logger.WithContext(ctx, s.log).Warn("post-commit propagation failed",
		zap.String("user_id", userID.String()),
		zap.Error(err.Err),
	)
	return err
}

func (s *Service) resolveCourse(ctx context.Context, raw *string) (*snowflake.ID, *string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil, nil
	}
	id, err := parseID(*raw, subscriptiondomain.ErrInvalidCourse)
	if err != nil {
		return nil, nil, err
	}
	course, err := s.courses.GetCourse(ctx, id)
	if err != nil {
		if errors.Is(err, coursedomain.ErrCourseNotFound) {
			return nil, nil, subscriptiondomain.ErrCourseNotFound
		}
		return nil, nil, err
	}
	name := course.Name
	return &id, &name, nil
}

func (s *Service) newEntry(amount int64, method subscriptiondomain.PaymentMethod, transactionID, notes *string, at time.Time, actor string) subscriptiondomain.PaymentEntry {
	return subscriptiondomain.PaymentEntry{
		ID:            s.genID.Generate(),
		Amount:        amount,
		PaymentDate:   at,
		PaymentMethod: method,
		TransactionID: normalizeOptional(transactionID),
		RecordedBy:    actor,
		Notes:         normalizeOptional(notes),
	}
}

// applyReconcile overwrites the cached fields with what the ledger implies and clears any override.
func applyReconcile(sub *subscriptiondomain.Subscription, previousPending int64, now time.Time) {
	res := subscriptiondomain.Reconcile(subscriptiondomain.ReconcileInput{
		Amount:          sub.Amount,
		History:         sub.PaymentHistory,
		EndDate:         sub.EndDate,
		Now:             now,
		PreviousPending: previousPending,
		LastPaymentDate: sub.LastPaymentDate,
	})
	sub.PendingAmount = res.PendingAmount
	sub.PaymentStatus = res.PaymentStatus
	sub.LastPaymentDate = res.LastPaymentDate
	sub.PendingSource = subscriptiondomain.PendingSourceLedger
}

func resolveEndDate(policy config.LedgerPolicy, subType subscriptiondomain.SubscriptionType, start time.Time, requested *time.Time) (time.Time, error) {
	if requested != nil && !requested.IsZero() {
		end := requested.UTC()
		if !end.After(start) {
			return time.Time{}, subscriptiondomain.ErrInvalidEndDate
		}
		return end, nil
	}
	months, ok := policy.TermMonthsFor(string(subType))
	if !ok {
		return time.Time{}, subscriptiondomain.ErrInvalidSubscriptionType
	}
	return subscriptiondomain.DefaultEndDate(start, months), nil
}

func resolveMethod(policy config.LedgerPolicy, raw string) (subscriptiondomain.PaymentMethod, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = policy.Payments.DefaultMethod
	}
	method, ok := subscriptiondomain.ParsePaymentMethod(strings.ToLower(raw))
	if !ok {
		return "", subscriptiondomain.ErrInvalidPaymentMethod
	}
	return method, nil
}

func lockKey(id snowflake.ID) string {
	return "subscription:" + id.String()
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func normalizeActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", subscriptiondomain.ErrInvalidActor
	}
	return actor, nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// outcomeOf maps an operation error to a metric outcome. A PropagationError still means the ledger committed.
func outcomeOf(err error) string {
	var propErr *subscriptiondomain.PropagationError
	switch {
	case err == nil, errors.As(err, &propErr):
		return metrics.OutcomeSuccess
	case subscriptiondomain.IsNotFound(err):
		return metrics.OutcomeNotFound
	case subscriptiondomain.IsValidation(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeFailure
	}
}
