package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	auditdomain "github.com/smallbiznis/coursedesk/internal/audit/domain"
	bulkdomain "github.com/smallbiznis/coursedesk/internal/bulkoperation/domain"
	"github.com/smallbiznis/coursedesk/internal/config"
	"github.com/smallbiznis/coursedesk/internal/observability/logger"
	"github.com/smallbiznis/coursedesk/internal/observability/metrics"
	"github.com/smallbiznis/coursedesk/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Subscriptions subscriptiondomain.Service
	Audit         auditdomain.Service
	Policy        *config.LedgerPolicyHolder
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	subscriptions subscriptiondomain.Service
	auditsvc      auditdomain.Service
	policy        *config.LedgerPolicyHolder
	metrics       *metrics.Metrics
}

func NewService(p Params) bulkdomain.Service {
	return &Service{
		log:           p.Log.Named("bulkoperation.service"),
		subscriptions: p.Subscriptions,
		auditsvc:      p.Audit,
		policy:        p.Policy,
		metrics:       p.Metrics,
	}
}

// itemFunc applies the decoded operation to one subscription id.
type itemFunc func(ctx context.Context, id string) error

// Apply implements domain.Service. Items run one after another in request order.
func (s *Service) Apply(ctx context.Context, req bulkdomain.BulkRequest, actor string) (result bulkdomain.BulkResult, err error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return bulkdomain.BulkResult{}, bulkdomain.ErrInvalidActor
	}
	if len(req.SubscriptionIDs) == 0 {
		return bulkdomain.BulkResult{}, bulkdomain.ErrEmptyIDs
	}
	if maxIDs := s.policy.Get().Bulk.MaxIDs; len(req.SubscriptionIDs) > maxIDs {
		return bulkdomain.BulkResult{}, bulkdomain.ErrTooManyIDs
	}
	operation, ok := bulkdomain.ParseOperation(strings.TrimSpace(req.Operation))
	if !ok {
		return bulkdomain.BulkResult{}, bulkdomain.ErrInvalidOperation
	}
	apply, err := s.prepare(operation, req.Payload, actor)
	if err != nil {
		return bulkdomain.BulkResult{}, err
	}

	ctx, span := tracing.Start(ctx, "coursedesk/bulkoperation", "bulk.apply",
		attribute.String("operation", string(operation)),
		attribute.Int("items", len(req.SubscriptionIDs)),
	)
	defer func() { tracing.End(span, err) }()

	log := logger.WithContext(ctx, s.log)
	result.Errors = []bulkdomain.ItemError{}
	for _, raw := range req.SubscriptionIDs {
		id := strings.TrimSpace(raw)

		itemErr := apply(ctx, id)
		var propErr *subscriptiondomain.PropagationError
		switch {
		case itemErr == nil:
			result.UpdatedCount++
			s.metrics.RecordBulkItem(ctx, string(operation), metrics.OutcomeSuccess)
		case errors.As(itemErr, &propErr):
			result.UpdatedCount++
			s.metrics.RecordBulkItem(ctx, string(operation), metrics.OutcomeSuccess)
			log.Warn("bulk item committed but status propagation failed",
				zap.String("subscription_id", id),
				zap.String("user_id", propErr.UserID.String()),
				zap.Error(propErr.Err),
			)
		default:
			result.FailedCount++
			result.Errors = append(result.Errors, bulkdomain.ItemError{ID: raw, Message: itemErr.Error()})
			s.metrics.RecordBulkItem(ctx, string(operation), itemOutcome(itemErr))
			log.Info("bulk item failed",
				zap.String("subscription_id", id),
				zap.String("operation", string(operation)),
				zap.Error(itemErr),
			)
		}
	}

	if s.auditsvc != nil {
		auditErr := s.auditsvc.AuditLog(ctx, string(auditdomain.ActorTypeStaff), &actor, "bulk.applied", "subscription", nil, map[string]any{
			"operation":     string(operation),
			"requested":     len(req.SubscriptionIDs),
			"updated_count": result.UpdatedCount,
			"failed_count":  result.FailedCount,
		})
		if auditErr != nil {
			log.Warn("bulk audit write failed", zap.Error(auditErr))
		}
	}

	log.Info("bulk operation applied",
		zap.String("operation", string(operation)),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}

// prepare decodes the payload once so malformed input fails before any item is touched.
func (s *Service) prepare(operation bulkdomain.Operation, payload json.RawMessage, actor string) (itemFunc, error) {
	switch operation {
	case bulkdomain.OperationMarkPaid:
		var req subscriptiondomain.MarkPaidRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, id string) error {
			_, err := s.subscriptions.MarkFullyPaid(ctx, id, req, actor)
			return err
		}, nil

	case bulkdomain.OperationSetPendingAmount:
		var req bulkdomain.SetPendingAmountPayload
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		if req.PendingAmount == nil {
			return nil, bulkdomain.ErrInvalidPayload
		}
		pending := *req.PendingAmount
		return func(ctx context.Context, id string) error {
			_, err := s.subscriptions.SetPendingAmountOverride(ctx, id, pending, actor)
			return err
		}, nil

	case bulkdomain.OperationAddPayment:
		var req subscriptiondomain.AddPaymentRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, id string) error {
			_, err := s.subscriptions.AddPayment(ctx, id, req, actor)
			return err
		}, nil

	case bulkdomain.OperationUpdate:
		var req subscriptiondomain.UpdateRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, id string) error {
			_, err := s.subscriptions.Update(ctx, id, req, actor)
			return err
		}, nil

	case bulkdomain.OperationDelete:
		return func(ctx context.Context, id string) error {
			return s.subscriptions.Delete(ctx, id, actor)
		}, nil
	}
	return nil, bulkdomain.ErrInvalidOperation
}

func decodePayload(payload json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bulkdomain.ErrInvalidPayload
	}
	return nil
}

func itemOutcome(err error) string {
	switch {
	case subscriptiondomain.IsNotFound(err):
		return metrics.OutcomeNotFound
	case subscriptiondomain.IsValidation(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeFailure
	}
}
