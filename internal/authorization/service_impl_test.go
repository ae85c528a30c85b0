package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestAuthorize_RoleMatrix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{"admin", ObjectBulk, ActionApply, true},
		{"admin", ObjectSubscription, ActionDelete, true},
		{"staff", ObjectSubscription, ActionView, true},
		{"staff", ObjectPayment, ActionCreate, true},
		{"staff", ObjectSubscription, ActionMarkPaid, true},
		{"staff", ObjectSubscription, ActionOverride, false},
		{"staff", ObjectPayment, ActionDelete, false},
		{"staff", ObjectBulk, ActionApply, false},
		{"student", ObjectSubscription, ActionView, false},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.object+"/"+tc.action, func(t *testing.T) {
			err := svc.Authorize(ctx, "7", tc.role, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorize_RoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "8", "admin", ObjectBulk, ActionApply))
	assert.ErrorIs(t, svc.Authorize(ctx, "8", "staff", ObjectBulk, ActionApply), ErrForbidden)
}

func TestAuthorize_InvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", "admin", ObjectBulk, ActionApply), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "1", "admin", "", ActionApply), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "1", "admin", ObjectBulk, ""), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, "1", "", ObjectBulk, ActionApply), ErrForbidden)
}
