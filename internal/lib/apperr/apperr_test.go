package apperr

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestMarksSurviveWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		msg   string
	}{
		{
			name:  "validation",
			err:   Validation("limit must be between %d and %d", 1, 100),
			check: IsValidation,
			msg:   "limit must be between 1 and 100",
		},
		{
			name:  "not found",
			err:   NotFound("plan not found"),
			check: IsNotFound,
			msg:   "plan not found",
		},
		{
			name:  "conflict",
			err:   Conflict("user already has an active subscription"),
			check: IsConflict,
			msg:   "user already has an active subscription",
		},
		{
			name:  "unauthorized",
			err:   Unauthorized("invalid webhook signature"),
			check: IsUnauthorized,
			msg:   "invalid webhook signature",
		},
		{
			name:  "forbidden",
			err:   Forbidden("admin role required"),
			check: IsForbidden,
			msg:   "admin role required",
		},
		{
			name:  "gateway",
			err:   Gateway(errors.New("BAD_REQUEST_ERROR: amount exceeds maximum")),
			check: IsGateway,
			msg:   "BAD_REQUEST_ERROR: amount exceeds maximum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("%s: %w", "subscription.Subscribe", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.msg, Message(wrapped))
		})
	}
}

func TestExpiredCycleIsValidation(t *testing.T) {
	err := fmt.Errorf("proration.Prorate: %w", ExpiredCycle())

	assert.True(t, IsExpiredCycle(err))
	assert.True(t, IsValidation(err))
	assert.False(t, IsConflict(err))
}

func TestPlainErrorHasNoClass(t *testing.T) {
	err := errors.New("connection refused")

	assert.False(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsGateway(err))
	assert.Nil(t, Gateway(nil))
	assert.Equal(t, "", Message(nil))
}
