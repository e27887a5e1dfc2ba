package apperr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"validation", Validationf("title too long"), Validation},
		{"not found", NotFoundf("task %s not found", "abc"), NotFound},
		{"conflict", Conflictf("email already registered"), Conflict},
		{"wrapped validation", fmt.Errorf("create task: %w", Validationf("bad priority")), Validation},
		{"deadline", context.DeadlineExceeded, Deadline},
		{"canceled", context.Canceled, Deadline},
		{"no rows", sql.ErrNoRows, NotFound},
		{"wrapped no rows", fmt.Errorf("get task: %w", sql.ErrNoRows), NotFound},
		{"plain error", errors.New("boom"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(Transient, "send email", errors.New("connection refused"))
	assert.Equal(t, "send email: connection refused", err.Error())
	assert.Equal(t, "connection refused", err.Unwrap().Error())

	bare := NotFoundf("task not found")
	assert.Equal(t, "task not found", bare.Error())
	require.Nil(t, bare.Unwrap())
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsValidation(Validationf("x")))
	assert.True(t, IsNotFound(NotFoundf("x")))
	assert.True(t, IsConflict(Conflictf("x")))
	assert.True(t, IsTransient(Transientf("x")))
	assert.True(t, IsPermanent(Permanentf("x")))
	assert.True(t, IsUnauthorized(Unauthorizedf("x")))
	assert.False(t, IsNotFound(Validationf("x")))
	assert.False(t, IsValidation(nil))
}
