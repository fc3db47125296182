package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"wrapped cancel", fmt.Errorf("query: %w", context.Canceled), KindTransient},
		{"gorm duplicate", gorm.ErrDuplicatedKey, KindConflict},
		{"gorm foreign key", gorm.ErrForeignKeyViolated, KindValidation},
		{"pg unique", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"pg foreign key", &pgconn.PgError{Code: "23503"}, KindValidation},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, KindTransient},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, KindTransient},
		{"pg query canceled", &pgconn.PgError{Code: "57014"}, KindTransient},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, KindTransient},
		{"pg syntax", &pgconn.PgError{Code: "42601"}, KindInternal},
		{"unknown", errors.New("boom"), KindInternal},
		{"typed passes through", NotFoundError("missing"), KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStoreError("op", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestClassifyStoreErrorHidesCause(t *testing.T) {
	err := classifyStoreError("list repair requests", errors.New("pq: relation \"secret\" does not exist"))

	var svcErr *Error
	assert.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "list repair requests failed", svcErr.Message)
	assert.NotContains(t, svcErr.Message, "secret")
	assert.ErrorContains(t, svcErr.Unwrap(), "secret")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("wrapped: %w", ForbiddenError("no"))))
	assert.True(t, IsKind(ConflictError("dup"), KindConflict))
	assert.False(t, IsKind(nil, KindConflict))
	assert.Nil(t, classifyStoreError("op", nil))
}
