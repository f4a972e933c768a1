package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeDuplicate, status: http.StatusBadRequest, publicMsg: "duplicate value", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusBadRequest, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusBadRequest, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeEmptyCart, status: http.StatusBadRequest, publicMsg: "cart is empty"},
		{code: CodeAlreadyPaid, status: http.StatusBadRequest, publicMsg: "order already paid"},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeDependency, status: http.StatusInternalServerError, publicMsg: "dependency unavailable"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		assert.Equal(t, tt.status, meta.HTTPStatus, tt.code)
		assert.Equal(t, tt.publicMsg, meta.PublicMessage, tt.code)
		assert.Equal(t, tt.detailsOK, meta.DetailsAllowed, tt.code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing foo", base.Message())
	assert.Nil(t, base.Details())

	base.WithDetails(map[string]any{"field": "foo"})
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.True(t, stdErrors.Is(wrapped, cause))
	assert.Equal(t, CodeConflict, wrapped.Code())
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestAsAndIsWalkTheChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeAlreadyPaid, "paid"))

	typed := As(err)
	require.NotNil(t, typed)
	assert.Equal(t, CodeAlreadyPaid, typed.Code())
	assert.True(t, Is(err, CodeAlreadyPaid))
	assert.False(t, Is(err, CodeNotFound))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestDuplicateCarriesField(t *testing.T) {
	err := Duplicate("email", "email already registered")
	assert.Equal(t, CodeDuplicate, err.Code())
	assert.Equal(t, map[string]string{"field": "email"}, err.Details())
}

func TestDumpExtractsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_users_email", TableName: "users", Message: "duplicate key"}
	dump := Dump(Wrap(CodeDuplicate, pgErr, "insert user"))
	require.NotNil(t, dump.PG)
	assert.Equal(t, "23505", dump.PG.Code)
	assert.Equal(t, "ux_users_email", dump.PG.Constraint)
	assert.Equal(t, CodeDuplicate, dump.Code)
	assert.NotEmpty(t, dump.Chain)

	fields := dump.LogFields()
	assert.Equal(t, "users", fields["pg_table"])
	assert.Equal(t, CodeDuplicate, fields["error_code"])

	pqDump := Dump(&pq.Error{Code: "23503", Constraint: "fk_order_items_order", Table: "order_items"})
	require.NotNil(t, pqDump.PG)
	assert.Equal(t, "23503", pqDump.PG.Code)
	assert.Equal(t, "fk_order_items_order", pqDump.PG.Constraint)

	plain := Dump(New(CodeNotFound, "missing"))
	assert.Nil(t, plain.PG)
	assert.NotContains(t, plain.LogFields(), "pg_code")

	assert.Equal(t, ErrorDump{}, Dump(nil))
}
