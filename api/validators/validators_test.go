package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type sampleInput struct {
	Name     string `json:"name" validate:"required,max=5"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Hidden   string `json:"-"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"toolong","quantity":-1}`))
	var in sampleInput
	err := DecodeJSONBody(req, &in)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details := typed.Details().(map[string]string)
	assert.Equal(t, "must be at most 5 characters", details["name"])
	assert.Equal(t, "must be greater than or equal to 0", details["quantity"])
}

func TestDecodeJSONBodyRejectsUnknownAndEmpty(t *testing.T) {
	var in sampleInput
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`)), &in)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &in)
	require.Error(t, err)
	assert.Equal(t, "request body is required", pkgerrors.As(err).Message())
}

func TestDecodeJSONBodyRejectsTrailingValue(t *testing.T) {
	var in sampleInput
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"} {"name":"b"}`)), &in)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.ErrorIs(t, err, errTrailingData)
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	var in struct {
		Note string `json:"note" validate:"max=3"`
	}
	require.NoError(t, DecodeOptionalJSONBody(httptest.NewRequest(http.MethodDelete, "/", nil), &in))
	err := DecodeOptionalJSONBody(httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(`{"note":"long"}`)), &in)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=2&limit=500&featured=yes&minPrice=-3&maxPrice=10.50&inStock=true", nil)

	_, err := ParsePagination(req)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = ParseQueryBool(req, "featured")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	inStock, err := ParseQueryBool(req, "inStock")
	require.NoError(t, err)
	require.NotNil(t, inStock)
	assert.True(t, *inStock)

	_, err = ParseQueryDecimal(req, "minPrice")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	maxPrice, err := ParseQueryDecimal(req, "maxPrice")
	require.NoError(t, err)
	assert.Equal(t, "10.5", maxPrice.String())

	missing, err := ParseQueryDecimal(req, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=3", nil))
	require.NoError(t, err)
	assert.Equal(t, 3, params.Page)
	assert.Zero(t, params.Limit)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	rctx.URLParams.Add("bad", "nope")
	_, err = ParseUUIDParam(req, "bad")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "red lamp", SanitizeString("  red   lamp ", 0))
	assert.Equal(t, "ré", SanitizeString("résumé", 2))
	assert.Equal(t, "café", SanitizeString("cafe\u0301", 0), "decomposed input is composed")
	assert.Equal(t, "ab c", SanitizeString("a\x00b\tc", 0))
}
