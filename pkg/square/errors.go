package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// mapSquareError turns an SDK failure into a storefront error. A specific
// Square error in the body wins over the HTTP status; transport failures are
// dependency errors.
func mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := domainCodeForStatus(apiErr.StatusCode)
	for _, detail := range extractSquareErrors(apiErr) {
		if c, ok := codeForDetail(detail); ok {
			code = c
			break
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

func codeForDetail(e *sq.Error) (pkgerrors.Code, bool) {
	switch {
	case e == nil:
		return "", false
	case e.Code == sq.ErrorCodeIdempotencyKeyReused:
		return pkgerrors.CodeIdempotency, true
	case e.Category == sq.ErrorCategoryPaymentMethodError:
		return pkgerrors.CodePaymentFailed, true
	case e.Category == sq.ErrorCategoryAuthenticationError:
		return pkgerrors.CodeDependency, true
	}
	return "", false
}

// extractSquareErrors decodes the errors array Square returns in the body.
func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil || apiErr.Unwrap() == nil {
		return nil
	}
	raw := strings.TrimSpace(apiErr.Unwrap().Error())
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if raw == "" || json.Unmarshal([]byte(raw), &body) != nil {
		return nil
	}
	return body.Errors
}

// domainCodeForStatus maps Square HTTP statuses. Credential failures are the
// store's problem, so they surface as dependency errors.
func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeDependency
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusPaymentRequired, http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodePaymentFailed
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
