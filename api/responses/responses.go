package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var exposeCauses atomic.Bool

// ExposeInternalCauses toggles returning the wrapped cause of internal errors
// in the error details. Only development servers turn it on.
func ExposeInternalCauses(enabled bool) {
	exposeCauses.Store(enabled)
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Success: true, Data: data})
}

func WriteMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Success: true, Message: message, Data: data})
}

// WritePage writes the page items as data and the window as pagination.
func WritePage[T any](w http.ResponseWriter, page pagination.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, types.SuccessEnvelope{
		Success: true,
		Data:    items,
		Pagination: &types.PageResult{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
			Pages: page.TotalPages(),
		},
	})
}

// WriteError maps err onto its public code and status. Messages of internal
// and dependency failures never reach the client; in development the cause
// is attached as a detail instead.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	serverSide := meta.HTTPStatus >= http.StatusInternalServerError

	body := types.ErrorEnvelope{
		Message: meta.PublicMessage,
		Error:   types.APIError{Code: string(typed.Code())},
	}
	if m := typed.Message(); m != "" && !serverSide {
		body.Message = m
	}
	switch {
	case meta.DetailsAllowed && typed.Details() != nil:
		body.Error.Details = typed.Details()
	case serverSide && exposeCauses.Load():
		body.Error.Details = map[string]string{"cause": err.Error()}
	}

	if logg != nil {
		fields := pkgerrors.Dump(err).LogFields()
		fields["http_status"] = meta.HTTPStatus
		logCtx := logg.WithFields(ctx, fields)
		if serverSide {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logCtx, "request.rejected")
		}
	}
	writeJSON(w, meta.HTTPStatus, body)
}

// encodeFailure is sent when a payload cannot be marshalled.
var encodeFailure = []byte(`{"success":false,"message":"internal server error","error":{"code":"INTERNAL_ERROR"}}` + "\n")

// writeJSON marshals before writing so an unencodable payload still yields a
// well-formed 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	buf, err := json.Marshal(payload)
	if err != nil {
		status, buf = http.StatusInternalServerError, encodeFailure
	} else {
		buf = append(buf, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}
