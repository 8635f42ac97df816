// Package httpio holds the JSON request and response helpers shared by the
// HTTP handlers.
package httpio

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Decode reads a JSON body into v. Unknown fields are rejected.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindValidation, apperr.ErrorInvalidRequestBody, errors.New("request body is empty"))
		}
		return apperr.New(apperr.KindValidation, apperr.ErrorInvalidRequestBody, err)
	}
	return nil
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err onto a status and error body. Internal errors are logged
// at warn level, everything else at debug.
func Error(w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Warnw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	JSON(w, status, apperr.ToBody(err))
}
