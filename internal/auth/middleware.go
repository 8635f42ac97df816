package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/httpio"
)

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom returns the actor stored by Require.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

// Require rejects requests without a valid bearer token and stores the
// actor on the request context.
func Require(issuer *Issuer, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				httpio.Error(w, r, logger, unauthorized(errors.New("missing bearer token")))
				return
			}
			a, err := issuer.Parse(raw)
			if err != nil {
				httpio.Error(w, r, logger, unauthorized(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}

// RequireAdmin must run after Require.
func RequireAdmin(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := ActorFrom(r.Context())
			if !ok || !a.IsAdmin() {
				httpio.Error(w, r, logger, apperr.New(apperr.KindForbidden, apperr.ErrorNotAuthorized, errors.New("admin role required")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(err error) error {
	return apperr.New(apperr.KindUnauthorized, apperr.ErrorNotAuthorized, err)
}
