package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/member"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/shop"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/staff"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request at debug level.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. The API only
// serves JSON, so the content policy denies everything.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Cache-Control", "no-store")

			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handlers groups the feature handlers mounted by RegisterRoutes.
type Handlers struct {
	Warranty *warranty.Handler
	Claim    *claim.Handler
	Member   *member.Handler
	Shop     *shop.Handler
	Staff    *staff.Handler
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
// Everything except health, login and claim tracking requires a staff token.
func RegisterRoutes(logger *zap.SugaredLogger, issuer *auth.Issuer, h Handlers) http.Handler {
	mux := http.NewServeMux()
	authed := auth.Require(issuer, logger)
	admin := func(f http.HandlerFunc) http.Handler { return authed(auth.RequireAdmin(logger)(f)) }
	staffOnly := func(f http.HandlerFunc) http.Handler { return authed(f) }

	// public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /staff/login", h.Staff.Login)
	mux.HandleFunc("GET /track/{claimId}", h.Claim.Track)

	// warranties
	mux.Handle("POST /warranties", staffOnly(h.Warranty.Register))
	mux.Handle("GET /warranties/{id}", staffOnly(h.Warranty.Get))
	mux.Handle("GET /warranties/by-policy/{policyNumber}", staffOnly(h.Warranty.GetByPolicyNumber))
	mux.Handle("GET /warranties/{id}/limits", staffOnly(h.Warranty.Limits))
	mux.Handle("GET /warranties/{id}/claims", staffOnly(h.Claim.ListByWarranty))
	mux.Handle("POST /warranties/{id}/approve", admin(h.Warranty.Approve))
	mux.Handle("POST /warranties/{id}/reject", admin(h.Warranty.Reject))
	mux.Handle("POST /warranties/{id}/installments/{no}/pay", staffOnly(h.Warranty.PayInstallment))
	mux.Handle("POST /warranties/{id}/installments/pay-all", staffOnly(h.Warranty.PayAllRemaining))

	// claims
	mux.Handle("POST /claims", staffOnly(h.Claim.Intake))
	mux.Handle("GET /claims/overdue", staffOnly(h.Claim.ListOverdue))
	mux.Handle("GET /claims/{claimId}", staffOnly(h.Claim.Get))
	mux.Handle("POST /claims/{claimId}/updates", staffOnly(h.Claim.AddUpdate))
	mux.Handle("POST /claims/{claimId}/complete", staffOnly(h.Claim.Complete))

	// reference data
	mux.Handle("POST /members", staffOnly(h.Member.Create))
	mux.Handle("GET /members/{id}", staffOnly(h.Member.Get))
	mux.Handle("GET /members/{id}/warranties", staffOnly(h.Warranty.ListByMember))
	mux.Handle("POST /shops", admin(h.Shop.Create))
	mux.Handle("GET /shops", staffOnly(h.Shop.List))
	mux.Handle("POST /staff", admin(h.Staff.Create))

	// wrap with security headers middleware then logging middleware
	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
