package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/ratelimit"
	"github.com/html-librarian/mig-catalog/internal/security"
	"github.com/html-librarian/mig-catalog/internal/token"
	"github.com/html-librarian/mig-catalog/internal/util"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	userIDKey        contextKey = "user_id"

	correlationIDHeader  = "X-Correlation-ID"
	slowRequestThreshold = 500 * time.Millisecond
)

// CorrelationIDFromContext returns the request correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// UserIDFromContext returns the authenticated user id set by RequireAuth.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// CorrelationID accepts a caller-supplied X-Correlation-ID or generates one,
// stores it in the request context and echoes it on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		w.Header().Set(correlationIDHeader, id)
		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery converts panics into an opaque 500 carrying only the correlation
// id. The panic value and stack go to the log, never to the client.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						util.Any("panic", rec),
						util.String("path", r.URL.Path),
						util.String("correlation_id", CorrelationIDFromContext(r.Context())))

					respondWithJSON(w, http.StatusInternalServerError, Response{
						Success: false,
						Error:   "internal server error",
						Message: fmt.Sprintf("correlation_id: %s", CorrelationIDFromContext(r.Context())),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ProcessTime adds the X-Process-Time header with the handling duration in
// seconds. The header has to land before the status line, so the writer is
// wrapped and the value set on the first WriteHeader call.
func ProcessTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		hw := &headerTimingWriter{WrapResponseWriter: ww, start: time.Now()}
		next.ServeHTTP(hw, r)
	})
}

type headerTimingWriter struct {
	middleware.WrapResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *headerTimingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		elapsed := time.Since(w.start).Seconds()
		w.Header().Set("X-Process-Time", strconv.FormatFloat(elapsed, 'f', 6, 64))
		w.wroteHeader = true
	}
	w.WrapResponseWriter.WriteHeader(status)
}

func (w *headerTimingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.WrapResponseWriter.Write(b)
}

// RequestLogger logs each request with sensitive headers masked.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)
				fields := []zap.Field{
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", clientIP(r)),
					util.Int("status", ww.Status()),
					util.Duration("duration", elapsed),
					util.String("user_agent", r.UserAgent()),
					util.String("authorization", maskHeader(r.Header.Get("Authorization"))),
					util.String("correlation_id", CorrelationIDFromContext(r.Context())),
				}

				if elapsed > slowRequestThreshold {
					logger.Warn("slow HTTP request", fields...)
				} else {
					logger.Info("HTTP request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// maskHeader keeps the scheme prefix of a credential header and hides the
// rest, so logs show that a credential was present but never its value.
func maskHeader(value string) string {
	if value == "" {
		return ""
	}
	if scheme, _, ok := strings.Cut(value, " "); ok {
		return scheme + " ***"
	}
	return "***"
}

// SecurityHeaders sets the standard browser hardening headers on every
// response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

// Throttle enforces lockouts and rate limits. Both conditions answer with
// the same 429 shape so a locked-out caller cannot tell the difference.
func Throttle(limiter *ratelimit.Limiter, securityMgr *security.Manager, sink security.EventSink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := clientIP(r)
			endpoint := r.URL.Path

			if securityMgr.IsLockedOut(source) {
				tooManyRequests(w, 60)
				return
			}

			result := limiter.Check(r.Context(), source, endpoint)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				// A violation feeds the lockout counter. Enough of them
				// locks the source out entirely.
				securityMgr.RecordFailure(source, endpoint)
				if sink != nil {
					sink.Record(models.SecurityEvent{
						EventType:  models.EventRateLimitExceeded,
						SourceID:   source,
						Endpoint:   endpoint,
						OccurredAt: time.Now().UTC(),
					})
				}
				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				tooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	respondWithJSON(w, http.StatusTooManyRequests, Response{
		Success: false,
		Error:   "too many requests",
	})
}

// RequireAuth validates the bearer token and stores the subject id in the
// request context. Verification failures count as auth failures for the
// security manager.
func RequireAuth(tokens *token.Service, securityMgr *security.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				securityMgr.RecordFailure(clientIP(r), r.URL.Path)
				unauthorized(w, "invalid or expired token")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				securityMgr.RecordFailure(clientIP(r), r.URL.Path)
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, rest, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || rest == "" {
		return "", false
	}
	return rest, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondWithJSON(w, http.StatusUnauthorized, Response{
		Success: false,
		Error:   message,
	})
}

// clientIP prefers the RealIP middleware result and falls back to the raw
// remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
