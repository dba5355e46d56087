package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type roleContextKey struct{}

// RoleFromHeader returns a middleware that reads the caller's role from the
// header set by the trusted front proxy and attaches it to the request
// context. A missing or unknown value degrades to read-only.
func RoleFromHeader(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := model.ParseRole(r.Header.Get(header))
			ctx := context.WithValue(r.Context(), roleContextKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoleFromContext returns the caller role attached by RoleFromHeader,
// defaulting to the read-only role.
func RoleFromContext(ctx context.Context) model.Role {
	if role, ok := ctx.Value(roleContextKey{}).(model.Role); ok {
		return role
	}
	return model.RoleViewer
}

// RequireEnqueue rejects callers whose role may not submit pipeline work.
func RequireEnqueue(next http.Handler) http.Handler {
	return requireRole(next, "enqueue_forbidden", model.Role.CanEnqueue)
}

// RequireRetry rejects callers whose role may not resubmit failed jobs.
func RequireRetry(next http.Handler) http.Handler {
	return requireRole(next, "retry_forbidden", model.Role.CanRetryFailed)
}

func requireRole(next http.Handler, errCode string, allowed func(model.Role) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := RoleFromContext(r.Context())
		if !allowed(role) {
			WriteError(w, ErrorParams{
				Code:    http.StatusForbidden,
				ErrCode: errCode,
				Err:     errors.New("role " + string(role) + " is not permitted to perform this action"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
