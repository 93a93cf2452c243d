package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"collabedit/internal/httputil"
)

// Recovery middleware recovers from panics and returns a 500 error. Once the
// handler has started its response, or hijacked the connection for a
// WebSocket, the panic is only logged.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				if err := recover(); err != nil {
					attrs := []any{
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					}
					if userID := httputil.GetUserID(r); userID != "" {
						attrs = append(attrs, "user_id", userID)
					}
					if rec.status != 0 {
						attrs = append(attrs, "response_status", rec.status)
					}
					logger.Error("panic recovered", attrs...)

					if rec.status == 0 {
						httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
					}
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
