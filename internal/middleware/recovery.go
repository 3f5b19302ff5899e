package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"imagegate/pkg/logging/logging"
)

// Recoverer turns a panic while serving an image into a 500 that no cache
// in front of the gateway will keep. http.ErrAbortHandler is re-raised so
// net/http can drop the connection quietly.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.L(r.Context()).Error("panic recovered",
					zap.String("method", r.Method),
					zap.String("image_path", r.URL.EscapedPath()),
					zap.Any("error", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal_server_error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// writeError sends the gateway's JSON error body. Middleware failures are
// never edge cached.
func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
