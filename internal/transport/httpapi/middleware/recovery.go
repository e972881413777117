package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// Recovery returns a panic recovery middleware
func Recovery(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.WithContext(r.Context()).Error("Panic recovered",
						"error", fmt.Sprintf("%v", rec),
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)

					writeError(w, http.StatusInternalServerError, "INTERNAL", http.StatusText(http.StatusInternalServerError))
				}
			}()

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
