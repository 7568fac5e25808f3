package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sumfields/sumfields/internal/logger"
)

// Recovery creates a middleware that turns a panic into a logged error and
// the response written by onPanic
func Recovery(log *logger.Logger, onPanic http.HandlerFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.Error("panic recovered",
						"request_id", GetRequestID(r.Context()),
						"panic", fmt.Sprint(p),
						"stack", string(debug.Stack()))

					if onPanic != nil {
						onPanic(w, r)
						return
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
