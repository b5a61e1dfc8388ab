package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// Recovery answers a panicking handler with a 500 and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.WithContext(r.Context(), l).ErrorContext(r.Context(), "handler panicked",
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				httputil.WriteError(w, r, fmt.Errorf("panic: %v", rec), l)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
