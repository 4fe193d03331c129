package middleware

import (
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
)

// DebugWriteHeader logs a stack when a handler writes the status line twice,
// which happens when an auth rejection and a handler both respond.
// Enabled by DEBUG_DOUBLE_WRITE.
func DebugWriteHeader(enabled bool, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	log.Infow("double-write detection enabled")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&headerGuard{ResponseWriter: w, log: log, method: r.Method, path: r.URL.Path}, r)
		})
	}
}

type headerGuard struct {
	http.ResponseWriter
	log    *zap.SugaredLogger
	wrote  atomic.Bool
	method string
	path   string
	code   int
}

func (g *headerGuard) WriteHeader(code int) {
	if g.wrote.CompareAndSwap(false, true) {
		g.code = code
		g.ResponseWriter.WriteHeader(code)
		return
	}
	g.log.Warnw("status written twice", "method", g.method, "path", g.path, "first", g.code, "second", code, "stack", string(debug.Stack()))
}

func (g *headerGuard) Write(b []byte) (int, error) {
	if !g.wrote.Load() {
		g.WriteHeader(http.StatusOK)
	}
	return g.ResponseWriter.Write(b)
}
