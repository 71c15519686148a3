// logging.go — журнал HTTP-запросов Pastorale через slog.
// Кроме статуса и длительности пишет, кто спрашивал: актор появляется
// в контексте только после JWT middleware, поэтому журнал заводит
// запись заранее, а WithActor её заполняет.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

type accessEntryKey struct{}

// accessEntry — сведения об акторе для строки журнала.
type accessEntry struct {
	userID string
	role   rbac.Role
	city   string
}

// noteActor заполняет запись журнала, если RequestLogger её завёл.
func noteActor(ctx context.Context, a *rbac.Actor) {
	e, ok := ctx.Value(accessEntryKey{}).(*accessEntry)
	if !ok || a == nil {
		return
	}
	e.userID, e.role, e.city = a.UserID, a.Role, a.City
}

// responseWriter перехватывает статус и размер ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger пишет строку на каждый запрос. Уровень: ERROR для 5xx,
// WARN для 4xx (отказы по области видимости видны с ролью и городом),
// DEBUG для успешных health и metrics, иначе INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessEntry{}
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry)))

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			case strings.HasPrefix(r.URL.Path, "/health/") || r.URL.Path == "/metrics":
				level = slog.LevelDebug
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			}
			if entry.userID != "" {
				attrs = append(attrs,
					slog.String("user_id", entry.userID),
					slog.String("role", string(entry.role)),
				)
				if entry.city != "" {
					attrs = append(attrs, slog.String("city", entry.city))
				}
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
