package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("строка журнала не JSON: %v (%q)", err, buf.String())
	}
	return line
}

func TestRequestLogger_RecordsActor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	actor := &rbac.Actor{UserID: "user-ref", Role: rbac.RoleMonthReferent, City: "Dijon"}
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), actor)))
		})
	})
	r.Get("/api/v1/visitors/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/visitors/abc", nil))

	line := logLine(t, &buf)
	want := map[string]any{
		"level":   "WARN",
		"route":   "/api/v1/visitors/{id}",
		"user_id": "user-ref",
		"role":    "month_referent",
		"city":    "Dijon",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, ожидается %v", k, line[k], v)
		}
	}
	if status, _ := line["status"].(float64); status != http.StatusNotFound {
		t.Errorf("status = %v, ожидается 404", line["status"])
	}
}

func TestRequestLogger_Anonymous(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	line := logLine(t, &buf)
	if line["level"] != "DEBUG" {
		t.Errorf("level = %v, ожидается DEBUG", line["level"])
	}
	if _, ok := line["user_id"]; ok {
		t.Errorf("user_id не ожидается для анонимного запроса: %v", line)
	}
}

func TestWithActor_WithoutLogger(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	actor := &rbac.Actor{UserID: "u1", Role: rbac.RoleSuperAdmin}
	ctx := WithActor(req.Context(), actor)
	if got := ActorFromContext(ctx); got != actor {
		t.Errorf("ActorFromContext() = %v, ожидается %v", got, actor)
	}
}
