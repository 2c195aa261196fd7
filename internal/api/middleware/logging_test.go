package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
)

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte("body"))
		}))
		req := httptest.NewRequest(http.MethodGet, "/gateway/query", nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		if !strings.Contains(out, "level="+tt.wantLevel) {
			t.Errorf("статус %d: ожидался уровень %s, лог: %s", tt.status, tt.wantLevel, out)
		}
		if !strings.Contains(out, "response_bytes=4") || !strings.Contains(out, "path=/gateway/query") {
			t.Errorf("в логе нет размера или пути: %s", out)
		}
		if !strings.Contains(out, "route=unmatched") {
			t.Errorf("вне chi маршрут должен быть unmatched: %s", out)
		}
		if strings.Contains(out, "secret-token") {
			t.Errorf("токен попал в лог: %s", out)
		}
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/gateway/{capability}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gateway/summary", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("middleware не должен менять статус: %d", rec.Code)
	}
	m := &dto.Metric{}
	if err := httpRequestsTotal.WithLabelValues(http.MethodGet, "/gateway/{capability}", "418").Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetCounter().GetValue(); got < 1 {
		t.Errorf("запрос должен учитываться по шаблону маршрута, счётчик %v", got)
	}
}
