package aiclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
)

func newTestClient(baseURL string) *Client {
	return New(baseURL, 5*time.Second, slog.New(slog.DiscardHandler))
}

// TestForward_JSONPassthrough проверяет, что JSON уходит на {base}/{capability},
// а тело ответа возвращается без изменений.
func TestForward_JSONPassthrough(t *testing.T) {
	const downstreamBody = `{"answer":[1,2,3],"note":"ok"}`

	var gotPath, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(downstreamBody))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL+"/").Forward(context.Background(), &Request{
		Method:     http.MethodPost,
		Capability: "query",
		JSON:       []byte(`{"query":"top 5"}`),
	})
	if err != nil {
		t.Fatalf("Forward() вернул ошибку: %v", err)
	}

	if gotPath != "/query" {
		t.Errorf("путь: ожидался /query, получен %s", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type: %s", gotContentType)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(gotBody), &sent); err != nil || sent["query"] != "top 5" {
		t.Errorf("тело запроса искажено: %s", gotBody)
	}
	if string(resp.Body) != downstreamBody {
		t.Errorf("тело ответа изменено: %s", resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("Content-Type ответа: %s", resp.ContentType)
	}
}

// TestForward_Multipart проверяет перекодирование файла в поле file.
func TestForward_Multipart(t *testing.T) {
	content := "region,revenue\nnorth,100\n"

	var gotName, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName = hdr.Filename
		gotContent = string(b)
		w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Forward(context.Background(), &Request{
		Method:     http.MethodPost,
		Capability: "upload",
		File:       strings.NewReader(content),
		Filename:   "sales report.csv",
	})
	if err != nil {
		t.Fatalf("Forward() вернул ошибку: %v", err)
	}
	if gotName != "sales report.csv" {
		t.Errorf("имя файла: %q", gotName)
	}
	if gotContent != content {
		t.Errorf("содержимое файла искажено: %q", gotContent)
	}
}

// TestForward_GetWithQuery проверяет GET без тела с исходной строкой запроса.
func TestForward_GetWithQuery(t *testing.T) {
	var gotQuery string
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotLen = r.ContentLength
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Forward(context.Background(), &Request{
		Method:     http.MethodGet,
		Capability: "models",
		RawQuery:   "kind=regression&limit=5",
	})
	if err != nil {
		t.Fatalf("Forward() вернул ошибку: %v", err)
	}
	if gotQuery != "kind=regression&limit=5" {
		t.Errorf("строка запроса: %q", gotQuery)
	}
	if gotLen != 0 {
		t.Errorf("GET не должен иметь тела: %d", gotLen)
	}
}

// TestForward_DownstreamError проверяет перенос статуса и поля error.
func TestForward_DownstreamError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"поле error", http.StatusUnprocessableEntity, `{"error":"bad column"}`, "bad column"},
		{"без поля error", http.StatusBadRequest, `{"detail":"x"}`, ""},
		{"error не строка", http.StatusBadRequest, `{"error":{"code":1}}`, ""},
		{"не JSON", http.StatusBadGateway, `<html>bad gateway</html>`, ""},
		{"массив", http.StatusInternalServerError, `["error"]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Forward(context.Background(), &Request{
				Method:     http.MethodPost,
				Capability: "query",
				JSON:       []byte(`{}`),
			})

			fe, ok := failure.As(err)
			if !ok || fe.Kind != failure.DownstreamError {
				t.Fatalf("ожидалась DownstreamError, получена %v", err)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("статус: ожидался %d, получен %d", tt.status, fe.StatusCode)
			}
			if fe.Message != tt.wantMsg {
				t.Errorf("сообщение: ожидалось %q, получено %q", tt.wantMsg, fe.Message)
			}
			if string(fe.Body) != tt.body {
				t.Errorf("тело для логов: %q", fe.Body)
			}
		})
	}
}

// TestForward_Unreachable проверяет сетевой сбой и отсутствие повторов.
func TestForward_Unreachable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Forward(context.Background(), &Request{
		Method:     http.MethodPost,
		Capability: "query",
		JSON:       []byte(`{}`),
	})
	if kind := failure.KindOf(err); kind != failure.DownstreamUnreachable {
		t.Fatalf("ожидалась DownstreamUnreachable, получена %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("не ожидалось обращений к закрытому серверу: %d", calls.Load())
	}
}

// TestForward_Timeout проверяет, что таймаут — DownstreamUnreachable,
// и запрос выполняется ровно один раз.
func TestForward_Timeout(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := New(srv.URL, 100*time.Millisecond, slog.New(slog.DiscardHandler))
	_, err := client.Forward(context.Background(), &Request{
		Method:     http.MethodPost,
		Capability: "query",
		JSON:       []byte(`{}`),
	})
	if kind := failure.KindOf(err); kind != failure.DownstreamUnreachable {
		t.Fatalf("ожидалась DownstreamUnreachable, получена %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("ожидался ровно 1 запрос, получено %d", calls.Load())
	}
}

// TestForward_CapabilityEscaped проверяет, что capability остаётся одним
// сегментом пути: '?', '#' и '/' не меняют структуру URL.
func TestForward_CapabilityEscaped(t *testing.T) {
	tests := []struct {
		capability  string
		wantEscaped string
		wantPath    string
	}{
		{"query?admin=1", "/api/query%3Fadmin=1", "/api/query?admin=1"},
		{"a#frag", "/api/a%23frag", "/api/a#frag"},
		{"a/b", "/api/a%2Fb", "/api/a/b"},
		{"отчёт", "/api/%D0%BE%D1%82%D1%87%D1%91%D1%82", "/api/отчёт"},
	}

	for _, tt := range tests {
		t.Run(tt.capability, func(t *testing.T) {
			var gotEscaped, gotPath, gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotEscaped = r.URL.EscapedPath()
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL+"/api").Forward(context.Background(), &Request{
				Method:     http.MethodGet,
				Capability: tt.capability,
			})
			if err != nil {
				t.Fatalf("Forward() вернул ошибку: %v", err)
			}
			if gotEscaped != tt.wantEscaped || gotPath != tt.wantPath {
				t.Errorf("путь: ожидался %s (%s), получен %s (%s)", tt.wantEscaped, tt.wantPath, gotEscaped, gotPath)
			}
			if gotQuery != "" {
				t.Errorf("capability не должна превращаться в строку запроса: %q", gotQuery)
			}
		})
	}
}

// TestForward_ResponseTooLarge проверяет, что ответ больше предела
// не обрезается молча, а даёт ошибку со статусом 0 (клиенту — 500).
func TestForward_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":"` + strings.Repeat("x", 64) + `"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.maxResponseSize = 32

	resp, err := client.Forward(context.Background(), &Request{Method: http.MethodGet, Capability: "big"})
	if err == nil {
		t.Fatalf("ожидалась ошибка, получен ответ %d байт", len(resp.Body))
	}
	fe, ok := failure.As(err)
	if !ok || fe.Kind != failure.DownstreamError || fe.StatusCode != 0 {
		t.Errorf("ожидалась DownstreamError со статусом 0, получена %v", err)
	}
}

// TestForward_ResponseAtLimit проверяет, что ответ ровно в предел проходит.
func TestForward_ResponseAtLimit(t *testing.T) {
	body := `{"data":"` + strings.Repeat("x", 22) + `"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.maxResponseSize = int64(len(body))

	resp, err := client.Forward(context.Background(), &Request{Method: http.MethodGet, Capability: "edge"})
	if err != nil {
		t.Fatalf("Forward() вернул ошибку: %v", err)
	}
	if string(resp.Body) != body {
		t.Errorf("тело ответа изменено: %s", resp.Body)
	}
}
