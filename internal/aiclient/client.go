// Пакет aiclient — HTTP-клиент AI-сервиса (аналитика датасетов).
// Запрос уходит на {base}/{capability}: JSON передаётся как есть,
// файл перекодируется в multipart/form-data с полем file.
// Повторных попыток нет.
package aiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
)

// defaultMaxResponseSize — предел размера ответа AI-сервиса.
const defaultMaxResponseSize = 64 << 20

// FileField — имя поля multipart, которое ожидает AI-сервис.
const FileField = "file"

// Request — исходящий запрос к AI-сервису.
// Заполняется не более одного из JSON и File; без них запрос уходит без тела.
type Request struct {
	Method     string
	Capability string
	RawQuery   string

	JSON []byte

	File     io.Reader
	Filename string
}

// Response — успешный (2xx) ответ AI-сервиса.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client — HTTP-клиент AI-сервиса.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	maxResponseSize int64
	logger          *slog.Logger
}

// New создаёт клиент. baseURL — адрес AI-сервиса без завершающего слеша,
// timeout — таймаут одного запроса (GW_AI_TIMEOUT).
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxResponseSize: defaultMaxResponseSize,
		logger:          logger.With(slog.String("component", "ai_client")),
	}
}

// Forward отправляет запрос в AI-сервис.
//
// Ошибки:
//   - failure.DownstreamUnreachable — сетевой сбой, таймаут, обрыв чтения ответа;
//   - failure.DownstreamError — ответ не 2xx (статус и поле error из тела)
//     или ответ больше предела (статус 0, клиент получит 500).
//
// Capability — один сегмент пути в декодированном виде; в URL он уходит
// экранированным, поэтому '?', '#' и '/' внутри него не меняют структуру адреса.
func (c *Client) Forward(ctx context.Context, req *Request) (*Response, error) {
	const op = "aiclient.Forward"

	target := c.baseURL + "/" + url.PathEscape(req.Capability)
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	body, contentType, closeBody := encodeBody(req)
	// Закрытие pipe освобождает горутину кодирования на любом пути выхода
	defer closeBody()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, failure.New(failure.DownstreamUnreachable, op, fmt.Errorf("создание запроса: %w", err))
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, failure.New(failure.DownstreamUnreachable, op, fmt.Errorf("запрос к %s: %w", target, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, failure.New(failure.DownstreamUnreachable, op, fmt.Errorf("чтение ответа %s: %w", target, err))
	}
	if int64(len(data)) > c.maxResponseSize {
		c.logger.Warn("Ответ AI-сервиса превышает предел",
			slog.String("capability", req.Capability),
			slog.Int("status", resp.StatusCode),
			slog.Int64("limit", c.maxResponseSize),
		)
		return nil, failure.Downstream(op, 0, "", nil)
	}

	c.logger.Debug("Ответ AI-сервиса",
		slog.String("method", req.Method),
		slog.String("capability", req.Capability),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.Downstream(op, resp.StatusCode, errorMessage(data), data)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// encodeBody формирует тело запроса и его Content-Type.
// Файл кодируется в multipart потоково через io.Pipe, без буферизации в памяти.
func encodeBody(req *Request) (io.Reader, string, func()) {
	switch {
	case req.File != nil:
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			part, err := mw.CreateFormFile(FileField, req.Filename)
			if err == nil {
				_, err = io.Copy(part, req.File)
			}
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()
		return pr, mw.FormDataContentType(), func() { pr.Close() }
	case req.JSON != nil:
		return bytes.NewReader(req.JSON), "application/json", func() {}
	default:
		return http.NoBody, "", func() {}
	}
}

// errorMessage извлекает строковое поле error из JSON-объекта ответа.
// Любая другая форма тела — пустая строка.
func errorMessage(data []byte) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	msg, _ := payload.Error.(string)
	return msg
}
