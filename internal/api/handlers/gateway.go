// Пакет handlers — HTTP-обработчики AI Gateway.
// gateway.go — загрузка датасета и проброс запросов в AI-сервис.
package handlers

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/ai-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/ai-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
	"github.com/bigkaa/goartstore/ai-gateway/internal/service"
)

// Gateway — конвейер шлюза (реализует service.GatewayService).
type Gateway interface {
	Upload(ctx context.Context, ownerID string, body *service.Body) (*service.Result, error)
	Passthrough(ctx context.Context, method, capability, rawQuery string, body *service.Body) (*service.Result, error)
}

// GatewayHandler — обработчики маршрутов /gateway/*.
type GatewayHandler struct {
	gateway       Gateway
	maxUploadSize int64
	maxJSONSize   int64
	logger        *slog.Logger
}

// NewGatewayHandler создаёт обработчик шлюза.
// maxUploadSize — предел multipart-тела, maxJSONSize — предел остальных тел.
func NewGatewayHandler(gateway Gateway, maxUploadSize, maxJSONSize int64, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		gateway:       gateway,
		maxUploadSize: maxUploadSize,
		maxJSONSize:   maxJSONSize,
		logger:        logger.With(slog.String("component", "gateway_handler")),
	}
}

// Upload — POST /gateway/upload (требует Bearer-токен).
func (h *GatewayHandler) Upload(w http.ResponseWriter, r *http.Request) {
	body, ok := h.dispatch(w, r)
	if !ok {
		return
	}

	res, err := h.gateway.Upload(r.Context(), middleware.SubjectFromContext(r.Context()), body)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return
	}
	writeResult(w, res)
}

// Post — POST /gateway/{capability}: JSON (или файл) уходит в AI-сервис как есть.
func (h *GatewayHandler) Post(w http.ResponseWriter, r *http.Request) {
	body, ok := h.dispatch(w, r)
	if !ok {
		return
	}

	capability, err := capabilityParam(r)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return
	}

	res, err := h.gateway.Passthrough(r.Context(), http.MethodPost, capability, r.URL.RawQuery, body)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return
	}
	writeResult(w, res)
}

// Get — GET /gateway/{capability}: запрос без тела со строкой запроса клиента.
func (h *GatewayHandler) Get(w http.ResponseWriter, r *http.Request) {
	capability, err := capabilityParam(r)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return
	}

	res, err := h.gateway.Passthrough(r.Context(), http.MethodGet, capability, r.URL.RawQuery, nil)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return
	}
	writeResult(w, res)
}

// capabilityParam возвращает сегмент {capability} в декодированном виде.
// chi сопоставляет маршрут по RawPath, если он задан (в пути есть %2F и т.п.),
// и тогда параметр приходит экранированным.
func capabilityParam(r *http.Request) (string, error) {
	capability := chi.URLParam(r, "capability")
	if r.URL.RawPath == "" {
		return capability, nil
	}
	decoded, err := url.PathUnescape(capability)
	if err != nil {
		return "", failure.New(failure.MalformedBody, "handlers.capabilityParam", err)
	}
	return decoded, nil
}

// dispatch ограничивает размер тела и классифицирует его.
// Тело входящего запроса закрывает net/http после возврата из обработчика.
func (h *GatewayHandler) dispatch(w http.ResponseWriter, r *http.Request) (*service.Body, bool) {
	contentType := r.Header.Get("Content-Type")

	limit := h.maxJSONSize
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "multipart/form-data" {
		limit = h.maxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	body, err := service.DispatchBody(contentType, r.Body)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return nil, false
	}
	return body, true
}

// writeResult пишет ответ AI-сервиса клиенту.
func writeResult(w http.ResponseWriter, res *service.Result) {
	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}
