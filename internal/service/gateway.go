// gateway.go — конвейер шлюза: загрузка датасета и проброс запросов в AI-сервис.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/ai-gateway/internal/aiclient"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/ai-gateway/internal/storage"
)

// UploadCapability — маршрут AI-сервиса для первичного анализа датасета.
const UploadCapability = "upload"

// Prometheus-метрики конвейера.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gw_uploads_total",
		Help: "Количество загрузок датасетов по итоговому состоянию.",
	}, []string{"result"})
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gw_upload_bytes_total",
		Help: "Суммарный объём сохранённых загрузок в байтах.",
	})
	forwardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gw_forward_duration_seconds",
		Help:    "Длительность запросов к AI-сервису.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method", "outcome"})
)

// UploadState — состояние конвейера загрузки.
// Переходы только вперёд; из любого состояния, кроме Responded, возможен Failed.
type UploadState string

const (
	StateReceived      UploadState = "received"
	StateAuthenticated UploadState = "authenticated"
	StatePersisted     UploadState = "persisted"
	StateRecorded      UploadState = "recorded"
	StateForwarded     UploadState = "forwarded"
	StateResponded     UploadState = "responded"
	StateFailed        UploadState = "failed"
)

// Recorder — запись метаданных загрузки (реализует DatasetService).
type Recorder interface {
	Record(ctx context.Context, ownerID, originalFilename, handle string) (*model.Dataset, error)
}

// Forwarder — исходящий вызов AI-сервиса (реализует aiclient.Client).
type Forwarder interface {
	Forward(ctx context.Context, req *aiclient.Request) (*aiclient.Response, error)
}

// Result — ответ шлюза клиенту.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// GatewayService — конвейер обработки запросов шлюза.
type GatewayService struct {
	store     storage.Store
	recorder  Recorder
	forwarder Forwarder
	logger    *slog.Logger
}

// NewGatewayService создаёт сервис шлюза.
func NewGatewayService(store storage.Store, recorder Recorder, forwarder Forwarder, logger *slog.Logger) *GatewayService {
	return &GatewayService{
		store:     store,
		recorder:  recorder,
		forwarder: forwarder,
		logger:    logger.With(slog.String("component", "gateway_service")),
	}
}

// Upload сохраняет файл, записывает метаданные, отправляет файл на первичный
// анализ и добавляет в ответ AI-сервиса объект newDataset.
//
// Сохранение и запись выполняются без отмены по контексту клиента:
// начатая запись доводится до конца, даже если клиент отключился.
// Запись датасета не откатывается при ошибке AI-сервиса.
func (s *GatewayService) Upload(ctx context.Context, ownerID string, body *Body) (*Result, error) {
	const op = "service.Upload"

	log := s.logger.With(slog.String("owner", ownerID))
	// Токен уже проверен middleware: received → authenticated
	log.Debug("Загрузка принята",
		slog.String("state", string(StateReceived)),
		slog.String("next", string(StateAuthenticated)),
	)
	state := StateAuthenticated
	fail := func(err error) (*Result, error) {
		uploadsTotal.WithLabelValues(string(failure.KindOf(err))).Inc()
		log.Debug("Загрузка прервана",
			slog.String("state", string(state)),
			slog.String("next", string(StateFailed)),
			slog.String("kind", string(failure.KindOf(err))),
		)
		return nil, err
	}

	if body == nil || body.Kind != BodyFile {
		return fail(failure.New(failure.MissingFile, op, errors.New("тело не содержит файла")))
	}

	persistCtx := context.WithoutCancel(ctx)

	saved, err := s.store.Save(persistCtx, body.File, body.Filename)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fail(failure.New(failure.MalformedBody, op, err))
		}
		return fail(failure.New(failure.StorageFailure, op, err))
	}
	state = StatePersisted
	uploadBytesTotal.Add(float64(saved.Size))
	log.Info("Файл сохранён",
		slog.String("handle", saved.Handle),
		slog.String("original_filename", body.Filename),
		slog.Int64("size", saved.Size),
		slog.String("sha256", saved.Checksum),
	)

	dataset, err := s.recorder.Record(persistCtx, ownerID, body.Filename, saved.Handle)
	if err != nil {
		return fail(err)
	}
	state = StateRecorded

	stored, err := s.store.Open(ctx, saved.Handle)
	if err != nil {
		return fail(failure.New(failure.StorageFailure, op, fmt.Errorf("повторное чтение %s: %w", saved.Handle, err)))
	}
	defer stored.Close()

	resp, err := s.forward(ctx, &aiclient.Request{
		Method:     http.MethodPost,
		Capability: UploadCapability,
		File:       stored,
		Filename:   body.Filename,
	})
	if err != nil {
		log.Warn("Датасет записан, но AI-сервис не обработал файл",
			slog.Int64("dataset_id", dataset.ID),
			slog.String("error", err.Error()),
		)
		return fail(err)
	}
	state = StateForwarded

	augmented, err := withNewDataset(resp.Body, dataset.View())
	if err != nil {
		return fail(failure.New(failure.DownstreamError, op, err))
	}

	uploadsTotal.WithLabelValues(string(StateResponded)).Inc()
	log.Debug("Загрузка завершена",
		slog.String("state", string(state)),
		slog.String("next", string(StateResponded)),
		slog.Int64("dataset_id", dataset.ID),
	)

	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: "application/json",
		Body:        augmented,
	}, nil
}

// Passthrough пробрасывает запрос в AI-сервис и возвращает ответ без изменений.
// capability — декодированный сегмент пути; "." и ".." отклоняются как MalformedBody.
func (s *GatewayService) Passthrough(ctx context.Context, method, capability, rawQuery string, body *Body) (*Result, error) {
	if capability == "" || capability == "." || capability == ".." {
		return nil, failure.New(failure.MalformedBody, "service.Passthrough", fmt.Errorf("недопустимый маршрут AI-сервиса %q", capability))
	}

	req := &aiclient.Request{
		Method:     method,
		Capability: capability,
		RawQuery:   rawQuery,
	}
	if body != nil {
		switch body.Kind {
		case BodyJSON:
			req.JSON = body.JSON
		case BodyFile:
			req.File = body.File
			req.Filename = body.Filename
		}
	}

	resp, err := s.forward(ctx, req)
	if err != nil {
		return nil, err
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        resp.Body,
	}, nil
}

// forward выполняет вызов AI-сервиса и учитывает его длительность.
func (s *GatewayService) forward(ctx context.Context, req *aiclient.Request) (*aiclient.Response, error) {
	start := time.Now()
	resp, err := s.forwarder.Forward(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = string(failure.KindOf(err))
	}
	forwardDuration.WithLabelValues(req.Method, outcome).Observe(time.Since(start).Seconds())
	return resp, err
}

// withNewDataset добавляет newDataset в JSON-объект ответа.
// Остальные поля ответа не интерпретируются; числа сохраняют исходную запись.
func withNewDataset(body []byte, view model.DatasetView) ([]byte, error) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("ответ AI-сервиса не является JSON-объектом: %w", err)
	}
	if payload == nil {
		return nil, errors.New("ответ AI-сервиса: null вместо объекта")
	}
	// После объекта допустимы только пробельные символы
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, errors.New("ответ AI-сервиса: данные после JSON-объекта")
	}

	payload["newDataset"] = view
	return json.Marshal(payload)
}
