// datasets.go — список датасетов текущего пользователя.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/goartstore/ai-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/ai-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/ai-gateway/internal/service"
)

// DatasetLister — чтение датасетов владельца (реализует service.DatasetService).
type DatasetLister interface {
	List(ctx context.Context, ownerID string, limit, offset int) ([]model.DatasetView, error)
}

// DatasetsHandler — обработчик GET /datasets.
type DatasetsHandler struct {
	datasets DatasetLister
	logger   *slog.Logger
}

// NewDatasetsHandler создаёт обработчик списка датасетов.
func NewDatasetsHandler(datasets DatasetLister, logger *slog.Logger) *DatasetsHandler {
	return &DatasetsHandler{
		datasets: datasets,
		logger:   logger.With(slog.String("component", "datasets_handler")),
	}
}

type datasetListResponse struct {
	Datasets []model.DatasetView `json:"datasets"`
}

// List — GET /datasets?limit=&offset=, новые первыми.
func (h *DatasetsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", service.DefaultListLimit)
	if !ok || limit < 1 || limit > service.MaxListLimit {
		apierrors.ValidationError(w, "limit должен быть целым числом от 1 до "+strconv.Itoa(service.MaxListLimit))
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		apierrors.ValidationError(w, "offset должен быть неотрицательным целым числом")
		return
	}

	views, err := h.datasets.List(r.Context(), middleware.SubjectFromContext(r.Context()), limit, offset)
	if err != nil {
		apierrors.WriteFailure(w, r, h.logger, err)
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, datasetListResponse{Datasets: views})
}

// queryInt читает целочисленный параметр запроса; отсутствует — def.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
