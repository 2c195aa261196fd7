// datasets.go — запись метаданных загрузок и список датасетов владельца.
// Список кэшируется в LRU с TTL (hashicorp/golang-lru/v2/expirable).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/ai-gateway/internal/repository"
)

// Границы пагинации списка датасетов.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Prometheus-метрики кэша списков.
var (
	datasetCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gw_dataset_cache_hits_total",
		Help: "Общее количество попаданий в кэш списков датасетов.",
	})
	datasetCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gw_dataset_cache_misses_total",
		Help: "Общее количество промахов кэша списков датасетов.",
	})
)

// DatasetService — запись и чтение метаданных датасетов.
type DatasetService struct {
	repo  repository.DatasetRepository
	cache *expirable.LRU[string, []model.DatasetView]

	// cacheMu делает атомарными проверку поколения с Add и инвалидацию.
	// generation растёт при каждой записи; результат запроса, начатого
	// до записи, в кэш не попадает
	cacheMu    sync.Mutex
	generation uint64

	logger *slog.Logger
}

// NewDatasetService создаёт сервис датасетов.
// cacheSize — максимальное количество кэшированных страниц, cacheTTL — их время жизни.
func NewDatasetService(repo repository.DatasetRepository, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *DatasetService {
	return &DatasetService{
		repo:   repo,
		cache:  expirable.NewLRU[string, []model.DatasetView](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "dataset_service")),
	}
}

// Record создаёт запись о загруженном файле. Вызывается только после того,
// как байты доступны по handle. Ошибка хранилища — PersistenceFailure.
func (s *DatasetService) Record(ctx context.Context, ownerID, originalFilename, handle string) (*model.Dataset, error) {
	d := &model.Dataset{
		OwnerID:          ownerID,
		OriginalFilename: originalFilename,
		StoragePath:      handle,
	}
	if err := s.repo.Insert(ctx, d); err != nil {
		return nil, failure.New(failure.PersistenceFailure, "service.Record", err)
	}

	s.invalidate(ownerID)

	s.logger.Info("Датасет записан",
		slog.Int64("id", d.ID),
		slog.String("owner", ownerID),
		slog.String("storage_path", handle),
	)
	return d, nil
}

// List возвращает датасеты владельца, новые первыми.
// limit приводится к [1, MaxListLimit] (0 — DefaultListLimit), offset к >= 0.
func (s *DatasetService) List(ctx context.Context, ownerID string, limit, offset int) ([]model.DatasetView, error) {
	limit, offset = normalizePage(limit, offset)
	key := cacheKey(ownerID, limit, offset)

	if views, ok := s.cache.Get(key); ok {
		datasetCacheHitsTotal.Inc()
		return views, nil
	}
	datasetCacheMissesTotal.Inc()

	s.cacheMu.Lock()
	gen := s.generation
	s.cacheMu.Unlock()

	datasets, err := s.repo.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, failure.New(failure.PersistenceFailure, "service.List", fmt.Errorf("список датасетов: %w", err))
	}

	views := make([]model.DatasetView, 0, len(datasets))
	for _, d := range datasets {
		views = append(views, d.View())
	}

	s.cacheMu.Lock()
	if s.generation == gen {
		s.cache.Add(key, views)
	}
	s.cacheMu.Unlock()
	return views, nil
}

// invalidate удаляет из кэша все страницы владельца.
func (s *DatasetService) invalidate(ownerID string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.generation++
	prefix := ownerID + "\x00"
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
}

func normalizePage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func cacheKey(ownerID string, limit, offset int) string {
	return fmt.Sprintf("%s\x00%d\x00%d", ownerID, limit, offset)
}
