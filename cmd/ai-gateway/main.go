// Точка входа AI Gateway — шлюз между браузерным клиентом и AI-сервисом.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// выбирает хранилище файлов, создаёт конвейер шлюза и JWT middleware,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/ai-gateway/internal/aiclient"
	"github.com/bigkaa/goartstore/ai-gateway/internal/api/handlers"
	"github.com/bigkaa/goartstore/ai-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/ai-gateway/internal/config"
	"github.com/bigkaa/goartstore/ai-gateway/internal/database"
	"github.com/bigkaa/goartstore/ai-gateway/internal/repository"
	"github.com/bigkaa/goartstore/ai-gateway/internal/server"
	"github.com/bigkaa/goartstore/ai-gateway/internal/service"
	"github.com/bigkaa/goartstore/ai-gateway/internal/storage"
	"github.com/bigkaa/goartstore/ai-gateway/internal/storage/filestore"
	"github.com/bigkaa/goartstore/ai-gateway/internal/storage/s3store"
)

const serviceName = "ai-gateway"

// Параметры JWKS-клиента.
const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 15 * time.Minute
)

// readyStore — хранилище с проверкой готовности.
type readyStore interface {
	storage.Store
	handlers.ReadinessChecker
}

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("AI Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("ai_service_url", cfg.AIServiceURL),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище файлов
	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repository + сервисы
	datasetRepo := repository.NewDatasetRepository(pool)
	datasetSvc := service.NewDatasetService(datasetRepo, cfg.DatasetCacheSize, cfg.DatasetCacheTTL, logger)

	aiClient := aiclient.New(cfg.AIServiceURL, cfg.AITimeout, logger)
	gatewaySvc := service.NewGatewayService(store, datasetSvc, aiClient, logger)

	// 7. JWT middleware: RS256 через JWKS или HS256 с общим секретом
	auth, err := newAuth(cfg, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL + AI-сервис)
	var deps handlers.DependencyReporter
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     serviceName,
		Group:         serviceName,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		AIServiceURL:  cfg.AIServiceURL,
		AIHealthPath:  cfg.AIHealthPath,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		deps = dephealthSvc
		defer dephealthSvc.Stop()
	}

	// 9. Handlers
	healthHandler := handlers.NewHealthHandler(map[string]handlers.ReadinessChecker{
		"postgresql": database.NewReadinessChecker(pool),
		"storage":    store,
	}, deps)
	h := server.Handlers{
		Gateway:  handlers.NewGatewayHandler(gatewaySvc, cfg.MaxUploadSize, cfg.MaxJSONSize, logger),
		Datasets: handlers.NewDatasetsHandler(datasetSvc, logger),
		Health:   healthHandler,
	}

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, h, auth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1) //nolint:gocritic // defer-ы не критичны при аварийном завершении
	}

	logger.Info("AI Gateway остановлен")
}

// newStore создаёт хранилище по GW_STORAGE_BACKEND.
func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (readyStore, error) {
	if cfg.StorageBackend == config.StorageBackendS3 {
		st, err := s3store.New(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.UploadDir, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище S3", slog.String("bucket", cfg.S3Bucket), slog.String("prefix", cfg.S3Prefix))
		return st, nil
	}

	st, err := filestore.New(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	logger.Info("Локальное хранилище", slog.String("dir", st.DataDir()))
	return st, nil
}

// newAuth создаёт middleware проверки Bearer-токена.
func newAuth(cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg.JWKSURL != "" {
		auth, err := middleware.NewJWKSAuth(middleware.JWKSAuthConfig{
			JWKSURL:         cfg.JWKSURL,
			ClientTimeout:   jwksClientTimeout,
			RefreshInterval: jwksRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("JWT middleware инициализирован (RS256, JWKS)", slog.String("jwks_url", cfg.JWKSURL))
		return auth.Middleware(), nil
	}

	logger.Info("JWT middleware инициализирован (HS256)")
	return middleware.NewHS256Auth([]byte(cfg.JWTSecret), cfg.JWTLeeway, logger).Middleware(), nil
}
