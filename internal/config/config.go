// Пакет config — загрузка и валидация конфигурации AI Gateway
// из переменных окружения. Конфигурация читается один раз при старте
// и далее используется только для чтения.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранения загруженных файлов.
const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"
)

// minJWTSecretLen — минимальная длина общего секрета HS256.
const minJWTSecretLen = 16

// Config содержит все параметры конфигурации AI Gateway.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Аутентификация ---

	// Общий секрет для проверки подписи HS256
	JWTSecret string
	// URL JWKS endpoint (опционально, включает RS256 вместо HS256)
	JWKSURL string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- AI-сервис ---

	// Базовый адрес AI-сервиса (без завершающего слеша)
	AIServiceURL string
	// Таймаут одного запроса к AI-сервису
	AITimeout time.Duration
	// Путь health endpoint AI-сервиса для topologymetrics
	AIHealthPath string

	// --- Хранилище файлов ---

	// Бэкенд хранения: local или s3
	StorageBackend string
	// Корневая директория локального хранилища
	UploadDir string
	// Бакет S3 (только для s3)
	S3Bucket string
	// Префикс ключей S3 (опционально)
	S3Prefix string
	// Максимальный размер multipart-запроса в байтах
	MaxUploadSize int64
	// Максимальный размер JSON-запроса в байтах
	MaxJSONSize int64

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Браузерные клиенты ---

	// Разрешённые origin для CORS
	CORSAllowedOrigins []string
	// Лимит запросов в минуту с одного IP (0 — без ограничения)
	RateLimitRPM int

	// --- Кэш списка датасетов ---

	DatasetCacheSize int
	DatasetCacheTTL  time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// GW_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("GW_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("GW_PORT: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("GW_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("GW_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("GW_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("GW_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("GW_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Аутентификация ---

	// GW_JWKS_URL — при наличии токены проверяются по RS256 через JWKS
	cfg.JWKSURL = getEnvDefault("GW_JWKS_URL", "")

	// GW_JWT_SECRET — обязателен, если JWKS не настроен
	cfg.JWTSecret = getEnvDefault("GW_JWT_SECRET", "")
	if cfg.JWKSURL == "" {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("GW_JWT_SECRET: обязательная переменная окружения не задана")
		}
		if len(cfg.JWTSecret) < minJWTSecretLen {
			return nil, fmt.Errorf("GW_JWT_SECRET: длина секрета должна быть не меньше %d байт", minJWTSecretLen)
		}
	}

	cfg.JWTLeeway, err = getEnvDuration("GW_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_JWT_LEEWAY: %w", err)
	}

	// --- AI-сервис ---

	cfg.AIServiceURL = strings.TrimRight(getEnvDefault("GW_AI_SERVICE_URL", "http://localhost:5001"), "/")
	if err := validateHTTPURL(cfg.AIServiceURL); err != nil {
		return nil, fmt.Errorf("GW_AI_SERVICE_URL: %w", err)
	}

	cfg.AITimeout, err = getEnvPositiveDuration("GW_AI_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_AI_TIMEOUT: %w", err)
	}

	cfg.AIHealthPath = getEnvDefault("GW_AI_HEALTH_PATH", "/health")
	if !strings.HasPrefix(cfg.AIHealthPath, "/") {
		return nil, fmt.Errorf("GW_AI_HEALTH_PATH: путь должен начинаться с '/': %q", cfg.AIHealthPath)
	}

	// --- Хранилище файлов ---

	cfg.StorageBackend = getEnvDefault("GW_STORAGE_BACKEND", StorageBackendLocal)
	switch cfg.StorageBackend {
	case StorageBackendLocal:
		cfg.UploadDir = getEnvDefault("GW_UPLOAD_DIR", "./uploads")
	case StorageBackendS3:
		cfg.S3Bucket, err = getEnvRequired("GW_S3_BUCKET")
		if err != nil {
			return nil, err
		}
		cfg.S3Prefix = strings.Trim(getEnvDefault("GW_S3_PREFIX", ""), "/")
		// Локальная директория используется для промежуточной буферизации
		cfg.UploadDir = getEnvDefault("GW_UPLOAD_DIR", os.TempDir())
	default:
		return nil, fmt.Errorf("GW_STORAGE_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.StorageBackend)
	}

	cfg.MaxUploadSize, err = getEnvPositiveInt64("GW_MAX_UPLOAD_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("GW_MAX_UPLOAD_SIZE: %w", err)
	}

	cfg.MaxJSONSize, err = getEnvPositiveInt64("GW_MAX_JSON_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("GW_MAX_JSON_SIZE: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("GW_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("GW_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("GW_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("GW_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("GW_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("GW_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("GW_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("GW_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Браузерные клиенты ---

	cfg.CORSAllowedOrigins = parseCSV(getEnvDefault("GW_CORS_ALLOWED_ORIGINS", ""))

	cfg.RateLimitRPM, err = getEnvInt("GW_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, fmt.Errorf("GW_RATE_LIMIT_RPM: %w", err)
	}
	if cfg.RateLimitRPM < 0 {
		return nil, fmt.Errorf("GW_RATE_LIMIT_RPM: значение не может быть отрицательным")
	}

	// --- Кэш ---

	cfg.DatasetCacheSize, err = getEnvInt("GW_DATASET_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("GW_DATASET_CACHE_SIZE: %w", err)
	}
	if cfg.DatasetCacheSize <= 0 {
		return nil, fmt.Errorf("GW_DATASET_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.DatasetCacheTTL, err = getEnvPositiveDuration("GW_DATASET_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_DATASET_CACHE_TTL: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("GW_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("GW_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись ответа ждёт AI-сервис, поэтому таймаут больше GW_AI_TIMEOUT
	cfg.HTTPWriteTimeout, err = getEnvDuration("GW_HTTP_WRITE_TIMEOUT", 180*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("GW_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("GW_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GW_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvPositiveInt64 возвращает положительное int64 значение или значение по умолчанию.
func getEnvPositiveInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("значение должно быть положительным, получено %d", n)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// validateHTTPURL проверяет, что строка — абсолютный http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("недопустимая схема %q, допустимые: http, https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("в URL %q отсутствует хост", raw)
	}
	return nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
