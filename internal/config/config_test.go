package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"GW_JWT_SECRET":  "0123456789abcdef0123",
		"GW_DB_HOST":     "localhost",
		"GW_DB_NAME":     "insight",
		"GW_DB_USER":     "insight",
		"GW_DB_PASSWORD": "secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.AIServiceURL != "http://localhost:5001" {
		t.Errorf("AIServiceURL = %q, ожидается http://localhost:5001", cfg.AIServiceURL)
	}
	if cfg.StorageBackend != StorageBackendLocal {
		t.Errorf("StorageBackend = %q, ожидается local", cfg.StorageBackend)
	}
	if cfg.UploadDir != "./uploads" {
		t.Errorf("UploadDir = %q, ожидается ./uploads", cfg.UploadDir)
	}
	if cfg.MaxUploadSize != 100<<20 {
		t.Errorf("MaxUploadSize = %d, ожидается %d", cfg.MaxUploadSize, 100<<20)
	}
	if cfg.AITimeout != 120*time.Second {
		t.Errorf("AITimeout = %v, ожидается 120s", cfg.AITimeout)
	}
	if cfg.RateLimitRPM != 120 {
		t.Errorf("RateLimitRPM = %d, ожидается 120", cfg.RateLimitRPM)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Errorf("CORSAllowedOrigins = %v, ожидается nil", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_TrimsServiceURL(t *testing.T) {
	envs := minimalEnvs()
	envs["GW_AI_SERVICE_URL"] = "http://analytics:5001/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.AIServiceURL != "http://analytics:5001" {
		t.Errorf("AIServiceURL = %q, ожидается без завершающего слеша", cfg.AIServiceURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"пустой секрет", "GW_JWT_SECRET", "", "GW_JWT_SECRET"},
		{"короткий секрет", "GW_JWT_SECRET", "short", "GW_JWT_SECRET"},
		{"некорректный URL", "GW_AI_SERVICE_URL", "ftp://analytics", "GW_AI_SERVICE_URL"},
		{"неизвестный бэкенд", "GW_STORAGE_BACKEND", "nfs", "GW_STORAGE_BACKEND"},
		{"s3 без бакета", "GW_STORAGE_BACKEND", "s3", "GW_S3_BUCKET"},
		{"нулевой лимит", "GW_MAX_UPLOAD_SIZE", "0", "GW_MAX_UPLOAD_SIZE"},
		{"некорректный таймаут", "GW_AI_TIMEOUT", "soon", "GW_AI_TIMEOUT"},
		{"отрицательный rate limit", "GW_RATE_LIMIT_RPM", "-1", "GW_RATE_LIMIT_RPM"},
		{"формат логов", "GW_LOG_FORMAT", "xml", "GW_LOG_FORMAT"},
		{"ssl mode", "GW_DB_SSL_MODE", "maybe", "GW_DB_SSL_MODE"},
		{"health path", "GW_AI_HEALTH_PATH", "health", "GW_AI_HEALTH_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() должен вернуть ошибку")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_JWKSWithoutSecret(t *testing.T) {
	envs := minimalEnvs()
	envs["GW_JWT_SECRET"] = ""
	envs["GW_JWKS_URL"] = "https://idp.example.com/jwks"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.JWKSURL != "https://idp.example.com/jwks" {
		t.Errorf("JWKSURL = %q", cfg.JWKSURL)
	}
}

func TestLoad_S3Backend(t *testing.T) {
	envs := minimalEnvs()
	envs["GW_STORAGE_BACKEND"] = "s3"
	envs["GW_S3_BUCKET"] = "datasets"
	envs["GW_S3_PREFIX"] = "/uploads/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.S3Bucket != "datasets" {
		t.Errorf("S3Bucket = %q, ожидается datasets", cfg.S3Bucket)
	}
	if cfg.S3Prefix != "uploads" {
		t.Errorf("S3Prefix = %q, ожидается uploads", cfg.S3Prefix)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" http://a.local, ,http://b.local ")
	if len(got) != 2 || got[0] != "http://a.local" || got[1] != "http://b.local" {
		t.Errorf("parseCSV = %v", got)
	}
}

func TestDatabaseURL_NoPassword(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if strings.Contains(cfg.DatabaseURL(), "secret") {
		t.Errorf("DatabaseURL не должен содержать пароль: %s", cfg.DatabaseURL())
	}
}

func TestMigrateURL_EscapesCredentials(t *testing.T) {
	envs := minimalEnvs()
	envs["GW_DB_PASSWORD"] = "p@ss/word"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	got := cfg.MigrateURL()
	if !strings.HasPrefix(got, "pgx5://") {
		t.Errorf("ожидалась схема pgx5, получено %s", got)
	}
	if strings.Contains(got, "p@ss/word") {
		t.Errorf("пароль должен быть экранирован: %s", got)
	}
	if !strings.HasSuffix(got, "sslmode=disable") {
		t.Errorf("ожидался sslmode=disable: %s", got)
	}
}
