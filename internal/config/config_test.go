package config

import (
	"log/slog"
	"testing"
	"time"
)

// setRequiredEnv задаёт минимальный набор обязательных переменных окружения.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FG_DB_HOST", "localhost")
	t.Setenv("FG_DB_NAME", "filegw")
	t.Setenv("FG_DB_USER", "filegw")
	t.Setenv("FG_DB_PASSWORD", "secret")
	t.Setenv("FG_DATA_DIR", "/var/lib/file-gateway")
	t.Setenv("FG_JWKS_URL", "https://auth.example.com/jwks.json")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8020 {
		t.Errorf("Port по умолчанию = %d, ожидалось 8020", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel по умолчанию = %v, ожидалось info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat по умолчанию = %q, ожидалось json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort по умолчанию = %d, ожидалось 5432", cfg.DBPort)
	}
	if cfg.ObjectEnabled {
		t.Error("ObjectEnabled по умолчанию должен быть false")
	}
	if cfg.MaxFileSize != 1073741824 {
		t.Errorf("MaxFileSize по умолчанию = %d, ожидалось 1073741824", cfg.MaxFileSize)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("SweepInterval по умолчанию = %v, ожидалось 1h", cfg.SweepInterval)
	}
	if cfg.CacheSize != 1024 {
		t.Errorf("CacheSize по умолчанию = %d, ожидалось 1024", cfg.CacheSize)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL по умолчанию = %v, ожидалось 5m", cfg.CacheTTL)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout по умолчанию = %v, ожидалось 5s", cfg.ShutdownTimeout)
	}
	if len(cfg.APIKeys) != 0 {
		t.Errorf("APIKeys по умолчанию должен быть пустым, получено %v", cfg.APIKeys)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		skip string
	}{
		{"нет FG_DB_HOST", "FG_DB_HOST"},
		{"нет FG_DB_NAME", "FG_DB_NAME"},
		{"нет FG_DB_USER", "FG_DB_USER"},
		{"нет FG_DB_PASSWORD", "FG_DB_PASSWORD"},
		{"нет FG_DATA_DIR", "FG_DATA_DIR"},
		{"нет FG_JWKS_URL", "FG_JWKS_URL"},
	}

	all := map[string]string{
		"FG_DB_HOST":     "localhost",
		"FG_DB_NAME":     "filegw",
		"FG_DB_USER":     "filegw",
		"FG_DB_PASSWORD": "secret",
		"FG_DATA_DIR":    "/var/lib/file-gateway",
		"FG_JWKS_URL":    "https://auth.example.com/jwks.json",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range all {
				if k == tt.skip {
					t.Setenv(k, "")
					continue
				}
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s должен вернуть ошибку", tt.skip)
			}
		})
	}
}

func TestLoadObjectStoreRequiresCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FG_OBJECT_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Error("Load() с FG_OBJECT_ENABLED=true без endpoint'а должен вернуть ошибку")
	}

	t.Setenv("FG_OBJECT_ENDPOINT", "minio:9000")
	t.Setenv("FG_OBJECT_ACCESS_KEY", "minioadmin")
	t.Setenv("FG_OBJECT_SECRET_KEY", "minioadmin")
	t.Setenv("FG_OBJECT_BUCKET", "files")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() с полной конфигурацией объектного хранилища вернул ошибку: %v", err)
	}
	if cfg.ObjectBucket != "files" {
		t.Errorf("ObjectBucket = %q, ожидалось files", cfg.ObjectBucket)
	}
}

func TestLoadAPIKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FG_API_KEYS", "key-one, key-two ,,key-three")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	want := []string{"key-one", "key-two", "key-three"}
	if len(cfg.APIKeys) != len(want) {
		t.Fatalf("APIKeys: получено %d ключей, ожидалось %d", len(cfg.APIKeys), len(want))
	}
	for i, k := range want {
		if cfg.APIKeys[i] != k {
			t.Errorf("APIKeys[%d] = %q, ожидалось %q", i, cfg.APIKeys[i], k)
		}
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"нечисловой порт", "FG_PORT", "abc"},
		{"порт вне диапазона", "FG_PORT", "70000"},
		{"недопустимый уровень логов", "FG_LOG_LEVEL", "verbose"},
		{"недопустимый формат логов", "FG_LOG_FORMAT", "xml"},
		{"некорректная длительность", "FG_SWEEP_INTERVAL", "1 час"},
		{"отрицательный лимит размера", "FG_MAX_FILE_SIZE", "-1"},
		{"нулевой размер кэша", "FG_CACHE_SIZE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", tt.key, tt.value)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5433,
		DBName:     "filegw",
		DBUser:     "gw",
		DBPassword: "pw",
		DBSSLMode:  "require",
	}

	want := "postgres://gw:pw@db.example.com:5433/filegw?sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидалось %q", got, want)
	}
}
