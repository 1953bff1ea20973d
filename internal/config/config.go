// Пакет config — загрузка и валидация конфигурации File Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации File Gateway.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Параметры подключения к PostgreSQL (индекс метаданных)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Корневая директория локального backend'а
	DataDir string

	// Объектное хранилище: при ObjectEnabled=true новые загрузки идут в него,
	// иначе в локальный backend. Уже загруженные файлы остаются привязанными
	// к своему backend'у через строку расположения.
	ObjectEnabled   bool
	ObjectEndpoint  string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectBucket    string
	ObjectRegion    string
	ObjectUseSSL    bool

	// URL JWKS endpoint для проверки подписи claim-токенов
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Статические API-ключи (второе звено цепочки аутентификации)
	APIKeys []string

	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Интервал запуска sweeper'а истёкших записей
	SweepInterval time.Duration

	// Размер LRU-кэша метаданных (записей)
	CacheSize int
	// TTL записи в кэше метаданных
	CacheTTL time.Duration

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FG_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("FG_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("FG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FG_LOG_LEVEL: %w", err)
	}

	// FG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// Подключение к PostgreSQL
	cfg.DBHost, err = getEnvRequired("FG_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("FG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FG_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("FG_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("FG_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("FG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("FG_DB_SSLMODE", "disable")

	// FG_DATA_DIR — обязательный, корень локального backend'а
	cfg.DataDir, err = getEnvRequired("FG_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// Объектное хранилище
	cfg.ObjectEnabled, err = getEnvBool("FG_OBJECT_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("FG_OBJECT_ENABLED: %w", err)
	}
	if cfg.ObjectEnabled {
		cfg.ObjectEndpoint, err = getEnvRequired("FG_OBJECT_ENDPOINT")
		if err != nil {
			return nil, err
		}
		cfg.ObjectAccessKey, err = getEnvRequired("FG_OBJECT_ACCESS_KEY")
		if err != nil {
			return nil, err
		}
		cfg.ObjectSecretKey, err = getEnvRequired("FG_OBJECT_SECRET_KEY")
		if err != nil {
			return nil, err
		}
		cfg.ObjectBucket, err = getEnvRequired("FG_OBJECT_BUCKET")
		if err != nil {
			return nil, err
		}
		cfg.ObjectRegion = getEnvDefault("FG_OBJECT_REGION", "")
		cfg.ObjectUseSSL, err = getEnvBool("FG_OBJECT_USE_SSL", false)
		if err != nil {
			return nil, fmt.Errorf("FG_OBJECT_USE_SSL: %w", err)
		}
	}

	// FG_JWKS_URL — обязательный
	cfg.JWKSUrl, err = getEnvRequired("FG_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// FG_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("FG_JWKS_CA_CERT", "")

	// FG_API_KEYS — статические ключи через запятую (опционально)
	cfg.APIKeys = splitAPIKeys(getEnvDefault("FG_API_KEYS", ""))

	// FG_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 1 GiB)
	cfg.MaxFileSize, err = getEnvInt64("FG_MAX_FILE_SIZE", 1073741824)
	if err != nil {
		return nil, fmt.Errorf("FG_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FG_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// FG_SWEEP_INTERVAL — интервал sweeper'а (по умолчанию 1h)
	cfg.SweepInterval, err = getEnvDuration("FG_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FG_SWEEP_INTERVAL: %w", err)
	}

	// FG_CACHE_SIZE — размер LRU-кэша метаданных (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("FG_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FG_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("FG_CACHE_SIZE: значение должно быть положительным")
	}

	// FG_CACHE_TTL — TTL кэша метаданных (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("FG_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FG_CACHE_TTL: %w", err)
	}

	// FG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("FG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// FG_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("FG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// FG_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("FG_DEPHEALTH_GROUP", "file-gateway")

	// DEPHEALTH_NAME — имя владельца пода для метки name (без префикса модуля)
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	return cfg, nil
}

// DatabaseDSN собирает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
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

// splitAPIKeys разбирает список ключей через запятую, отбрасывая пустые.
func splitAPIKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
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
