// Пакет config — загрузка и валидация конфигурации Pastorale
// из переменных окружения (и необязательного .env-файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Pastorale.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Валидация запросов по OpenAPI-контракту
	OpenAPIValidation bool

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT (токены выдаёт внешний IdP) ---

	// Issuer JWT
	JWTIssuer string
	// URL JWKS endpoint
	JWTJWKSURL string
	// Допуск по времени при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Путь к CA-сертификату IdP (пусто — системный пул)
	JWKSCACert string

	// --- KPI и фиделизация ---

	// Версия таблицы KPI (пусто — текущая из реестра)
	KpiTableVersion string
	// Размер LRU-кэша таблиц KPI
	KpiTableCacheSize int
	// TTL записей кэша таблиц KPI
	KpiTableCacheTTL time.Duration
	// Число полных недель без присутствия до остановки сопровождения
	StoppedAfterWeeks int
	// Период фонового сканирования сопровождения (0 — отключено)
	StoppedScanInterval time.Duration
	// Минимум присутствий для статуса fidèle
	LoyaltyThreshold int

	// --- Уведомления ---

	// URL внешнего сервиса уведомлений (пусто — уведомления отключены)
	NotifyURL string
	// Таймаут запроса к сервису уведомлений
	NotifyTimeout time.Duration

	// --- topologymetrics ---

	// Группа сервиса в dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если существует файл из PA_ENV_FILE (по умолчанию .env), его значения
// дополняют окружение, не перезаписывая уже заданные переменные.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvDefault("PA_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PA_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("PA_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("PA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PA_LOG_LEVEL: %w", err)
	}

	// PA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// PA_OPENAPI_VALIDATION — валидация запросов (по умолчанию true)
	cfg.OpenAPIValidation, err = getEnvBool("PA_OPENAPI_VALIDATION", true)
	if err != nil {
		return nil, fmt.Errorf("PA_OPENAPI_VALIDATION: %w", err)
	}

	// --- PostgreSQL ---

	if err := cfg.loadDatabase(); err != nil {
		return nil, err
	}

	// --- JWT ---

	// PA_JWT_ISSUER — обязательный
	cfg.JWTIssuer, err = getEnvRequired("PA_JWT_ISSUER")
	if err != nil {
		return nil, err
	}

	// PA_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("PA_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// PA_JWT_LEEWAY — допуск по времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("PA_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_JWT_LEEWAY: %w", err)
	}

	// PA_JWKS_REFRESH_INTERVAL — обновление JWKS (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("PA_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PA_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// PA_JWKS_CLIENT_TIMEOUT — таймаут запросов к JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("PA_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// PA_JWKS_CA_CERT — CA-сертификат IdP (опционально)
	cfg.JWKSCACert = getEnvDefault("PA_JWKS_CA_CERT", "")

	// --- KPI и фиделизация ---

	// PA_KPI_TABLE_VERSION — версия таблицы KPI (по умолчанию текущая)
	cfg.KpiTableVersion = getEnvDefault("PA_KPI_TABLE_VERSION", "")

	// PA_KPI_TABLE_CACHE_SIZE — размер кэша таблиц (по умолчанию 16)
	cfg.KpiTableCacheSize, err = getEnvInt("PA_KPI_TABLE_CACHE_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("PA_KPI_TABLE_CACHE_SIZE: %w", err)
	}
	if cfg.KpiTableCacheSize < 1 {
		return nil, fmt.Errorf("PA_KPI_TABLE_CACHE_SIZE: значение %d должно быть >= 1", cfg.KpiTableCacheSize)
	}

	// PA_KPI_TABLE_CACHE_TTL — TTL кэша таблиц (по умолчанию 1h)
	cfg.KpiTableCacheTTL, err = getEnvDuration("PA_KPI_TABLE_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PA_KPI_TABLE_CACHE_TTL: %w", err)
	}

	// PA_STOPPED_AFTER_WEEKS — порог остановки сопровождения (по умолчанию 4)
	cfg.StoppedAfterWeeks, err = getEnvInt("PA_STOPPED_AFTER_WEEKS", 4)
	if err != nil {
		return nil, fmt.Errorf("PA_STOPPED_AFTER_WEEKS: %w", err)
	}
	if cfg.StoppedAfterWeeks < 1 || cfg.StoppedAfterWeeks > 52 {
		return nil, fmt.Errorf("PA_STOPPED_AFTER_WEEKS: значение %d вне допустимого диапазона 1-52", cfg.StoppedAfterWeeks)
	}

	// PA_STOPPED_SCAN_INTERVAL — период фонового сканирования (по умолчанию 24h, 0 — отключено)
	cfg.StoppedScanInterval, err = getEnvDuration("PA_STOPPED_SCAN_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PA_STOPPED_SCAN_INTERVAL: %w", err)
	}
	if cfg.StoppedScanInterval < 0 {
		return nil, fmt.Errorf("PA_STOPPED_SCAN_INTERVAL: значение %s не может быть отрицательным", cfg.StoppedScanInterval)
	}

	// PA_LOYALTY_THRESHOLD — минимум присутствий для fidèle (по умолчанию 3)
	cfg.LoyaltyThreshold, err = getEnvInt("PA_LOYALTY_THRESHOLD", 3)
	if err != nil {
		return nil, fmt.Errorf("PA_LOYALTY_THRESHOLD: %w", err)
	}
	if cfg.LoyaltyThreshold < 1 {
		return nil, fmt.Errorf("PA_LOYALTY_THRESHOLD: значение %d должно быть >= 1", cfg.LoyaltyThreshold)
	}

	// --- Уведомления ---

	// PA_NOTIFY_URL — сервис уведомлений (опционально)
	cfg.NotifyURL = strings.TrimRight(getEnvDefault("PA_NOTIFY_URL", ""), "/")

	// PA_NOTIFY_TIMEOUT — таймаут уведомлений (по умолчанию 5s)
	cfg.NotifyTimeout, err = getEnvDuration("PA_NOTIFY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_NOTIFY_TIMEOUT: %w", err)
	}

	// --- topologymetrics ---

	// PA_DEPHEALTH_GROUP — группа сервиса (по умолчанию pastorale)
	cfg.DephealthGroup = getEnvDefault("PA_DEPHEALTH_GROUP", "pastorale")

	// PA_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// PA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// LoadDatabase загружает только параметры PostgreSQL.
// Используется CLI-командами migrate и seed-kpi-tables, которым не нужен JWT.
func LoadDatabase() (*Config, error) {
	if err := loadDotEnv(getEnvDefault("PA_ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	cfg := &Config{}
	var err error
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PA_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("PA_LOG_FORMAT", "text")
	if err := cfg.loadDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadDatabase() error {
	var err error

	// PA_DB_HOST — обязательный
	c.DBHost, err = getEnvRequired("PA_DB_HOST")
	if err != nil {
		return err
	}

	// PA_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	c.DBPort, err = getEnvInt("PA_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("PA_DB_PORT: %w", err)
	}

	// PA_DB_NAME — обязательный
	c.DBName, err = getEnvRequired("PA_DB_NAME")
	if err != nil {
		return err
	}

	// PA_DB_USER — обязательный
	c.DBUser, err = getEnvRequired("PA_DB_USER")
	if err != nil {
		return err
	}

	// PA_DB_PASSWORD — обязательный
	c.DBPassword, err = getEnvRequired("PA_DB_PASSWORD")
	if err != nil {
		return err
	}

	// PA_DB_SSL_MODE — режим SSL (по умолчанию disable)
	c.DBSSLMode = getEnvDefault("PA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("PA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
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

// loadDotEnv подгружает .env-файл, если он есть.
// Отсутствие файла ошибкой не считается.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return nil
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

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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
