package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Admin     AdminConfig     `json:"-"`
	Game      GameConfig      `json:"game"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"db_name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Codes       string `json:"codes"`
	Redemptions string `json:"redemptions"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
	TrustProxy    bool   `json:"trust_proxy"` // доверять X-Real-IP / X-Forwarded-For
}

// AdminConfig хранит общий секрет администратора
type AdminConfig struct {
	Password string
}

// GameConfig описывает параметры игры и выдачи кодов
type GameConfig struct {
	ChestCount            int    `json:"chest_count"`
	MaxIssueCount         int    `json:"max_issue_count"`
	DefaultListLimit      int    `json:"default_list_limit"`
	PrizePool             string `json:"prize_pool"` // label|value|weight;... пусто = пул по умолчанию
	StatsCacheTTLMinutes  int    `json:"stats_cache_ttl_minutes"`
	StatsMaxRangeDays     int    `json:"stats_max_range_days"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// Load загружает конфигурацию из .env и переменных окружения
func Load() *Config {
	// .env необязателен: в контейнере всё приходит через окружение
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "3000"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "treasure_user"),
			Password:     getEnv("DB_PASSWORD", "treasure_pass"),
			DBName:       getEnv("DB_NAME", "treasure"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", true),
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "treasure-chest"),
			Topics: Topics{
				Codes:       getEnv("KAFKA_TOPIC_CODES", "codes"),
				Redemptions: getEnv("KAFKA_TOPIC_REDEMPTIONS", "redemptions"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
			TrustProxy:    getEnvAsBool("RATE_LIMIT_TRUST_PROXY", false),
		},
		Admin: AdminConfig{
			Password: getEnv("ADMIN_PASSWORD", "change-me"),
		},
		Game: GameConfig{
			ChestCount:            getEnvAsInt("GAME_CHEST_COUNT", 6),
			MaxIssueCount:         getEnvAsInt("GAME_MAX_ISSUE_COUNT", 500),
			DefaultListLimit:      getEnvAsInt("GAME_DEFAULT_LIST_LIMIT", 100),
			PrizePool:             getEnv("GAME_PRIZE_POOL", ""),
			StatsCacheTTLMinutes:  getEnvAsInt("GAME_STATS_CACHE_TTL_MINUTES", 5),
			StatsMaxRangeDays:     getEnvAsInt("GAME_STATS_MAX_RANGE_DAYS", 365),
			RequestTimeoutSeconds: getEnvAsInt("GAME_REQUEST_TIMEOUT_SECONDS", 5),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
