package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Extraction ExtractionConfig
	Reminders  ReminderConfig
	Auth       AuthConfig
	LogDir     string
	Location   *time.Location
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr string
	DB   int
}

type KafkaConfig struct {
	Brokers       []string
	ReminderTopic string
	Enabled       bool
}

type ExtractionConfig struct {
	URL         string
	APIKey      string
	Timeout     time.Duration
	Concurrency int
}

type ReminderConfig struct {
	TickInterval time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

// maxReminderTick is the coarsest tick that still visits every one-minute
// firing window.
const maxReminderTick = 60 * time.Second

func Load() *Config {
	tick := time.Duration(getEnvInt("REMINDER_TICK_SECONDS", 30)) * time.Second
	if tick <= 0 || tick > maxReminderTick {
		tick = maxReminderTick
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_DSN", "file:wallet.db?cache=shared"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
			DB:   getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			ReminderTopic: getEnv("KAFKA_REMINDER_TOPIC", "wallet.reminders"),
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
		},
		Extraction: ExtractionConfig{
			URL:         getEnv("EXTRACTION_URL", "http://localhost:8090/extract"),
			APIKey:      getEnv("EXTRACTION_API_KEY", ""),
			Timeout:     time.Duration(getEnvInt("EXTRACTION_TIMEOUT_SECONDS", 60)) * time.Second,
			Concurrency: getEnvInt("IMPORT_CONCURRENCY", 4),
		},
		Reminders: ReminderConfig{
			TickInterval: tick,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LogDir:   getEnv("LOG_DIR", "logs"),
		Location: getEnvLocation("TIMEZONE", time.Local),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvLocation(key string, defaultValue *time.Location) *time.Location {
	if value := os.Getenv(key); value != "" {
		if loc, err := time.LoadLocation(value); err == nil {
			return loc
		}
	}
	return defaultValue
}
