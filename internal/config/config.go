package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
	Collab   CollabConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CollabLogFilePath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection      string // empty runs comments and activities in memory
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type AuthConfig struct {
	JWTSecret string
}

type CollabConfig struct {
	LockTTL          time.Duration
	LockRenew        time.Duration
	PatchDebounce    time.Duration
	SyncTimeout      time.Duration
	ActivityCapacity int
	LockBackend      string // "memory" or "redis"
	ActivityTopic    string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CollabLogFilePath:  getEnv("COLLAB_LOG_FILE_PATH", "logs/collab.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection:      getEnv("DB_CONNECTION_STRING", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsSeconds("DB_CONN_MAX_LIFETIME_SECONDS", time.Hour),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "NovelSync"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Collab: loadCollab(),
	}
}

func loadCollab() CollabConfig {
	ttl := getEnvAsSeconds("COLLAB_LOCK_TTL_SECONDS", 30*time.Second)
	renew := getEnvAsSeconds("COLLAB_LOCK_RENEW_SECONDS", 15*time.Second)
	// Renewal must beat expiry or locks lapse while held.
	if renew >= ttl {
		log.Printf("Warn: COLLAB_LOCK_RENEW_SECONDS (%s) must be below the lock TTL (%s), using %s", renew, ttl, ttl/2)
		renew = ttl / 2
	}

	return CollabConfig{
		LockTTL:          ttl,
		LockRenew:        renew,
		PatchDebounce:    time.Duration(getEnvAsInt("COLLAB_PATCH_DEBOUNCE_MS", 350)) * time.Millisecond,
		SyncTimeout:      getEnvAsSeconds("COLLAB_SYNC_TIMEOUT_SECONDS", 5*time.Second),
		ActivityCapacity: getEnvAsInt("COLLAB_ACTIVITY_CAPACITY", 200),
		LockBackend:      getEnv("COLLAB_LOCK_BACKEND", "memory"),
		ActivityTopic:    getEnv("COLLAB_ACTIVITY_TOPIC", "COLLAB_ACTIVITY"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSeconds(key string, fallback time.Duration) time.Duration {
	if value := getEnvAsInt(key, 0); value > 0 {
		return time.Duration(value) * time.Second
	}
	return fallback
}
