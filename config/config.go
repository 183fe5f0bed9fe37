package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds all runtime settings for the job engine
type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret string

	// Queue settings
	CandleConcurrency       int
	NotificationConcurrency int
	WorkerPollInterval      time.Duration
	StallTimeout            time.Duration

	// Scheduler settings. Each trigger carries its own retry base delay,
	// overridable per trigger and defaulting to TriggerBaseDelayMS.
	TriggerBaseDelayMS int
	TriggerBaseDelays  map[string]int

	// Health monitor settings
	HealthSampleInterval time.Duration
	CleanupInterval      time.Duration
	CleanupRetention     time.Duration

	// External endpoints
	CandleAPIURL  string
	EmailRelayURL string
	PushRelayURL  string
	MongoURI      string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	baseDelay := getEnvInt("TRIGGER_BASE_DELAY_MS", 2000)

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "jobs_db"),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),

		CandleConcurrency:       getEnvInt("CANDLE_CONCURRENCY", 5),
		NotificationConcurrency: getEnvInt("NOTIFICATION_CONCURRENCY", 3),
		WorkerPollInterval:      getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		StallTimeout:            getEnvDuration("QUEUE_STALL_TIMEOUT", 10*time.Minute),

		TriggerBaseDelayMS: baseDelay,
		TriggerBaseDelays: map[string]int{
			"candles-1m":    getEnvInt("TRIGGER_BASE_DELAY_MS_CANDLES_1M", baseDelay),
			"candles-5m":    getEnvInt("TRIGGER_BASE_DELAY_MS_CANDLES_5M", baseDelay),
			"candles-15m":   getEnvInt("TRIGGER_BASE_DELAY_MS_CANDLES_15M", baseDelay),
			"candles-1h":    getEnvInt("TRIGGER_BASE_DELAY_MS_CANDLES_1H", baseDelay),
			"candles-daily": getEnvInt("TRIGGER_BASE_DELAY_MS_CANDLES_DAILY", baseDelay),
			"weekly-digest": getEnvInt("TRIGGER_BASE_DELAY_MS_WEEKLY_DIGEST", baseDelay),
		},

		HealthSampleInterval: getEnvDuration("HEALTH_SAMPLE_INTERVAL", 5*time.Minute),
		CleanupInterval:      getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		CleanupRetention:     getEnvDuration("CLEANUP_RETENTION", 24*time.Hour),

		CandleAPIURL:  getEnv("CANDLE_API_URL", "https://api-finfo.vndirect.com.vn/v4/stock_prices"),
		EmailRelayURL: getEnv("EMAIL_RELAY_URL", ""),
		PushRelayURL:  getEnv("PUSH_RELAY_URL", ""),
		MongoURI:      getEnv("MONGODB_URI", ""),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	if !AppConfig.HasPostgres() {
		return nil, fmt.Errorf("no database host configured, set DB_HOST")
	}

	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// HasPostgres reports whether a Postgres host is configured
func (c *Config) HasPostgres() bool {
	return c.DBHost != ""
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
