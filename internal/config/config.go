package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Booking rules and transaction limits
	Booking BookingConfig

	// Ticket / QR configuration
	Ticket TicketConfig

	// Redis configuration (idempotency guard)
	Redis RedisConfig

	// Message broker configuration
	AMQP AMQPConfig
	Kafka KafkaConfig

	// SMS configuration
	SMS SMSConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// BookingConfig holds the seat booking rules
type BookingConfig struct {
	TxTimeout          time.Duration
	ReservationTTL     time.Duration
	MaxSeatsPerRequest int
	Timezone           string
	Currency           string
	IdempotencyTTL     time.Duration
}

// TicketConfig holds QR rendering configuration
type TicketConfig struct {
	QRSigningKey string
	QRSize       int
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AMQPConfig holds RabbitMQ settings for the notification queue
type AMQPConfig struct {
	URL   string
	Queue string
}

// KafkaConfig holds payment event stream settings. No brokers means mock mode.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode   string // "dev" or "production"
	APIURL string
	ESMSQK string // Dialog URL message key
	Mask   string // Dialog SMS mask/source address
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("STORE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 300),
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		},
		Booking: BookingConfig{
			TxTimeout:          getEnvAsDuration("BOOKING_TX_TIMEOUT_SECONDS", 10),
			ReservationTTL:     getEnvAsDuration("BOOKING_RESERVATION_TTL_SECONDS", 600),
			MaxSeatsPerRequest: getEnvAsInt("BOOKING_MAX_SEATS_PER_REQUEST", 10),
			Timezone:           getEnv("BOOKING_TIMEZONE", "Asia/Colombo"),
			Currency:           getEnv("BOOKING_CURRENCY", "LKR"),
			IdempotencyTTL:     getEnvAsDuration("IDEMPOTENCY_TTL_SECONDS", 86400),
		},
		Ticket: TicketConfig{
			QRSigningKey: getEnv("TICKET_QR_SIGNING_KEY", ""),
			QRSize:       getEnvAsInt("TICKET_QR_SIZE", 256),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("RABBITMQ_URL", ""),
			Queue: getEnv("NOTIFY_QUEUE", "booking.notifications"),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvAsSlice("KAFKA_BROKERS", nil),
			TopicPrefix: getEnv("KAFKA_PAYMENT_TOPIC_PREFIX", "payment"),
		},
		SMS: SMSConfig{
			Mode:   getEnv("SMS_MODE", "dev"),
			APIURL: getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v1/message-via-url/create/url-campaign"),
			ESMSQK: getEnv("DIALOG_SMS_ESMSQK", ""),
			Mask:   getEnv("DIALOG_SMS_MASK", ""),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.TxTimeout <= 0 {
		return fmt.Errorf("BOOKING_TX_TIMEOUT_SECONDS must be positive")
	}

	if c.Booking.MaxSeatsPerRequest <= 0 {
		return fmt.Errorf("BOOKING_MAX_SEATS_PER_REQUEST must be positive")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	if c.SMS.Mode == "production" && c.SMS.ESMSQK == "" {
		return fmt.Errorf("DIALOG_SMS_ESMSQK is required in production mode")
	}

	return nil
}

// Location returns the timezone used for travel-date comparisons.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads a number of seconds.
func getEnvAsDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
