package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type ShortfallPolicy string

const (
	// ShortfallPenalize ends the session anyway and records the whole charge as a penalty.
	ShortfallPenalize ShortfallPolicy = "penalize"
	// ShortfallReject refuses to end a session for a user without an active subscription.
	ShortfallReject ShortfallPolicy = "reject"
)

type Config struct {
	ServerPort         string
	CORSAllowedOrigins []string

	DBHost          string
	DBPort          int
	DBUser          string
	DBPassword      string
	DBName          string
	DBSslMode       string
	DBMaxOpenConns  int
	DBRunMigrations bool

	JWTSecret          string
	JWTExpirationHours time.Duration

	LogLevel  string
	LogFormat string

	// 0 disables expiry of reservations that were never started.
	ReservationHold       time.Duration
	ReservationSweepEvery time.Duration
	ShortfallPolicy       ShortfallPolicy
	QRImageSize           int

	AWSRegion       string
	ScannerQueueURL string
	IoTMQTTEndpoint string
}

func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	policy := ShortfallPolicy(strings.ToLower(getEnv("BILLING_SHORTFALL_POLICY", string(ShortfallPenalize))))
	if policy != ShortfallPenalize && policy != ShortfallReject {
		return nil, fmt.Errorf("BILLING_SHORTFALL_POLICY must be %q or %q, got %q", ShortfallPenalize, ShortfallReject, policy)
	}

	holdMinutes := getEnvInt("RESERVATION_HOLD_MINUTES", 0)
	if holdMinutes < 0 {
		return nil, fmt.Errorf("RESERVATION_HOLD_MINUTES must not be negative, got %d", holdMinutes)
	}

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnvInt("DB_PORT", 5432),
		DBUser:          getEnv("DB_USER", "parking"),
		DBPassword:      getEnv("DB_PASSWORD", "parking"),
		DBName:          getEnv("DB_NAME", "campus_parking"),
		DBSslMode:       getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBRunMigrations: getEnvBool("DB_RUN_MIGRATIONS", true),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-campus-parking-secret"),
		JWTExpirationHours: time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ReservationHold:       time.Duration(holdMinutes) * time.Minute,
		ReservationSweepEvery: time.Duration(getEnvInt("RESERVATION_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		ShortfallPolicy:       policy,
		QRImageSize:           getEnvInt("QR_IMAGE_SIZE", 256),

		AWSRegion:       getEnv("AWS_REGION", "ap-southeast-1"),
		ScannerQueueURL: getEnv("SCANNER_QUEUE_URL", ""),
		IoTMQTTEndpoint: getEnv("IOT_MQTT_ENDPOINT", ""),
	}, nil
}

// DatabaseURL is the URL form used by the migration runner.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSslMode)
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Debug().Str("key", key).Str("default", fallback).Msg("environment variable not set, using default")
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, strconv.Itoa(fallback))
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Int("default", fallback).Msg("invalid integer, using default")
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	raw := getEnv(key, strconv.FormatBool(fallback))
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Bool("default", fallback).Msg("invalid boolean, using default")
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
