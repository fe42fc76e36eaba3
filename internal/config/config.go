package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	MongoURI        string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Port              string
	GinMode           string
	Timezone          string
	AllowRegistration bool
	DefaultTaxRate    float64
	UploadDir         string
	TemplatesGlob     string
	AppBaseURL        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	LogLevel  string
	LogFormat string

	LoginRatePerMinute int
	PasswordResetTTL   time.Duration
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the process environment without touching .env files.
func FromEnv() Config {
	return Config{
		MongoURI:        getEnvOrDefault("MONGO_URI", ""),
		DBName:          getEnvOrDefault("DB_NAME", "stockpos"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 30, time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),

		Port:              getEnvOrDefault("PORT", "8080"),
		GinMode:           getEnvOrDefault("GIN_MODE", ""),
		Timezone:          getEnvOrDefault("APP_TIMEZONE", "Africa/Kampala"),
		AllowRegistration: getBoolEnv("ALLOW_REGISTRATION", false),
		DefaultTaxRate:    getFloatEnv("DEFAULT_TAX_RATE", 0),
		UploadDir:         getEnvOrDefault("UPLOAD_DIR", "./public/uploads"),
		TemplatesGlob:     getEnvOrDefault("TEMPLATES_GLOB", "templates/**/*"),
		AppBaseURL:        strings.TrimRight(getEnvOrDefault("APP_BASE_URL", "http://localhost:8080"), "/"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		SMTPHost:     getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUser:     getEnvOrDefault("SMTP_USER", ""),
		SMTPPassword: getEnvOrDefault("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", ""),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		LoginRatePerMinute: getIntEnv("LOGIN_RATE_PER_MINUTE", 10),
		PasswordResetTTL:   getDurationEnv("PASSWORD_RESET_TTL", 30, time.Minute),
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DefaultTaxRate < 0 || c.DefaultTaxRate > 1 {
		errs = append(errs, errors.New("DEFAULT_TAX_RATE must be between 0 and 1"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, errors.New("APP_TIMEZONE is not a known location"))
	}
	return errors.Join(errs...)
}

// Location returns the business timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
