package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Routing  RoutingConfig
	Matching MatchingConfig
	Tracking TrackingConfig
	NewRelic NewRelicConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds the location-ingestion stream configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Enabled bool
}

// RoutingConfig selects and configures the route provider.
type RoutingConfig struct {
	// Provider is "osrm" or "google"; anything else disables remote
	// routing and every plan resolves to the straight-line fallback.
	Provider       string
	OSRMEndpoint   string
	GoogleAPIKey   string
	RequestTimeout time.Duration
}

// MatchingConfig holds candidate dispatch parameters.
type MatchingConfig struct {
	SearchRadiusKm  float64
	CandidateWait   time.Duration
	DefaultSpeedMps float64
}

// TrackingConfig holds route-tracking thresholds.
type TrackingConfig struct {
	ArrivalRadiusM    float64
	MoveThresholdM    float64
	RefetchThresholdM float64
	SampleInterval    time.Duration
	MinBroadcastDistM float64
	TruncationWindow  int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ride_hailing"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "driver-locations"),
			GroupID: getEnv("KAFKA_GROUP", "ridehail-location-consumer"),
			Enabled: getBoolEnv("KAFKA_ENABLED", false),
		},
		Routing: RoutingConfig{
			Provider:       getEnv("ROUTING_PROVIDER", "osrm"),
			OSRMEndpoint:   getEnv("OSRM_ENDPOINT", "http://localhost:5000"),
			GoogleAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
			RequestTimeout: getDurationEnv("ROUTING_TIMEOUT", 2*time.Second),
		},
		Matching: MatchingConfig{
			SearchRadiusKm:  getFloatEnv("MATCH_RADIUS_KM", 5.0),
			CandidateWait:   getDurationEnv("MATCH_CANDIDATE_WAIT", 45*time.Second),
			DefaultSpeedMps: getFloatEnv("MATCH_DEFAULT_SPEED_MPS", 8.0),
		},
		Tracking: TrackingConfig{
			ArrivalRadiusM:    getFloatEnv("TRACK_ARRIVAL_RADIUS_M", 30),
			MoveThresholdM:    getFloatEnv("TRACK_MOVE_THRESHOLD_M", 5),
			RefetchThresholdM: getFloatEnv("TRACK_REFETCH_THRESHOLD_M", 55),
			SampleInterval:    getDurationEnv("TRACK_SAMPLE_INTERVAL", 5*time.Second),
			MinBroadcastDistM: getFloatEnv("TRACK_MIN_BROADCAST_DIST_M", 10),
			TruncationWindow:  getIntEnv("TRACK_TRUNCATION_WINDOW", 50),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridehail-core"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
