package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr     string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string
	KafkaTopic   string

	MetricsInterval time.Duration
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8041"),
		RedisAddr:    getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:    getEnv("REDIS_PASS", ""),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "ledger.events"),

		MetricsInterval: getEnvDuration("METRICS_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
