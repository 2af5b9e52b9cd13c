package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port      string
	RedisAddr string
	MongoURI  string
	MongoDB   string
	JWTSecret string

	// Matchmaking tuning
	SkillTolerance   int           // starting points window for pairing
	SkillWidenStep   int           // extra tolerance granted per widen interval
	SkillWidenEvery  time.Duration // how long a player waits before each widen
	HeartbeatGrace   time.Duration // queue entry lease length
	IdleMatchTimeout time.Duration // in_progress matches idle this long auto-cancel
}

func Load() *Config {
	return &Config{
		Port:      getEnvOrDefault("PORT", "8080"),
		RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		MongoURI:  os.Getenv("MONGO_URI"),
		MongoDB:   getEnvOrDefault("MONGO_DB", "nomercy"),
		JWTSecret: getEnvOrDefault("JWT_SECRET", "dev-secret"),

		SkillTolerance:   getEnvInt("MM_SKILL_TOLERANCE", 300),
		SkillWidenStep:   getEnvInt("MM_SKILL_WIDEN_STEP", 100),
		SkillWidenEvery:  getEnvDuration("MM_SKILL_WIDEN_EVERY", 30*time.Second),
		HeartbeatGrace:   getEnvDuration("QUEUE_HEARTBEAT_GRACE", 30*time.Second),
		IdleMatchTimeout: getEnvDuration("MATCH_IDLE_TIMEOUT", 45*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
