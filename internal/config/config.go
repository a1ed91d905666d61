package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Addr      string
	DSN       string
	JWTSecret string
	RedisAddr string
	AppEnv    string
}

// Load reads .env (if present) and falls back to real environment
// variables. Loading happens before the logger exists, so instead of
// printing, Load returns a notice for the caller to log; it is empty
// when a .env file was found.
func Load() (*Config, string) {
	notice := ""
	if err := godotenv.Load(); err != nil {
		notice = "no .env file found, using environment variables"
	}

	return &Config{
		Addr:      getEnv("ADDR", ":8080"),
		DSN:       getEnv("DB_DSN", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),
		RedisAddr: getEnv("REDIS_ADDR", ""),
		AppEnv:    getEnv("APP_ENV", "development"),
	}, notice
}

func (c *Config) Development() bool {
	return c.AppEnv != "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
