package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	// Discord
	DiscordToken string
	BotOwnerID   string

	// aRPG Timeline API
	APIBase      string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Database
	DatabaseType string
	DatabasePath string
	DatabaseURL  string

	// Polling
	PollIntervalMinutes int

	// Logging
	LogLevel string
)

// Load reads configuration from the environment, loading a .env file if present.
func Load() error {
	_ = godotenv.Load()

	DiscordToken = os.Getenv("DISCORD_TOKEN")
	BotOwnerID = os.Getenv("BOT_OWNER_ID")

	APIBase = os.Getenv("ARPG_API_BASE")
	TokenURL = os.Getenv("ARPG_TOKEN_URL")
	ClientID = os.Getenv("ARPG_CLIENT_ID")
	ClientSecret = os.Getenv("ARPG_CLIENT_SECRET")

	DatabaseType = getEnvOrDefault("DATABASE_TYPE", "sqlite")
	DatabasePath = getEnvOrDefault("DATABASE_PATH", "./data/seasonbot.db")
	DatabaseURL = os.Getenv("DATABASE_URL")

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	pollStr := getEnvOrDefault("POLL_INTERVAL_MINUTES", "5")
	poll, err := strconv.Atoi(pollStr)
	if err != nil {
		return fmt.Errorf("invalid POLL_INTERVAL_MINUTES: %w", err)
	}
	PollIntervalMinutes = poll

	if DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if APIBase == "" && TokenURL == "" {
		return fmt.Errorf("ARPG_API_BASE or ARPG_TOKEN_URL is required")
	}

	return nil
}

// GetDatabaseConnectionString returns the DSN matching DatabaseType.
func GetDatabaseConnectionString() string {
	if DatabaseType == "postgres" {
		return DatabaseURL
	}
	return DatabasePath
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
