package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	DiscordToken                string
	DatabaseType                string
	DatabasePath                string
	PostgresHost                string
	PostgresPort                string
	PostgresUser                string
	PostgresPassword            string
	PostgresDB                  string
	DeveloperAccess             []string
	LegacyImportDir             string
	ScanIntervalSeconds         int
	StatusUpdateIntervalMinutes int
	StatsFlushIntervalSeconds   int
	LogChannelID                string
)

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	DiscordToken = os.Getenv("DISCORD_TOKEN")
	if DiscordToken == "" {
		log.Fatal("DISCORD_TOKEN is not set")
	}

	DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	DatabasePath = getEnv("DATABASE_PATH", "./omegabot.db")
	PostgresHost = getEnv("POSTGRES_HOST", "localhost")
	PostgresPort = getEnv("POSTGRES_PORT", "5432")
	PostgresUser = os.Getenv("POSTGRES_USER")
	PostgresPassword = os.Getenv("POSTGRES_PASSWORD")
	PostgresDB = getEnv("POSTGRES_DB", "omegabot")

	DeveloperAccess = splitList(os.Getenv("DEVELOPER_ACCESS"))
	LegacyImportDir = getEnv("LEGACY_IMPORT_DIR", "./infos")
	ScanIntervalSeconds = getEnvInt("SCAN_INTERVAL_SECONDS", 5)
	StatusUpdateIntervalMinutes = getEnvInt("STATUS_UPDATE_INTERVAL_MINUTES", 30)
	StatsFlushIntervalSeconds = getEnvInt("STATS_FLUSH_INTERVAL_SECONDS", 30)
	LogChannelID = os.Getenv("LOG_CHANNEL_ID")
}

// GetDatabaseConnectionString returns the DSN matching DatabaseType.
func GetDatabaseConnectionString() string {
	switch DatabaseType {
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			PostgresHost, PostgresPort, PostgresUser, PostgresPassword, PostgresDB)
	default:
		return DatabasePath
	}
}

// IsDeveloper reports whether the member ID is on the developer access list.
func IsDeveloper(memberID string) bool {
	for _, id := range DeveloperAccess {
		if id == memberID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, fallback)
		return fallback
	}
	return n
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
