package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/joho/godotenv"
)

// DefaultPort is the documented listening port for the sync endpoint,
// chosen to stay clear of common local services. Change via PORT.
const DefaultPort = "3260"

// Config holds all application configuration
type Config struct {
	Port         string
	DeviceName   string
	DeviceRole   models.DeviceRole
	DataDir      string
	SyncInterval time.Duration
	// OperatorPINHash is a bcrypt hash guarding conflict resolution and
	// peer revocation routes. Empty disables the guard (development).
	OperatorPINHash string
	Advertise       bool
	Database        DatabaseConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	role, err := models.ParseDeviceRole(getEnv("DEVICE_ROLE", string(models.RoleMemberKiosk)))
	if err != nil {
		return nil, fmt.Errorf("DEVICE_ROLE: %w", err)
	}

	intervalSec, err := strconv.Atoi(getEnv("SYNC_INTERVAL_SEC", "60"))
	if err != nil || intervalSec < 5 {
		return nil, fmt.Errorf("SYNC_INTERVAL_SEC must be an integer >= 5")
	}

	return &Config{
		Port:            getEnv("PORT", DefaultPort),
		DeviceName:      getEnv("DEVICE_NAME", "clubsync device"),
		DeviceRole:      role,
		DataDir:         getEnv("DATA_DIR", ".clubsync"),
		SyncInterval:    time.Duration(intervalSec) * time.Second,
		OperatorPINHash: os.Getenv("OPERATOR_PIN_HASH"),
		Advertise:       getEnv("ADVERTISE", "true") == "true",
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "clubsync"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
