package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverCouchDB = "couchdb"
	DriverMemory  = "memory"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// URL is the CouchDB connection string with credentials embedded.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ClientConfig drives the local client: where history lives on disk and how
// it reaches the history service.
type ClientConfig struct {
	ServerURL         string
	Token             string
	DeviceID          string
	DataDir           string
	SyncInterval      time.Duration
	VisibilityBackoff time.Duration
	HTTPTimeout       time.Duration
	Logging           LoggingConfig
}

// DBPath is the SQLite file holding the local history.
func (c *ClientConfig) DBPath() string {
	return filepath.Join(c.DataDir, "imotara.db")
}

// Online reports whether a remote is configured at all.
func (c *ClientConfig) Online() bool {
	return c.ServerURL != ""
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	refreshExp, err := getEnvAsDuration("REFRESH_TOKEN_EXPIRATION", 168*time.Hour)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverCouchDB))
	if driver != DriverCouchDB && driver != DriverMemory {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want %s or %s", driver, DriverCouchDB, DriverMemory)
	}

	env := getEnv("ENV", "development")
	secret := getEnv("JWT_SECRET", "dev-secret-change-in-production")
	if env == "production" && secret == "dev-secret-change-in-production" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  env,
		},
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "imotara_history"),
		},
		JWT: JWTConfig{
			Secret:                 secret,
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Device-ID"),
		},
		Logging: loadLogging("LOG"),
	}, nil
}

func LoadClient() (*ClientConfig, error) {
	godotenv.Load()

	interval, err := getEnvAsDuration("IMOTARA_SYNC_INTERVAL", 45*time.Second)
	if err != nil {
		return nil, err
	}
	backoff, err := getEnvAsDuration("IMOTARA_VISIBILITY_BACKOFF", 3*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvAsDuration("IMOTARA_HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("IMOTARA_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		dataDir = filepath.Join(home, ".imotara")
	}

	deviceID := getEnv("IMOTARA_DEVICE_ID", "")
	if deviceID == "" {
		deviceID, _ = os.Hostname()
	}

	return &ClientConfig{
		ServerURL:         strings.TrimRight(getEnv("IMOTARA_SERVER_URL", ""), "/"),
		Token:             getEnv("IMOTARA_TOKEN", ""),
		DeviceID:          deviceID,
		DataDir:           dataDir,
		SyncInterval:      interval,
		VisibilityBackoff: backoff,
		HTTPTimeout:       timeout,
		Logging:           loadLogging("IMOTARA_LOG"),
	}, nil
}

func loadLogging(prefix string) LoggingConfig {
	return LoggingConfig{
		File:       getEnv(prefix+"_FILE", ""),
		MaxSizeMB:  getEnvAsInt(prefix+"_MAX_SIZE_MB", 10),
		MaxBackups: getEnvAsInt(prefix+"_MAX_BACKUPS", 3),
		MaxAgeDays: getEnvAsInt(prefix+"_MAX_AGE_DAYS", 28),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
