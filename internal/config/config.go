package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for room persistence
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
)

// Config holds the room server configuration
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Store selects the room repository: "postgres", "redis" or "memory"
	Store     string
	RedisAddr string

	// Optional: without a key suggestions come from the rule-based engine
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	ServerPort string
	ServerHost string

	MaxConnectionsPerRoom int
	AllowedOrigins        []string

	// Observability
	TracingEnabled bool
	JaegerEndpoint string
}

// ClientConfig holds the synchronization client configuration
type ClientConfig struct {
	BaseURL        string
	WSURL          string
	Language       string
	DebounceDelay  time.Duration
	EchoWindow     time.Duration
	RequestTimeout time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "codesync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Store:     getEnv("STORE", StorePostgres),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),

		ServerPort: getEnv("SERVER_PORT", "8000"),
		ServerHost: getEnv("SERVER_HOST", "127.0.0.1"),

		MaxConnectionsPerRoom: getEnvInt("MAX_CONNECTIONS_PER_ROOM", 2),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS",
			"http://localhost:3000,http://127.0.0.1:3000,http://localhost:5173,http://127.0.0.1:5173,http://localhost:8000,null"),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	switch cfg.Store {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("STORE must be %q, %q or %q, got %q", StorePostgres, StoreRedis, StoreMemory, cfg.Store)
	}
	if cfg.MaxConnectionsPerRoom < 1 {
		return nil, fmt.Errorf("MAX_CONNECTIONS_PER_ROOM must be positive, got %d", cfg.MaxConnectionsPerRoom)
	}

	return cfg, nil
}

// LoadClient reads the client configuration. The websocket base defaults to
// the HTTP base with its scheme swapped.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		BaseURL:        strings.TrimRight(getEnv("CODESYNC_BASE_URL", "http://127.0.0.1:8000"), "/"),
		WSURL:          strings.TrimRight(getEnv("CODESYNC_WS_URL", ""), "/"),
		Language:       getEnv("CODESYNC_LANGUAGE", "python"),
		DebounceDelay:  getEnvDuration("CODESYNC_DEBOUNCE", 600*time.Millisecond),
		EchoWindow:     getEnvDuration("CODESYNC_ECHO_WINDOW", 10*time.Millisecond),
		RequestTimeout: getEnvDuration("CODESYNC_REQUEST_TIMEOUT", 10*time.Second),
	}

	if cfg.WSURL == "" {
		ws, err := WebSocketBase(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = ws
	}

	return cfg, nil
}

// WebSocketBase converts an http(s) base URL into its ws(s) counterpart
func WebSocketBase(baseURL string) (string, error) {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://"), nil
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://"), nil
	}
	return "", fmt.Errorf("unsupported base URL scheme: %q", baseURL)
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
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
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("⚠️  Invalid %s=%q, using default %t", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
