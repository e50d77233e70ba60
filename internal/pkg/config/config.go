package config

import (
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Gateway modes
const (
	GatewayModeOpenAI   = "openai"
	GatewayModeScripted = "scripted"
)

// Snapshot store backends
const (
	SnapshotStoreNone     = "none"
	SnapshotStoreRedis    = "redis"
	SnapshotStorePostgres = "postgres"
)

type Config struct {
	// Environment
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Server Configuration
	ServerHost string `mapstructure:"SERVER_HOST"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Session Configuration
	SessionTTLMinutes    int    `mapstructure:"SESSION_TTL_MINUTES"`
	DefaultImageModel    string `mapstructure:"DEFAULT_IMAGE_MODEL"`
	DefaultAspectRatio   string `mapstructure:"DEFAULT_ASPECT_RATIO"`
	DefaultMaxIterations int    `mapstructure:"DEFAULT_MAX_ITERATIONS"`

	// Gateway Configuration
	GatewayMode           string `mapstructure:"GATEWAY_MODE"`
	GatewayTimeoutSeconds int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`

	// OpenAI Configuration (prompt synthesis, judge, image model "openai")
	OpenAIAPIKey      string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIPromptModel string `mapstructure:"OPENAI_PROMPT_MODEL"`
	OpenAIJudgeModel  string `mapstructure:"OPENAI_JUDGE_MODEL"`
	OpenAIImageModel  string `mapstructure:"OPENAI_IMAGE_MODEL"`

	// Grok Configuration (image model "grok")
	GrokAPIKey     string `mapstructure:"GROK_API_KEY"`
	GrokBaseURL    string `mapstructure:"GROK_BASE_URL"`
	GrokImageModel string `mapstructure:"GROK_IMAGE_MODEL"`

	// Gemini Configuration (image model "nanobanana")
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL    string `mapstructure:"GEMINI_BASE_URL"`
	GeminiImageModel string `mapstructure:"GEMINI_IMAGE_MODEL"`

	// Snapshot persistence
	SnapshotStore string `mapstructure:"SNAPSHOT_STORE"`

	// Database Configuration
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// Redis Configuration
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     int    `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Worker Configuration
	QueueEnabled     bool `mapstructure:"QUEUE_ENABLED"`
	QueueConcurrency int  `mapstructure:"QUEUE_CONCURRENCY"`
	QueueMaxRetries  int  `mapstructure:"QUEUE_MAX_RETRIES"`

	// Image storage
	StorageBasePath string `mapstructure:"STORAGE_BASE_PATH"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // minutes
	MaxConnIdleTime int // minutes
}

// CacheConfig holds Redis connection settings
type CacheConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	PoolSize     int
	MinIdleConns int
}

// QueueConfig holds Asynq settings
type QueueConfig struct {
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	DialTimeout    int // seconds
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	Concurrency    int
	MaxRetries     int
	StrictPriority bool
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(".env"); err != nil {
		// Try parent directory
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using environment variables only")
		}
	}

	config := &Config{}

	// Set defaults
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8080")

	// Session defaults
	viper.SetDefault("SESSION_TTL_MINUTES", 24*60)
	viper.SetDefault("DEFAULT_IMAGE_MODEL", "openai")
	viper.SetDefault("DEFAULT_ASPECT_RATIO", "square")
	viper.SetDefault("DEFAULT_MAX_ITERATIONS", 3)

	// Gateway defaults
	viper.SetDefault("GATEWAY_MODE", GatewayModeOpenAI)
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 120)
	viper.SetDefault("OPENAI_PROMPT_MODEL", "gpt-4.1")
	viper.SetDefault("OPENAI_JUDGE_MODEL", "gpt-4.1")
	viper.SetDefault("OPENAI_IMAGE_MODEL", "dall-e-3")
	viper.SetDefault("GROK_BASE_URL", "https://api.x.ai/v1")
	viper.SetDefault("GROK_IMAGE_MODEL", "grok-2-image")
	viper.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	viper.SetDefault("GEMINI_IMAGE_MODEL", "imagen-3.0-generate-002")

	// Persistence defaults
	viper.SetDefault("SNAPSHOT_STORE", SnapshotStoreNone)

	// Database defaults
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_NAME", "sfumato")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Redis defaults
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)

	// Worker defaults
	viper.SetDefault("QUEUE_ENABLED", false)
	viper.SetDefault("QUEUE_CONCURRENCY", 4)
	viper.SetDefault("QUEUE_MAX_RETRIES", 3)

	// Storage defaults
	viper.SetDefault("STORAGE_BASE_PATH", "/tmp/sfumato")

	// Bind environment variables
	viper.AutomaticEnv()

	// Read from env
	config.Environment = viper.GetString("ENV")
	config.LogLevel = viper.GetString("LOG_LEVEL")
	config.ServerHost = viper.GetString("SERVER_HOST")
	config.ServerPort = viper.GetString("SERVER_PORT")

	// Session
	config.SessionTTLMinutes = viper.GetInt("SESSION_TTL_MINUTES")
	config.DefaultImageModel = viper.GetString("DEFAULT_IMAGE_MODEL")
	config.DefaultAspectRatio = viper.GetString("DEFAULT_ASPECT_RATIO")
	config.DefaultMaxIterations = viper.GetInt("DEFAULT_MAX_ITERATIONS")

	// Gateway
	config.GatewayMode = strings.ToLower(viper.GetString("GATEWAY_MODE"))
	config.GatewayTimeoutSeconds = viper.GetInt("GATEWAY_TIMEOUT_SECONDS")

	config.OpenAIAPIKey = viper.GetString("OPENAI_API_KEY")
	config.OpenAIBaseURL = viper.GetString("OPENAI_BASE_URL")
	config.OpenAIPromptModel = viper.GetString("OPENAI_PROMPT_MODEL")
	config.OpenAIJudgeModel = viper.GetString("OPENAI_JUDGE_MODEL")
	config.OpenAIImageModel = viper.GetString("OPENAI_IMAGE_MODEL")

	config.GrokAPIKey = viper.GetString("GROK_API_KEY")
	config.GrokBaseURL = viper.GetString("GROK_BASE_URL")
	config.GrokImageModel = viper.GetString("GROK_IMAGE_MODEL")

	config.GeminiAPIKey = viper.GetString("GEMINI_API_KEY")
	config.GeminiBaseURL = viper.GetString("GEMINI_BASE_URL")
	config.GeminiImageModel = viper.GetString("GEMINI_IMAGE_MODEL")

	// Persistence
	config.SnapshotStore = strings.ToLower(viper.GetString("SNAPSHOT_STORE"))

	// Database
	config.DBHost = viper.GetString("DB_HOST")
	config.DBPort = viper.GetInt("DB_PORT")
	config.DBUser = viper.GetString("DB_USER")
	config.DBPassword = viper.GetString("DB_PASSWORD")
	config.DBName = viper.GetString("DB_NAME")
	config.DBSSLMode = viper.GetString("DB_SSLMODE")

	// Redis
	config.RedisHost = viper.GetString("REDIS_HOST")
	config.RedisPort = viper.GetInt("REDIS_PORT")
	config.RedisPassword = viper.GetString("REDIS_PASSWORD")
	config.RedisDB = viper.GetInt("REDIS_DB")

	// Worker
	config.QueueEnabled = viper.GetBool("QUEUE_ENABLED")
	config.QueueConcurrency = viper.GetInt("QUEUE_CONCURRENCY")
	config.QueueMaxRetries = viper.GetInt("QUEUE_MAX_RETRIES")

	// Storage
	config.StorageBasePath = viper.GetString("STORAGE_BASE_PATH")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	switch c.GatewayMode {
	case GatewayModeOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when GATEWAY_MODE=%s", GatewayModeOpenAI)
		}
	case GatewayModeScripted:
	default:
		return fmt.Errorf("unsupported GATEWAY_MODE %q (want %s or %s)", c.GatewayMode, GatewayModeOpenAI, GatewayModeScripted)
	}

	switch c.SnapshotStore {
	case SnapshotStoreNone, SnapshotStoreRedis:
	case SnapshotStorePostgres:
		if c.DBUser == "" {
			return fmt.Errorf("DB_USER is required when SNAPSHOT_STORE=%s", SnapshotStorePostgres)
		}
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required when SNAPSHOT_STORE=%s", SnapshotStorePostgres)
		}
	default:
		return fmt.Errorf("unsupported SNAPSHOT_STORE %q", c.SnapshotStore)
	}

	if c.QueueEnabled && c.SnapshotStore == SnapshotStoreNone {
		return fmt.Errorf("QUEUE_ENABLED requires a shared SNAPSHOT_STORE (%s or %s)", SnapshotStoreRedis, SnapshotStorePostgres)
	}

	if c.GatewayTimeoutSeconds <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT_SECONDS must be positive, got %d", c.GatewayTimeoutSeconds)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive, got %d", c.SessionTTLMinutes)
	}

	return nil
}

// ServerAddr returns the HTTP listen address
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// GatewayTimeout bounds every model gateway call
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

// SessionTTL is the idle lifetime of a session
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Database returns the PostgreSQL settings
func (c *Config) Database() *DatabaseConfig {
	logLevel := "silent"
	if c.IsDevelopment() {
		logLevel = "debug"
	}
	return &DatabaseConfig{
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		SSLMode:         c.DBSSLMode,
		LogLevel:        logLevel,
		MaxConnections:  10,
		MinConnections:  2,
		MaxConnLifetime: 30,
		MaxConnIdleTime: 5,
	}
}

// Cache returns the Redis settings
func (c *Config) Cache() *CacheConfig {
	return &CacheConfig{
		Host:         c.RedisHost,
		Port:         c.RedisPort,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		DialTimeout:  5,
		ReadTimeout:  3,
		WriteTimeout: 3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Queue returns the Asynq settings
func (c *Config) Queue() *QueueConfig {
	return &QueueConfig{
		RedisHost:     c.RedisHost,
		RedisPort:     c.RedisPort,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		DialTimeout:   5,
		ReadTimeout:   3,
		WriteTimeout:  3,
		Concurrency:   c.QueueConcurrency,
		MaxRetries:    c.QueueMaxRetries,
	}
}

// GetDatabaseURL constructs the PostgreSQL connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("environment", c.Environment),
		slog.String("server", c.ServerAddr()),
		slog.String("gateway_mode", c.GatewayMode),
		slog.Duration("gateway_timeout", c.GatewayTimeout()),
		slog.Duration("session_ttl", c.SessionTTL()),
		slog.String("snapshot_store", c.SnapshotStore),
		slog.Bool("queue_enabled", c.QueueEnabled),
		slog.String("storage_base_path", c.StorageBasePath),
		slog.String("openai_api_key", configured(c.OpenAIAPIKey)),
		slog.String("grok_api_key", configured(c.GrokAPIKey)),
		slog.String("gemini_api_key", configured(c.GeminiAPIKey)),
	)
}

func configured(secret string) string {
	if secret != "" {
		return "[CONFIGURED]"
	}
	return "[NOT SET]"
}
