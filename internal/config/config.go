package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Mongo     MongoConfig
	RateLimit RateLimitConfig
	Context   ContextConfig
	Turn      TurnConfig
	Upload    UploadConfig
	Logging   LoggingConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	turn, err := loadTurnConfig()
	if err != nil {
		return nil, err
	}

	contextCfg, err := loadContextConfig()
	if err != nil {
		return nil, err
	}

	upload, err := loadUploadConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Mongo:     loadMongoConfig(),
		RateLimit: rateLimit,
		Context:   contextCfg,
		Turn:      turn,
		Upload:    upload,
		Logging:   loadLoggingConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the chat model.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// MongoConfig describes the document store connection. An empty URI
// runs the service on the in-memory store.
type MongoConfig struct {
	URI      string
	Database string
}

func loadMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      strings.TrimSpace(os.Getenv("MONGODB_URI")),
		Database: getEnvOrDefault("MONGODB_DATABASE", "medai"),
	}
}

// RateLimitConfig holds both admission windows: the per-client AI
// window and the coarser inbound-edge window.
type RateLimitConfig struct {
	AILimit    int
	AIWindow   time.Duration
	EdgeLimit  int
	EdgeWindow time.Duration
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	aiLimit, err := parseIntEnv("RATE_LIMIT_AI_REQUESTS", 60)
	if err != nil {
		return RateLimitConfig{}, err
	}
	aiWindow, err := parseDurationEnv("RATE_LIMIT_AI_WINDOW", time.Minute)
	if err != nil {
		return RateLimitConfig{}, err
	}
	edgeLimit, err := parseIntEnv("RATE_LIMIT_EDGE_REQUESTS", 50)
	if err != nil {
		return RateLimitConfig{}, err
	}
	edgeWindow, err := parseDurationEnv("RATE_LIMIT_EDGE_WINDOW", 24*time.Hour)
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{
		AILimit:    aiLimit,
		AIWindow:   aiWindow,
		EdgeLimit:  edgeLimit,
		EdgeWindow: edgeWindow,
	}, nil
}

// ContextConfig bounds the conversation context tracker.
type ContextConfig struct {
	Capacity int
}

func loadContextConfig() (ContextConfig, error) {
	capacity, err := parseIntEnv("CONTEXT_CAPACITY", 1024)
	if err != nil {
		return ContextConfig{}, err
	}
	return ContextConfig{Capacity: capacity}, nil
}

// TurnConfig tunes the per-turn orchestrator.
type TurnConfig struct {
	Timeout           time.Duration
	StrictPersistence bool
}

func loadTurnConfig() (TurnConfig, error) {
	timeout, err := parseDurationEnv("TURN_TIMEOUT", 2*time.Minute)
	if err != nil {
		return TurnConfig{}, err
	}
	strict, err := parseBoolEnv("TURN_STRICT_PERSISTENCE", false)
	if err != nil {
		return TurnConfig{}, err
	}
	return TurnConfig{Timeout: timeout, StrictPersistence: strict}, nil
}

// UploadConfig caps inbound attachments.
type UploadConfig struct {
	MaxAttachmentBytes int
}

func loadUploadConfig() (UploadConfig, error) {
	maxBytes, err := parseIntEnv("MAX_ATTACHMENT_BYTES", 4<<20)
	if err != nil {
		return UploadConfig{}, err
	}
	return UploadConfig{MaxAttachmentBytes: maxBytes}, nil
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	File  string
	Level string
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
