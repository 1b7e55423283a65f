package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration. All values come from the
// environment; main loads .env first via godotenv.
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// OpenAI configuration
	OpenAI OpenAIConfig

	// Digest configuration
	Digest DigestConfig

	// Registry database path
	RegistryDBPath string

	// MCP listen address ("" disables the MCP surface)
	MCPListenAddr string

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu app credentials.
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// OpenAIConfig contains summarization service configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string        // optional, for OpenAI-compatible endpoints
	Timeout time.Duration // per-call bound
}

// DigestConfig contains digest pipeline configuration.
type DigestConfig struct {
	MaxMessagesPerChannel int    // per-channel cap on summarization input
	ChannelName           string // digest destination chat display name
	RetryCount            int    // summarization re-invocation budget
	Parallel              bool   // concurrent vs sequential tenant fan-out
	Timezone              string // schedule and usage-counter timezone
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	registryDBPath := os.Getenv("REGISTRY_DB_PATH")
	if registryDBPath == "" {
		homeDir, _ := os.UserHomeDir()
		registryDBPath = filepath.Join(homeDir, ".feishu-digest", "tenants.db")
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Timeout: time.Duration(envInt("API_TIMEOUT", 60)) * time.Second,
		},
		Digest: DigestConfig{
			MaxMessagesPerChannel: envInt("MAX_MESSAGES_PER_SUMMARY", 100),
			ChannelName:           envString("DIGEST_CHANNEL_NAME", "chat-digest"),
			RetryCount:            envInt("API_RETRY_COUNT", 2),
			Parallel:              envString("PARALLEL_SUMMARY", "true") == "true",
			Timezone:              envString("SCHEDULE_TIMEZONE", "Asia/Tokyo"),
		},
		RegistryDBPath: registryDBPath,
		MCPListenAddr:  os.Getenv("MCP_LISTEN_ADDR"),
		Debug:          os.Getenv("DEBUG") == "true",
	}
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Digest.Timezone)
}

// Validate validates the configuration. Missing credentials are fatal.
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	if _, err := c.Location(); err != nil {
		return &ConfigError{Field: "SCHEDULE_TIMEZONE", Message: "invalid timezone: " + c.Digest.Timezone}
	}
	if c.Digest.MaxMessagesPerChannel < 1 {
		return &ConfigError{Field: "MAX_MESSAGES_PER_SUMMARY", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
