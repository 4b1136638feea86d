package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	Suno      SunoConfig
	Polling   PollingConfig
	Wizard    WizardConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	PublicURL string
}

// IsProduction reports whether the server runs in production mode
func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

type LogConfig struct {
	Level string
	File  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GenerationsPerHour int
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type SunoConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	NegativeTags string
	CallbackURL  string
	Timeout      int // seconds
}

type PollingConfig struct {
	BaseInterval        time.Duration
	MaxAttempts         int
	RateLimitMultiplier float64
}

type WizardConfig struct {
	Steps      []string
	SessionTTL time.Duration
}

func Load() (*Config, error) {
	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OPENAI_API_KEY")
	readSecret("SUNO_API_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.file", "LOG_FILE")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.generations_per_hour", "RATELIMIT_GENERATIONS_PER_HOUR")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("openai.model", "OPENAI_MODEL")
	_ = v.BindEnv("openai.timeout", "OPENAI_TIMEOUT")
	_ = v.BindEnv("suno.api_key", "SUNO_API_KEY")
	_ = v.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = v.BindEnv("suno.model", "SUNO_MODEL")
	_ = v.BindEnv("suno.negative_tags", "SUNO_NEGATIVE_TAGS")
	_ = v.BindEnv("suno.callback_url", "SUNO_CALLBACK_URL")
	_ = v.BindEnv("suno.timeout", "SUNO_TIMEOUT")
	_ = v.BindEnv("polling.base_interval", "POLLING_BASE_INTERVAL")
	_ = v.BindEnv("polling.max_attempts", "POLLING_MAX_ATTEMPTS")
	_ = v.BindEnv("polling.rate_limit_multiplier", "POLLING_RATE_LIMIT_MULTIPLIER")
	_ = v.BindEnv("wizard.steps", "WIZARD_STEPS")
	_ = v.BindEnv("wizard.session_ttl", "WIZARD_SESSION_TTL")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.public_url", "http://localhost:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.generations_per_hour", 10)

	// OpenAI defaults
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4-turbo")
	v.SetDefault("openai.timeout", 60)

	// Suno defaults
	v.SetDefault("suno.base_url", "https://api.sunoapi.org")
	v.SetDefault("suno.model", "V3_5")
	v.SetDefault("suno.negative_tags", "Explicit language, Inappropriate content")
	v.SetDefault("suno.timeout", 30)

	// Polling defaults: 60 attempts at a 5s base interval is roughly five minutes
	v.SetDefault("polling.base_interval", 5*time.Second)
	v.SetDefault("polling.max_attempts", 60)
	v.SetDefault("polling.rate_limit_multiplier", 2.0)

	// Wizard defaults
	v.SetDefault("wizard.steps", []string{"name", "age", "grade", "subject", "topic", "genre"})
	v.SetDefault("wizard.session_ttl", time.Hour)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			PublicURL: strings.TrimRight(v.GetString("server.public_url"), "/"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GenerationsPerHour: v.GetInt("ratelimit.generations_per_hour"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			BaseURL: v.GetString("openai.base_url"),
			Model:   v.GetString("openai.model"),
			Timeout: v.GetInt("openai.timeout"),
		},
		Suno: SunoConfig{
			APIKey:       v.GetString("suno.api_key"),
			BaseURL:      v.GetString("suno.base_url"),
			Model:        v.GetString("suno.model"),
			NegativeTags: v.GetString("suno.negative_tags"),
			CallbackURL:  v.GetString("suno.callback_url"),
			Timeout:      v.GetInt("suno.timeout"),
		},
		Polling: PollingConfig{
			BaseInterval:        v.GetDuration("polling.base_interval"),
			MaxAttempts:         v.GetInt("polling.max_attempts"),
			RateLimitMultiplier: v.GetFloat64("polling.rate_limit_multiplier"),
		},
		Wizard: WizardConfig{
			Steps:      splitList(v.GetStringSlice("wizard.steps")),
			SessionTTL: v.GetDuration("wizard.session_ttl"),
		},
	}

	if cfg.Suno.CallbackURL == "" {
		cfg.Suno.CallbackURL = cfg.Server.PublicURL + "/callback"
	}

	return cfg
}

// splitList accepts both YAML lists and comma separated env values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
