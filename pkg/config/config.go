package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Knowledge KnowledgeConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int `validate:"gt=0,lte=65535"`
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type StorageConfig struct {
	Driver string `validate:"oneof=sqlite memory"`
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

// KnowledgeConfig carries the retrieval and gap-lifecycle tuning knobs.
// Thresholds are scores in [0,1].
type KnowledgeConfig struct {
	RelevanceCutoff     float64       `validate:"gte=0,lte=1"`
	ResolutionThreshold float64       `validate:"gte=0,lte=1"`
	MergeThreshold      float64       `validate:"gte=0,lte=1"`
	DuplicateThreshold  float64       `validate:"gte=0,lte=1"`
	NewEntryThreshold   float64       `validate:"gte=0,lte=1"`
	SearchLimit         int           `validate:"gt=0"`
	SchedulerEnabled    bool
	EvaluationInterval  time.Duration `validate:"gt=0"`
	BatchSize           int           `validate:"gt=0"`
	ItemDelay           time.Duration `validate:"gte=0"`
	BatchDelay          time.Duration `validate:"gte=0"`
	BackgroundWorkers   int           `validate:"gt=0"`
	BackgroundTimeout   time.Duration `validate:"gt=0"`
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type SecurityConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
	MaxMessageLen  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/telemed-faq")

	v.SetEnvPrefix("TELEMED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects out-of-range settings instead of clamping them.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Defaults returns a config populated only from defaults, for tools and tests.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 4194304)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("sqlite.path", "./data/telemed.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", "10m")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("knowledge.relevanceCutoff", 0.1)
	v.SetDefault("knowledge.resolutionThreshold", 0.7)
	v.SetDefault("knowledge.mergeThreshold", 0.8)
	v.SetDefault("knowledge.duplicateThreshold", 0.75)
	v.SetDefault("knowledge.newEntryThreshold", 0.7)
	v.SetDefault("knowledge.searchLimit", 3)
	v.SetDefault("knowledge.schedulerEnabled", true)
	v.SetDefault("knowledge.evaluationInterval", "6h")
	v.SetDefault("knowledge.batchSize", 10)
	v.SetDefault("knowledge.itemDelay", "100ms")
	v.SetDefault("knowledge.batchDelay", "2s")
	v.SetDefault("knowledge.backgroundWorkers", 16)
	v.SetDefault("knowledge.backgroundTimeout", "10m")

	v.SetDefault("rateLimit.maxRequestsPerMinute", 30)

	v.SetDefault("security.isDevelopment", false)
	v.SetDefault("security.maxMessageLen", 2000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
