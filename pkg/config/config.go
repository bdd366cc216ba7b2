package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Neo4j      Neo4jConfig
	Zilliz     ZillizConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Analysis   AnalysisConfig
	Memory     MemoryConfig
	Engagement EngagementConfig
	Graph      GraphConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	MaxQueryLength int
	RateLimit      int
	AllowedOrigins []string
	IsDevelopment  bool
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type ZillizConfig struct {
	Enabled        bool
	Endpoint       string
	CollectionName string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	EmbeddingTTL int
	AffectTTL    int
}

type LLMConfig struct {
	Enabled        bool
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
}

type AnalysisConfig struct {
	Phrases    string
	Relations  string
	MaxPhrases int
}

type MemoryConfig struct {
	Metric     string
	Threshold  float64
	Dimension  int
	SessionTTL int
	LocalDim   int
}

type EngagementConfig struct {
	TimeoutMs int
}

type GraphConfig struct {
	Renderer string
	DotDir   string
	Format   string
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
	v.AddConfigPath("/etc/tutor-agent")

	v.SetEnvPrefix("TUTOR")
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

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Memory.Metric {
	case "cosine", "l2sq":
	default:
		return fmt.Errorf("unknown memory metric %q", c.Memory.Metric)
	}
	if c.Memory.Threshold < 0 {
		return fmt.Errorf("memory threshold must not be negative, got %v", c.Memory.Threshold)
	}
	if c.Memory.Dimension < 0 {
		return fmt.Errorf("memory dimension must not be negative, got %d", c.Memory.Dimension)
	}
	switch c.Graph.Renderer {
	case "neo4j", "dot", "none":
	default:
		return fmt.Errorf("unknown graph renderer %q", c.Graph.Renderer)
	}
	switch c.Graph.Format {
	case "png", "svg", "dot":
	default:
		return fmt.Errorf("unknown graph format %q", c.Graph.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxQueryLength", 2000)
	v.SetDefault("server.rateLimit", 60)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("zilliz.enabled", false)
	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.collectionName", "tutor_memory")

	v.SetDefault("sqlite.path", "./data/tutor.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTL", 86400)
	v.SetDefault("redis.affectTTL", 30)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 512)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	v.SetDefault("analysis.phrases", "rake")
	v.SetDefault("analysis.relations", "dependency")
	v.SetDefault("analysis.maxPhrases", 5)

	v.SetDefault("memory.metric", "cosine")
	// Zero picks the metric's own threshold: 0.2 for cosine, 0.1 for l2sq.
	v.SetDefault("memory.threshold", 0)
	v.SetDefault("memory.dimension", 0)
	v.SetDefault("memory.sessionTTL", 0)
	v.SetDefault("memory.localDim", 300)

	v.SetDefault("engagement.timeoutMs", 2000)

	v.SetDefault("graph.renderer", "dot")
	v.SetDefault("graph.dotDir", "./data/diagrams")
	v.SetDefault("graph.format", "png")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
