package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Index      IndexConfig    `mapstructure:"index"`
	Embedding  ModelConfig    `mapstructure:"embedding"`
	Classifier ModelConfig    `mapstructure:"classifier"`
	Insight    ModelConfig    `mapstructure:"insight"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Qdrant     QdrantConfig   `mapstructure:"qdrant"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite | postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	URL             string        `mapstructure:"url"`    // postgres connection string
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type IndexConfig struct {
	Path      string `mapstructure:"path"`       // payload file; metadata lives at path+".meta"
	Source    string `mapstructure:"source"`     // JSONL corpus used when the index must be built at startup
	RemoteKey string `mapstructure:"remote_key"` // object key prefix for published artifacts
	Backend   string `mapstructure:"backend"`    // local | qdrant
	TopK      int    `mapstructure:"top_k"`
	BatchSize int    `mapstructure:"batch_size"`
	Workers   int    `mapstructure:"workers"`
}

type PipelineConfig struct {
	Workers        int           `mapstructure:"workers"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2 | s3 | s3compatible; empty auto-detects
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// Enabled reports whether object storage is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for deployment settings and secrets
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("index.path", "INDEX_PATH")
	v.BindEnv("index.source", "INDEX_SOURCE")
	v.BindEnv("embedding.model", "EMBEDDING_MODEL")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("classifier.model", "CLASSIFIER_MODEL")
	v.BindEnv("classifier.api_key", "HF_API_TOKEN")
	v.BindEnv("insight.api_key", "GEMINI_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Embedding.ResolveEnvVars()
	cfg.Classifier.ResolveEnvVars()
	cfg.Insight.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/emosense.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("index.path", "./data/emotion.index")
	v.SetDefault("index.backend", "local")
	v.SetDefault("index.top_k", 3)
	v.SetDefault("index.batch_size", 32)
	v.SetDefault("index.workers", 4)

	v.SetDefault("embedding.name", "embedding")
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.api_key_env", "JINA_API_KEY")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", 10*time.Second)

	v.SetDefault("classifier.name", "classifier")
	v.SetDefault("classifier.provider", "huggingface")
	v.SetDefault("classifier.model", "j-hartmann/emotion-english-distilroberta-base")
	v.SetDefault("classifier.timeout", 10*time.Second)

	v.SetDefault("insight.name", "insight")
	v.SetDefault("insight.provider", "gemini")
	v.SetDefault("insight.model", "gemini-1.5-flash")
	v.SetDefault("insight.timeout", 20*time.Second)

	v.SetDefault("pipeline.workers", 16)
	v.SetDefault("pipeline.persist_timeout", 5*time.Second)

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "emosense")

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "emotion_examples")
}

// Validate fails fast on configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database: path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database: connection string is required (set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}

	if c.Index.Path == "" {
		return fmt.Errorf("index: path is required")
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("index: top_k must be positive")
	}
	switch c.Index.Backend {
	case "local":
	case "qdrant":
		if !c.Qdrant.Enabled {
			return fmt.Errorf("index: backend qdrant requires qdrant.enabled")
		}
	default:
		return fmt.Errorf("index: unknown backend %q", c.Index.Backend)
	}
	if c.Index.RemoteKey != "" && !c.Storage.Enabled() {
		return fmt.Errorf("index: remote_key requires storage endpoint and bucket")
	}

	if err := c.ValidateEmbedding(); err != nil {
		return err
	}
	if err := c.Classifier.validate("classifier", classifierProviders); err != nil {
		return err
	}
	if err := c.Insight.validate("insight", insightProviders); err != nil {
		return err
	}
	if err := c.Insight.requireAPIKey("insight"); err != nil {
		return err
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline: workers must be positive")
	}
	if c.Pipeline.PersistTimeout <= 0 {
		return fmt.Errorf("pipeline: persist_timeout must be positive")
	}
	return nil
}

// ValidateEmbedding checks only the embedding section; index builds need nothing else.
func (c *Config) ValidateEmbedding() error {
	if err := c.Embedding.validate("embedding", embeddingProviders); err != nil {
		return err
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding: dimensions must be positive")
	}
	return nil
}
