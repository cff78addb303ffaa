package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageMinio  = "minio"
	StorageGCS    = "gcs"
	StorageMemory = "memory"

	BrokerNone     = "none"
	BrokerRabbitMQ = "rabbitmq"
	BrokerPubSub   = "pubsub"
	BrokerMemory   = "memory"
)

type Config struct {
	ServerPort     int            `yaml:"server_port"`
	StoreDriver    string         `yaml:"store_driver"`
	MigrationsPath string         `yaml:"migrations_path"`
	Database       DatabaseConfig `yaml:"database"`
	Storage        StorageConfig  `yaml:"storage"`
	Broker         BrokerConfig   `yaml:"broker"`
	Auth           AuthConfig     `yaml:"auth"`
	Log            LogConfig      `yaml:"log"`
	Client         ClientConfig   `yaml:"client"`
	Export         ExportConfig   `yaml:"export"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Minio   MinioConfig `yaml:"minio"`
	GCS     GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type BrokerConfig struct {
	Backend      string         `yaml:"backend"`
	PurgeChannel string         `yaml:"purge_channel"`
	RabbitMQ     RabbitMQConfig `yaml:"rabbitmq"`
	PubSub       PubSubConfig   `yaml:"pubsub"`
}

type RabbitMQConfig struct {
	URL             string `yaml:"url"`
	PrefetchCount   int    `yaml:"prefetch_count"`
	QueueDurable    bool   `yaml:"queue_durable"`
	QueueAutoDelete bool   `yaml:"queue_auto_delete"`
}

type PubSubConfig struct {
	ProjectID          string        `yaml:"project_id"`
	CredentialsFile    string        `yaml:"credentials_file"`
	SubscriptionSuffix string        `yaml:"subscription_suffix"`
	MaxOutstanding     int           `yaml:"max_outstanding"`
	AckDeadline        time.Duration `yaml:"ack_deadline"`
	MinBackoff         time.Duration `yaml:"min_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
}

type AuthConfig struct {
	// JWTSecret verifies x-access-token. Tokens are issued elsewhere.
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ClientConfig configures the CLI commands that talk to a running server.
type ClientConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Token            string        `yaml:"token"`
	TokenFile        string        `yaml:"token_file"`
	MetadataTimeout  time.Duration `yaml:"metadata_timeout"`
	FileTimeout      time.Duration `yaml:"file_timeout"`
	LifecycleTimeout time.Duration `yaml:"lifecycle_timeout"`
	ListingTimeout   time.Duration `yaml:"listing_timeout"`
}

type ExportConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServerPort:     8080,
		StoreDriver:    StoreDriverPostgres,
		MigrationsPath: "internal/db/migrations",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "banksoal",
			Password: "password",
			DBName:   "banksoal_db",
		},
		Storage: StorageConfig{
			Backend: StorageMinio,
			Minio: MinioConfig{
				Endpoint: "localhost:9000",
				Bucket:   "banksoal",
			},
		},
		Broker: BrokerConfig{
			Backend:      BrokerNone,
			PurgeChannel: "banksoal.objects.purge",
			RabbitMQ:     RabbitMQConfig{PrefetchCount: 10, QueueDurable: true},
			PubSub: PubSubConfig{
				SubscriptionSuffix: "-sub",
				MaxOutstanding:     10,
				AckDeadline:        60 * time.Second,
				MinBackoff:         10 * time.Second,
				MaxBackoff:         10 * time.Minute,
			},
		},
		Log: LogConfig{Level: "info", Pretty: true},
		Client: ClientConfig{
			BaseURL:          "http://localhost:8080",
			MetadataTimeout:  30 * time.Second,
			FileTimeout:      30 * time.Second,
			LifecycleTimeout: 10 * time.Second,
			ListingTimeout:   15 * time.Second,
		},
		Export: ExportConfig{Concurrency: 4},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment variables.
func Load(path string) (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and required fields of the selected backends.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Database.Host) == "" {
			return errors.New("database host is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.Storage.Backend {
	case StorageMinio, StorageGCS, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Broker.Backend {
	case BrokerNone, BrokerRabbitMQ, BrokerPubSub, BrokerMemory:
	default:
		return fmt.Errorf("unknown broker backend %q", c.Broker.Backend)
	}

	if c.Export.Concurrency < 1 {
		return errors.New("export concurrency must be at least 1")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	setInt := func(key string, dst *int) {
		if err == nil {
			*dst, err = getEnvInt(key, *dst)
		}
	}
	setBool := func(key string, dst *bool) {
		if err == nil {
			*dst, err = getEnvBool(key, *dst)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if err == nil {
			*dst, err = getEnvDuration(key, *dst)
		}
	}

	setInt("SERVER_PORT", &cfg.ServerPort)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.MigrationsPath)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	setInt("DB_PORT", &cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	setBool("DB_USE_SSL", &cfg.Database.UseSSL)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.Minio.Endpoint)
	cfg.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.Minio.AccessKey)
	cfg.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.Minio.SecretKey)
	cfg.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", cfg.Storage.Minio.Bucket)
	setBool("MINIO_USE_SSL", &cfg.Storage.Minio.UseSSL)
	cfg.Storage.GCS.Bucket = getEnv("GCS_BUCKET", cfg.Storage.GCS.Bucket)
	cfg.Storage.GCS.ProjectID = getEnv("GCS_PROJECT_ID", cfg.Storage.GCS.ProjectID)
	cfg.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", cfg.Storage.GCS.CredentialsFile)

	cfg.Broker.Backend = getEnv("BROKER_BACKEND", cfg.Broker.Backend)
	cfg.Broker.PurgeChannel = getEnv("BROKER_PURGE_CHANNEL", cfg.Broker.PurgeChannel)
	cfg.Broker.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.Broker.RabbitMQ.URL)
	setInt("RABBITMQ_PREFETCH_COUNT", &cfg.Broker.RabbitMQ.PrefetchCount)
	setBool("RABBITMQ_QUEUE_DURABLE", &cfg.Broker.RabbitMQ.QueueDurable)
	setBool("RABBITMQ_QUEUE_AUTO_DELETE", &cfg.Broker.RabbitMQ.QueueAutoDelete)
	cfg.Broker.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", cfg.Broker.PubSub.ProjectID)
	cfg.Broker.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", cfg.Broker.PubSub.CredentialsFile)
	cfg.Broker.PubSub.SubscriptionSuffix = getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", cfg.Broker.PubSub.SubscriptionSuffix)
	setInt("PUBSUB_MAX_OUTSTANDING", &cfg.Broker.PubSub.MaxOutstanding)
	setDuration("PUBSUB_ACK_DEADLINE", &cfg.Broker.PubSub.AckDeadline)
	setDuration("PUBSUB_MIN_BACKOFF", &cfg.Broker.PubSub.MinBackoff)
	setDuration("PUBSUB_MAX_BACKOFF", &cfg.Broker.PubSub.MaxBackoff)

	cfg.Auth.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", cfg.Auth.JWTSecret))

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	setBool("LOG_PRETTY", &cfg.Log.Pretty)

	cfg.Client.BaseURL = getEnv("BANKSOAL_URL", cfg.Client.BaseURL)
	cfg.Client.Token = getEnv("BANKSOAL_TOKEN", cfg.Client.Token)
	cfg.Client.TokenFile = getEnv("BANKSOAL_TOKEN_FILE", cfg.Client.TokenFile)
	setDuration("CLIENT_METADATA_TIMEOUT", &cfg.Client.MetadataTimeout)
	setDuration("CLIENT_FILE_TIMEOUT", &cfg.Client.FileTimeout)
	setDuration("CLIENT_LIFECYCLE_TIMEOUT", &cfg.Client.LifecycleTimeout)
	setDuration("CLIENT_LISTING_TIMEOUT", &cfg.Client.ListingTimeout)

	setInt("EXPORT_CONCURRENCY", &cfg.Export.Concurrency)
	return err
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, valueStr)
	}
	return value, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, valueStr)
	}
	return value, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, valueStr)
	}
	return value, nil
}
