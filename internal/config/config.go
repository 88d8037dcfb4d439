package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds everything a pipeline run needs. It is read once at process
// start and handed to each component's constructor.
type Config struct {
	EditionSize     int      `env:"EDITION_SIZE" env-default:"10" env-description:"Number of items in the collection"`
	AssetDir        string   `env:"ASSET_DIR" env-default:"./hardhat/assets" env-description:"Directory holding jackets/ and sounds/"`
	OutputDir       string   `env:"OUTPUT_DIR" env-default:"./hardhat/output" env-description:"Directory for generated metadata"`
	TemplatePath    string   `env:"TEMPLATE_PATH" env-default:"./hardhat/assets/template.yaml" env-description:"Metadata template (YAML)"`
	ImageExtensions []string `env:"IMAGE_EXTENSIONS" env-default:"jpeg,png,gif" env-description:"Image extensions in priority order"`
	AudioFile       string   `env:"AUDIO_FILE" env-description:"Shared audio file (defaults to <ASSET_DIR>/sounds/sound.mp3)"`

	UploadBackend string `env:"UPLOAD_BACKEND" env-default:"moralis" env-description:"moralis or s3"`
	Moralis       MoralisConfig
	S3            S3Config

	PublishURL string `env:"API_URL" env-description:"Batch publish endpoint"`
	APIKey     string `env:"API_KEY" env-description:"API key sent as X-API-Key"`
	GatewayURL string `env:"IPFS_GATEWAY_URL" env-default:"https://ipfs.moralis.io:2053/ipfs" env-description:"Gateway used to fetch published metadata"`

	CatalogBackend string `env:"CATALOG_BACKEND" env-default:"mongo" env-description:"mongo, postgres, parquet or memory"`
	Mongo          MongoConfig
	DatabaseURL    string `env:"DATABASE_URL" env-description:"Postgres connection string for the postgres catalog"`
	ParquetPath    string `env:"CATALOG_PARQUET_PATH" env-description:"Output file for the parquet catalog (defaults to <OUTPUT_DIR>/_catalog.parquet)"`

	UploadConcurrency int           `env:"UPLOAD_CONCURRENCY" env-default:"1" env-description:"Items uploaded in parallel"`
	UploadMaxAttempts int           `env:"UPLOAD_MAX_ATTEMPTS" env-default:"4" env-description:"Attempts per upload before giving up"`
	ReadConcurrency   int           `env:"READ_CONCURRENCY" env-default:"8" env-description:"Parallel file reads while building the publish batch"`
	IndexConcurrency  int           `env:"INDEX_CONCURRENCY" env-default:"4" env-description:"Parallel catalog fetch+write workers"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" env-default:"60s" env-description:"Timeout for a single HTTP request"`
	RateLimit         float64       `env:"RATE_LIMIT" env-default:"5" env-description:"Requests per second per remote service"`

	LogLevel        string `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	MetricsTextfile string `env:"METRICS_TEXTFILE" env-description:"Write Prometheus metrics to this file after the run"`
}

// MoralisConfig is the content upload service
type MoralisConfig struct {
	ServerURL string `env:"REACT_APP_MORALIS_SERVER_URL" env-description:"Moralis server URL"`
	AppID     string `env:"REACT_APP_MORALIS_APPLICATION_ID" env-description:"Moralis application id"`
	MasterKey string `env:"MASTER_KEY" env-description:"Moralis master key"`
}

// S3Config is the S3-compatible content store
type S3Config struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false"`
}

// MongoConfig is the mongo catalog
type MongoConfig struct {
	URI        string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database   string `env:"MONGO_DATABASE" env-default:"metapub"`
	Collection string `env:"MONGO_COLLECTION" env-default:"Metadata"`
}

// Load reads a .env file if present, then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AudioFile == "" {
		c.AudioFile = filepath.Join(c.AssetDir, "sounds", "sound.mp3")
	}
	if c.ParquetPath == "" {
		c.ParquetPath = filepath.Join(c.OutputDir, "_catalog.parquet")
	}
	for i, ext := range c.ImageExtensions {
		c.ImageExtensions[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	}
}

// ImageDir is where per-item images live
func (c *Config) ImageDir() string {
	return filepath.Join(c.AssetDir, "jackets")
}

// ValidateLocal checks the settings needed before any network call
func (c *Config) ValidateLocal() error {
	var errs []error
	if c.EditionSize <= 0 {
		errs = append(errs, fmt.Errorf("EDITION_SIZE must be positive, got %d", c.EditionSize))
	}
	if len(c.ImageExtensions) == 0 {
		errs = append(errs, errors.New("IMAGE_EXTENSIONS must not be empty"))
	}
	if c.UploadConcurrency < 1 {
		errs = append(errs, errors.New("UPLOAD_CONCURRENCY must be at least 1"))
	}
	if c.UploadMaxAttempts < 1 {
		errs = append(errs, errors.New("UPLOAD_MAX_ATTEMPTS must be at least 1"))
	}
	if c.ReadConcurrency < 1 {
		errs = append(errs, errors.New("READ_CONCURRENCY must be at least 1"))
	}
	if c.IndexConcurrency < 1 {
		errs = append(errs, errors.New("INDEX_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

// Validate checks the full configuration for a pipeline run
func (c *Config) Validate() error {
	errs := []error{c.ValidateLocal()}

	switch c.UploadBackend {
	case "moralis":
		if c.Moralis.ServerURL == "" || c.Moralis.AppID == "" || c.Moralis.MasterKey == "" {
			errs = append(errs, errors.New("moralis upload requires REACT_APP_MORALIS_SERVER_URL, REACT_APP_MORALIS_APPLICATION_ID and MASTER_KEY"))
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 upload requires S3_BUCKET"))
		}
		if c.S3.PublicBaseURL == "" {
			errs = append(errs, errors.New("s3 upload requires S3_PUBLIC_BASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported UPLOAD_BACKEND: %s (use moralis or s3)", c.UploadBackend))
	}

	errs = append(errs, c.ValidateIndex())
	if c.PublishURL == "" || c.APIKey == "" {
		errs = append(errs, errors.New("publishing requires API_URL and API_KEY"))
	} else if _, err := url.ParseRequestURI(c.PublishURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid API_URL: %w", err))
	}

	return errors.Join(errs...)
}

// ValidateIndex checks the settings used by the indexing stage
func (c *Config) ValidateIndex() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid IPFS_GATEWAY_URL: %w", err))
	}
	switch c.CatalogBackend {
	case "mongo":
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo catalog requires MONGO_URI"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres catalog requires DATABASE_URL"))
		}
	case "parquet", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported CATALOG_BACKEND: %s (use mongo, postgres, parquet or memory)", c.CatalogBackend))
	}
	return errors.Join(errs...)
}

// Usage describes every supported environment variable
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
