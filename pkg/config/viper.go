package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable derived from a config key.
const EnvPrefix = "IMAGESEARCH"

// legacyEnv maps config keys to the variable names used by existing
// deployments. They are consulted after the IMAGESEARCH_ names.
var legacyEnv = map[string]string{
	"api.api_key":                    "INDEX_API_KEY",
	"vector_store.target":            "QDRANT_URL",
	"vector_store.api_key":           "QDRANT_API_KEY",
	"vector_store.collection":        "QDRANT_COLLECTION_NAME",
	"object_store.endpoint":          "R2_ENDPOINT_URL",
	"object_store.access_key_id":     "R2_ACCESS_KEY_ID",
	"object_store.secret_access_key": "R2_SECRET_ACCESS_KEY",
	"object_store.bucket":            "R2_BUCKET_NAME",
	"object_store.prefix":            "R2_PREFIX",
	"object_store.public_base_url":   "R2_PUBLIC_BASE_URL",
	"metadata.host":                  "DB_HOST",
	"metadata.user":                  "DB_USER",
	"metadata.password":              "DB_PASSWORD",
	"metadata.name":                  "DB_NAME",
}

// InitViper creates a configured *viper.Viper.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (IMAGESEARCH_API_LISTEN, R2_BUCKET_NAME, DB_HOST, ...)
//  3. config.toml in configDir, or in ./ and ~/.imagesearch when empty
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".imagesearch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	return v, nil
}

// Load decodes the effective configuration out of v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setViperDefaults registers NewDefaultConfig() values under their dotted keys.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.api_key", d.API.APIKey)
	v.SetDefault("api.cors_origins", d.API.CORSOrigins)

	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.api_key", d.VectorStore.APIKey)
	v.SetDefault("vector_store.tls", d.VectorStore.TLS)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.sqlite_path", d.VectorStore.SQLitePath)

	v.SetDefault("object_store.endpoint", d.ObjectStore.Endpoint)
	v.SetDefault("object_store.region", d.ObjectStore.Region)
	v.SetDefault("object_store.access_key_id", d.ObjectStore.AccessKeyID)
	v.SetDefault("object_store.secret_access_key", d.ObjectStore.SecretAccessKey)
	v.SetDefault("object_store.bucket", d.ObjectStore.Bucket)
	v.SetDefault("object_store.prefix", d.ObjectStore.Prefix)
	v.SetDefault("object_store.public_base_url", d.ObjectStore.PublicBaseURL)

	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.image_model", d.Embedding.ImageModel)
	v.SetDefault("embedding.text_model", d.Embedding.TextModel)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.max_image_side", d.Embedding.MaxImageSide)

	v.SetDefault("indexer.workers", d.Indexer.Workers)
	v.SetDefault("indexer.batch_size", d.Indexer.BatchSize)
	v.SetDefault("indexer.fetch_rps", d.Indexer.FetchRPS)
	v.SetDefault("indexer.fetch_burst", d.Indexer.FetchBurst)

	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.max_limit", d.Search.MaxLimit)

	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("metadata.provider", d.Metadata.Provider)
	v.SetDefault("metadata.database_url", d.Metadata.DatabaseURL)
	v.SetDefault("metadata.host", d.Metadata.Host)
	v.SetDefault("metadata.user", d.Metadata.User)
	v.SetDefault("metadata.password", d.Metadata.Password)
	v.SetDefault("metadata.name", d.Metadata.Name)
	v.SetDefault("metadata.table", d.Metadata.Table)
}
