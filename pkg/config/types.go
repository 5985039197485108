package config

// Config is the full imagesearch configuration. The TOML layout uses one
// section per component; the same dotted keys are used by viper, environment
// variables (IMAGESEARCH_<SECTION>_<KEY>) and config.toml.
type Config struct {
	API         APIConfig         `toml:"api" mapstructure:"api"`
	VectorStore VectorStoreConfig `toml:"vector_store" mapstructure:"vector_store"`
	ObjectStore ObjectStoreConfig `toml:"object_store" mapstructure:"object_store"`
	Embedding   EmbeddingConfig   `toml:"embedding" mapstructure:"embedding"`
	Indexer     IndexerConfig     `toml:"indexer" mapstructure:"indexer"`
	Search      SearchConfig      `toml:"search" mapstructure:"search"`
	Events      EventsConfig      `toml:"events" mapstructure:"events"`
	Metadata    MetadataConfig    `toml:"metadata" mapstructure:"metadata"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`

	// APIKey gates the indexing endpoints (X-API-Key header).
	APIKey string `toml:"api_key" mapstructure:"api_key"`

	CORSOrigins []string `toml:"cors_origins" mapstructure:"cors_origins"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is one of "qdrant", "sqlite" or "memory".
	Provider string `toml:"provider" mapstructure:"provider"`

	// Target is the Qdrant address, either host:port or a URL.
	Target     string `toml:"target" mapstructure:"target"`
	APIKey     string `toml:"api_key" mapstructure:"api_key"`
	TLS        bool   `toml:"tls" mapstructure:"tls"`
	Collection string `toml:"collection" mapstructure:"collection"`

	// SQLitePath is the database file used by the sqlite provider.
	SQLitePath string `toml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ObjectStoreConfig describes the S3-compatible bucket holding the images.
type ObjectStoreConfig struct {
	Endpoint        string `toml:"endpoint" mapstructure:"endpoint"`
	Region          string `toml:"region" mapstructure:"region"`
	AccessKeyID     string `toml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" mapstructure:"secret_access_key"`
	Bucket          string `toml:"bucket" mapstructure:"bucket"`
	Prefix          string `toml:"prefix" mapstructure:"prefix"`
	PublicBaseURL   string `toml:"public_base_url" mapstructure:"public_base_url"`
}

// EmbeddingConfig points at the OpenAI-compatible embedding server.
type EmbeddingConfig struct {
	Target       string `toml:"target" mapstructure:"target"`
	APIKey       string `toml:"api_key" mapstructure:"api_key"`
	ImageModel   string `toml:"image_model" mapstructure:"image_model"`
	TextModel    string `toml:"text_model" mapstructure:"text_model"`
	Dimensions   uint   `toml:"dimensions" mapstructure:"dimensions"`
	MaxImageSide int    `toml:"max_image_side" mapstructure:"max_image_side"`
}

// IndexerConfig tunes bulk index runs.
type IndexerConfig struct {
	Workers    int     `toml:"workers" mapstructure:"workers"`
	BatchSize  int     `toml:"batch_size" mapstructure:"batch_size"`
	FetchRPS   float64 `toml:"fetch_rps" mapstructure:"fetch_rps"`
	FetchBurst int     `toml:"fetch_burst" mapstructure:"fetch_burst"`
}

// SearchConfig bounds result windows.
type SearchConfig struct {
	DefaultLimit int `toml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `toml:"max_limit" mapstructure:"max_limit"`
}

// EventsConfig configures the index event stream.
type EventsConfig struct {
	// Provider is "none" or "kafka".
	Provider string   `toml:"provider" mapstructure:"provider"`
	Brokers  []string `toml:"brokers" mapstructure:"brokers"`
	Topic    string   `toml:"topic" mapstructure:"topic"`
}

// MetadataConfig points at the relational store holding per-image metadata.
type MetadataConfig struct {
	// Provider is "mysql" or "postgres".
	Provider string `toml:"provider" mapstructure:"provider"`

	// DatabaseURL is a full connection string. For mysql it may be left
	// empty and built from Host, User, Password and Name instead.
	DatabaseURL string `toml:"database_url" mapstructure:"database_url"`

	Host     string `toml:"host" mapstructure:"host"`
	User     string `toml:"user" mapstructure:"user"`
	Password string `toml:"password" mapstructure:"password"`
	Name     string `toml:"name" mapstructure:"name"`

	Table string `toml:"table" mapstructure:"table"`
}
