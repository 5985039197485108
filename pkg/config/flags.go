package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes a CLI flag once so every command that exposes it agrees on
// name, shorthand, config key and help text.
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag. Empty for none.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet maps registry keys to flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen              = "listen"
	FlagVectorStoreProvider = "vector-store-provider"
	FlagVectorStoreTarget   = "vector-store-target"
	FlagCollection          = "collection"
	FlagSQLitePath          = "sqlite"
	FlagEmbeddingTarget     = "embedding-target"
	FlagEmbeddingDims       = "embedding-dimensions"
	FlagBucket              = "bucket"
	FlagPrefix              = "prefix"
	FlagWorkers             = "workers"
	FlagDatabaseURL         = "database-url"
	FlagMetadataProvider    = "metadata-provider"
)

// Flags is the registry shared by all imagesearch commands.
var Flags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagVectorStoreProvider: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector index backend (qdrant, sqlite, memory)",
	},
	FlagVectorStoreTarget: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector index address (e.g. localhost:6334 or https://host:6334)",
	},
	FlagCollection: {
		Name:        "collection",
		ViperKey:    "vector_store.collection",
		Description: "Vector index collection name",
	},
	FlagSQLitePath: {
		Name:        "sqlite",
		ViperKey:    "vector_store.sqlite_path",
		Description: "Path to the SQLite database for the sqlite backend",
	},
	FlagEmbeddingTarget: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Base URL of the embedding server",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimension",
	},
	FlagBucket: {
		Name:        "bucket",
		ViperKey:    "object_store.bucket",
		Description: "Object store bucket holding the images",
	},
	FlagPrefix: {
		Name:        "prefix",
		ViperKey:    "object_store.prefix",
		Description: "Key prefix to index under the bucket",
	},
	FlagWorkers: {
		Name:        "workers",
		Shorthand:   "w",
		ViperKey:    "indexer.workers",
		Description: "Number of concurrent indexing workers",
	},
	FlagDatabaseURL: {
		Name:        "database-url",
		ViperKey:    "metadata.database_url",
		Description: "Connection string for the metadata database",
	},
	FlagMetadataProvider: {
		Name:        "metadata-provider",
		ViperKey:    "metadata.provider",
		Description: "Metadata database type (mysql, postgres)",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// Unknown keys are ignored.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, key string, target *uint) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper. Call it in
// PreRunE after InitViper so flags sit on top of the precedence chain.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
