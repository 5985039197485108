package config

const (
	defaultAPIListen = ":8000"

	defaultVectorProvider  = "qdrant"
	defaultVectorTarget    = "localhost:6334"
	defaultCollection      = "totenbilder"
	defaultSQLitePath      = "imagesearch.db"
	defaultObjectRegion    = "auto"
	defaultObjectPrefix    = "totenbilder/"
	defaultEmbeddingTarget = "http://localhost:7997"
	defaultImageModel      = "clip-ViT-B-32"
	defaultTextModel       = "sentence-transformers/clip-ViT-B-32-multilingual-v1"
	defaultDimensions      = 512
	defaultMaxImageSide    = 448
	defaultWorkers         = 4
	defaultBatchSize       = 1
	defaultFetchRPS        = 20
	defaultFetchBurst      = 5
	defaultSearchLimit     = 30
	defaultSearchMaxLimit  = 100
	defaultEventsProvider  = "none"
	defaultEventsTopic     = "imagesearch.index"
	defaultMetadataProv    = "mysql"
	defaultMetadataTable   = "totenbilder_bilder"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"https://totenbilder.at",
	"https://www.totenbilder.at",
}

// NewDefaultConfig returns a Config with every default filled in. It is the
// single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Listen:      defaultAPIListen,
			CORSOrigins: append([]string(nil), defaultCORSOrigins...),
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Collection: defaultCollection,
			SQLitePath: defaultSQLitePath,
		},
		ObjectStore: ObjectStoreConfig{
			Region: defaultObjectRegion,
			Prefix: defaultObjectPrefix,
		},
		Embedding: EmbeddingConfig{
			Target:       defaultEmbeddingTarget,
			ImageModel:   defaultImageModel,
			TextModel:    defaultTextModel,
			Dimensions:   defaultDimensions,
			MaxImageSide: defaultMaxImageSide,
		},
		Indexer: IndexerConfig{
			Workers:    defaultWorkers,
			BatchSize:  defaultBatchSize,
			FetchRPS:   defaultFetchRPS,
			FetchBurst: defaultFetchBurst,
		},
		Search: SearchConfig{
			DefaultLimit: defaultSearchLimit,
			MaxLimit:     defaultSearchMaxLimit,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Metadata: MetadataConfig{
			Provider: defaultMetadataProv,
			Table:    defaultMetadataTable,
		},
	}
}
