package app

import (
	"strings"
	"time"

	"github.com/yungbote/roadmap-backend/internal/data/db"
	"github.com/yungbote/roadmap-backend/internal/modules/rag"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/generate"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/openai"
	"github.com/yungbote/roadmap-backend/internal/temporalx"
)

type Config struct {
	ServiceName   string
	Environment   string
	Version       string
	HTTPAddr      string
	ShutdownGrace time.Duration
	AutoMigrate   bool

	DB       db.Config
	OpenAI   openai.Config
	RAG      rag.Params
	Breaker  generate.BreakerConfig
	Temporal temporalx.Config

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	EmbedCacheTTL  time.Duration
	EmbedCacheSize uint64

	ArtifactBucket string
	ArtifactPrefix string
	ArtifactDir    string
}

// LoadConfig reads the environment. Missing store or model credentials are a ConfigurationError.
func LoadConfig() (Config, error) {
	params, err := rag.LoadParams()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ServiceName:   envutil.String("SERVICE_NAME", "roadmap-backend"),
		Environment:   envutil.String("APP_ENV", "development"),
		Version:       envutil.String("APP_VERSION", "dev"),
		HTTPAddr:      ":" + strings.TrimPrefix(envutil.String("PORT", "8080"), ":"),
		ShutdownGrace: envutil.Duration("SHUTDOWN_GRACE", 30*time.Second),
		AutoMigrate:   envutil.Bool("DB_AUTO_MIGRATE", true),

		DB:       db.ConfigFromEnv(),
		OpenAI:   openai.ConfigFromEnv(),
		RAG:      params,
		Breaker:  generate.DefaultBreakerConfig(),
		Temporal: temporalx.LoadConfig(),

		RedisAddr:      envutil.String("REDIS_ADDR", ""),
		RedisPassword:  envutil.String("REDIS_PASSWORD", ""),
		RedisDB:        envutil.Int("REDIS_DB", 0),
		EmbedCacheTTL:  envutil.Duration("EMBED_CACHE_TTL", 24*time.Hour),
		EmbedCacheSize: uint64(max(envutil.Int("EMBED_CACHE_SIZE", 10000), 0)),

		ArtifactBucket: envutil.String("EMBED_ARTIFACT_BUCKET", ""),
		ArtifactPrefix: envutil.String("EMBED_ARTIFACT_PREFIX", ""),
		ArtifactDir:    envutil.String("EMBED_ARTIFACT_DIR", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return ragerr.Config("OPENAI_API_KEY", "required")
	}
	if c.ArtifactBucket != "" && c.ArtifactDir != "" {
		return ragerr.Config("EMBED_ARTIFACT_BUCKET", "set either EMBED_ARTIFACT_BUCKET or EMBED_ARTIFACT_DIR, not both")
	}
	return c.RAG.Validate()
}
