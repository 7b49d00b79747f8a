package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-resources/pkg/resources"
	"github.com/tendant/simple-resources/pkg/resources/metrics"
	"github.com/tendant/simple-resources/pkg/resources/objectkey"
	repobadger "github.com/tendant/simple-resources/pkg/resources/repo/badger"
	"github.com/tendant/simple-resources/pkg/resources/repo/memory"
	repopg "github.com/tendant/simple-resources/pkg/resources/repo/postgres"
	"github.com/tendant/simple-resources/pkg/resources/staging"
	memorystorage "github.com/tendant/simple-resources/pkg/resources/storage/memory"
	s3storage "github.com/tendant/simple-resources/pkg/resources/storage/s3"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseBadger   = "badger"
)

// Storage backends. StorageNone keeps uploads inline as data URIs.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageS3     = "s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults. WithEnv resets every field it knows about, so pass it
// before programmatic overrides.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:            "8080",
		Environment:     "development",
		PublicURL:       "http://localhost:8080",
		DatabaseURL:     DatabaseMemory,
		StagingDir:      "./uploads",
		Namespace:       objectkey.DefaultNamespace,
		JWTSecret:       "dev-secret",
		SignedURLExpiry: resources.DefaultSignedURLExpiry,
		PrefixLimit:     resources.DefaultPrefixLimit,
		Storage: StorageConfig{
			S3: S3Config{Region: "us-east-1"},
		},
	}
}

// ServerConfig represents configuration for the resources service
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing
	PublicURL   string `env:"PUBLIC_URL" env-default:"http://localhost:8080"`

	// Database configuration. The type is detected from the URL:
	// "memory", "postgres://...", "postgresql://..." or "badger:///path".
	DatabaseURL  string `env:"DATABASE_URL" env-default:"memory"`
	DatabaseType string
	DBSchema     string `env:"DB_SCHEMA"`

	StagingDir string `env:"UPLOAD_DIR" env-default:"./uploads"`
	Namespace  string `env:"RESOURCES_NAMESPACE" env-default:"portal/resources"`
	JWTSecret  string `env:"JWT_SECRET" env-default:"dev-secret"`

	ConcurrentProbes bool          `env:"RESOLVER_CONCURRENT_PROBES" env-default:"false"`
	PrefixLimit      int           `env:"RESOLVER_PREFIX_LIMIT" env-default:"5"`
	SignedURLExpiry  time.Duration `env:"SIGNED_URL_EXPIRY" env-default:"300s"`
	ProxyAllowHosts  []string      `env:"PROXY_ALLOW_HOSTS" env-separator:","`

	Storage StorageConfig
}

// StorageConfig selects the durable store
type StorageConfig struct {
	// Backend is "none", "memory" or "s3". Empty picks s3 when a bucket is
	// configured and none otherwise.
	Backend string `env:"STORAGE_BACKEND"`
	S3      S3Config
}

// S3Config mirrors s3storage.Config with environment bindings
type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Bucket          string `env:"AWS_S3_BUCKET"`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	PublicBaseURL   string `env:"AWS_S3_PUBLIC_BASE_URL"`
	CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
	EnableSSE       bool   `env:"AWS_S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm    string `env:"AWS_S3_SSE_ALGORITHM" env-default:"AES256"`
}

// normalize derives the database type and storage backend
func (c *ServerConfig) normalize() error {
	dbURL := strings.TrimSpace(c.DatabaseURL)
	switch {
	case dbURL == "" || dbURL == DatabaseMemory:
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = DatabaseMemory
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		c.DatabaseType = DatabasePostgres
	case strings.HasPrefix(dbURL, "badger://"):
		c.DatabaseType = DatabaseBadger
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'badger:///path')", dbURL)
	}

	if c.Storage.Backend == "" {
		if c.Storage.S3.Bucket != "" {
			c.Storage.Backend = StorageS3
		} else {
			c.Storage.Backend = StorageNone
		}
	}
	return nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.StagingDir == "" {
		return errors.New("staging directory is required")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("AWS_S3_BUCKET is required when using s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if c.PrefixLimit <= 0 {
		return errors.New("resolver prefix limit must be positive")
	}
	if c.SignedURLExpiry <= 0 {
		return errors.New("signed URL expiry must be positive")
	}
	if c.Environment == "production" && c.JWTSecret == "dev-secret" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

// BadgerDir returns the directory of a badger:// database URL
func (c *ServerConfig) BadgerDir() string {
	return strings.TrimPrefix(c.DatabaseURL, "badger://")
}

// BuildRepository creates the tree repository. The returned closer releases
// pools and files.
func (c *ServerConfig) BuildRepository(ctx context.Context) (resources.TreeRepository, func(), error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), func() {}, nil
	case DatabasePostgres:
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		if schema := c.DBSchema; schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		repo := repopg.NewWithPool(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	case DatabaseBadger:
		repo, err := repobadger.Open(c.BadgerDir())
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildStore creates the durable store, or nil when uploads stay inline
func (c *ServerConfig) BuildStore() (resources.DurableStore, error) {
	switch c.Storage.Backend {
	case StorageNone:
		return nil, nil
	case StorageMemory:
		return memorystorage.New(memorystorage.WithBaseURL(strings.TrimRight(c.PublicURL, "/") + "/storage")), nil
	case StorageS3:
		s3 := c.Storage.S3
		return s3storage.New(s3storage.Config{
			Region:                 s3.Region,
			Bucket:                 s3.Bucket,
			AccessKeyID:            s3.AccessKeyID,
			SecretAccessKey:        s3.SecretAccessKey,
			Endpoint:               s3.Endpoint,
			UsePathStyle:           s3.UsePathStyle,
			PublicBaseURL:          s3.PublicBaseURL,
			EnableSSE:              s3.EnableSSE,
			SSEAlgorithm:           s3.SSEAlgorithm,
			CreateBucketIfNotExist: s3.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
}

// Components holds everything the server and CLI need
type Components struct {
	Repository resources.TreeRepository
	Store      resources.DurableStore
	Stager     *staging.Area
	Trees      *resources.TreeStore
	Pipeline   *resources.Pipeline
	Resolver   *resources.Resolver
	Proxy      *resources.Proxy
	Metrics    *metrics.Recorder

	closeRepo func()
}

// Close releases the repository
func (c *Components) Close() {
	if c.closeRepo != nil {
		c.closeRepo()
	}
}

// Build wires the repository, durable store and staging area into the
// resource components. reg may be nil to skip metrics registration.
func (c *ServerConfig) Build(ctx context.Context, reg prometheus.Registerer, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, closeRepo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	store, err := c.BuildStore()
	if err != nil {
		closeRepo()
		return nil, fmt.Errorf("failed to build durable store: %w", err)
	}
	stager, err := staging.New(staging.Config{BaseDir: c.StagingDir})
	if err != nil {
		closeRepo()
		return nil, fmt.Errorf("failed to build staging area: %w", err)
	}

	var recorder *metrics.Recorder
	if reg != nil {
		recorder = metrics.New(reg)
	}

	pipelineOpts := []resources.PipelineOption{
		resources.WithDurableStore(store),
		resources.WithNamespace(c.Namespace),
		resources.WithPipelineLogger(logger),
	}
	resolverOpts := []resources.ResolverOption{
		resources.WithResolverNamespace(c.Namespace),
		resources.WithResolverLogger(logger),
		resources.WithResolverMetrics(recorder),
		resources.WithPrefixLimit(c.PrefixLimit),
	}
	if c.ConcurrentProbes {
		resolverOpts = append(resolverOpts, resources.WithConcurrentProbes())
	}
	proxyOpts := []resources.ProxyOption{
		resources.WithSignedURLExpiry(c.SignedURLExpiry),
		resources.WithAllowedHosts(c.ProxyAllowHosts...),
		resources.WithProxyLogger(logger),
		resources.WithProxyMetrics(recorder),
	}

	components := &Components{
		Repository: repo,
		Store:      store,
		Stager:     stager,
		Trees:      resources.NewTreeStore(repo, resources.WithTreeLogger(logger)),
		Pipeline:   resources.NewPipeline(stager, pipelineOpts...),
		Resolver:   resources.NewResolver(store, resolverOpts...),
		Proxy:      resources.NewProxy(store, proxyOpts...),
		Metrics:    recorder,
		closeRepo:  closeRepo,
	}
	return components, nil
}
