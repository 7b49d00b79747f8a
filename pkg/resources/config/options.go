package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads every field from the environment, falling back to the
// env-default tags.
//
//	DATABASE_URL     memory | postgres://... | badger:///var/lib/resources
//	STORAGE_BACKEND  none | memory | s3 (empty: s3 when AWS_S3_BUCKET is set)
//	UPLOAD_DIR       staging directory
//	JWT_SECRET       HS256 key for write endpoints
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase sets the database URL; the type is detected from it
func WithDatabase(url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithStagingDir sets where uploads are staged
func WithStagingDir(dir string) Option {
	return func(c *ServerConfig) error {
		if dir == "" {
			return fmt.Errorf("staging directory cannot be empty")
		}
		c.StagingDir = dir
		return nil
	}
}

// WithMemoryStorage uses the in-process durable store, served under /storage
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage.Backend = StorageMemory
		return nil
	}
}

// WithInlineStorage disables the durable store; uploads become data URIs
func WithInlineStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage.Backend = StorageNone
		return nil
	}
}

// WithS3Storage uses an S3-compatible durable store
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = "us-east-1"
		}
		c.Storage.Backend = StorageS3
		c.Storage.S3 = s3
		return nil
	}
}

func WithNamespace(namespace string) Option {
	return func(c *ServerConfig) error {
		c.Namespace = namespace
		return nil
	}
}

func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("JWT secret cannot be empty")
		}
		c.JWTSecret = secret
		return nil
	}
}

func WithConcurrentProbes(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.ConcurrentProbes = enabled
		return nil
	}
}

// WithPrefixLimit bounds the resolver's fallback prefix search
func WithPrefixLimit(limit int) Option {
	return func(c *ServerConfig) error {
		c.PrefixLimit = limit
		return nil
	}
}

func WithSignedURLExpiry(expiry time.Duration) Option {
	return func(c *ServerConfig) error {
		c.SignedURLExpiry = expiry
		return nil
	}
}

// WithProxyAllowHosts adds hosts the proxy may fetch from besides the store
func WithProxyAllowHosts(hosts ...string) Option {
	return func(c *ServerConfig) error {
		c.ProxyAllowHosts = append(c.ProxyAllowHosts, hosts...)
		return nil
	}
}
