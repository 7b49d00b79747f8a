package resources

import (
	"context"
	"io"
	"time"
)

// TreeRepository persists the single aggregate resource tree.
type TreeRepository interface {
	// LoadTree returns the persisted root or ErrNotFound when none exists
	LoadTree(ctx context.Context) (*Node, error)

	// ReplaceTree atomically overwrites the aggregate with root
	ReplaceTree(ctx context.Context, root *Node) error

	// Ping reports whether the backing database is reachable
	Ping(ctx context.Context) error
}

// DurableStore is the kind-partitioned remote object store.
type DurableStore interface {
	// Name identifies the backend in logs and errors
	Name() string

	// Persist uploads content under the given kind and public id
	Persist(ctx context.Context, reader io.Reader, params PersistParams) (*Asset, error)

	// Stat looks up a single object; returns ErrNotFound when absent
	Stat(ctx context.Context, ref ObjectRef) (*Asset, error)

	// List returns up to limit objects of kind whose public id starts with prefix
	List(ctx context.Context, kind Kind, prefix string, limit int) ([]*Asset, error)

	// Delete removes an object; deleting an absent object is not an error
	Delete(ctx context.Context, ref ObjectRef) error

	// SignedURL mints a time-boxed read URL for an access-restricted object
	SignedURL(ctx context.Context, ref ObjectRef, expiry time.Duration) (string, error)

	// Hosts lists the hosts durable URLs are served from
	Hosts() []string

	// Ping verifies credentials and connectivity
	Ping(ctx context.Context) error
}

// Stager holds upload bytes on local disk until they are persisted.
type Stager interface {
	Stage(ctx context.Context, name string, reader io.Reader) (*StagedFile, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
}

// ObjectRef addresses one object in the durable store.
type ObjectRef struct {
	Kind     Kind
	Version  string
	PublicID string
	Format   string
}

// PersistParams contains parameters for persisting an object
type PersistParams struct {
	Kind      Kind
	PublicID  string
	Format    string
	MediaType string
	Size      int64
}

// StagedFile describes a file written to the staging area
type StagedFile struct {
	Name string
	Path string
	Size int64
}
