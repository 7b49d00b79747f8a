package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-resources/pkg/resources"
)

// Repository implements resources.TreeRepository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	root    *resources.Node
	writes  int
	pingErr error
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{}
}

func (r *Repository) LoadTree(ctx context.Context) (*resources.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.root == nil {
		return nil, resources.ErrNotFound
	}
	// Return a copy to avoid external modifications
	return r.root.Clone(), nil
}

func (r *Repository) ReplaceTree(ctx context.Context, root *resources.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.root = root.Clone()
	r.writes++
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pingErr
}

// SetPingError makes Ping fail with err until cleared with nil
func (r *Repository) SetPingError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}

// Writes returns how many times the tree has been replaced
func (r *Repository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}
