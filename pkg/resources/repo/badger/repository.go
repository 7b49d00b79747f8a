// Package badger stores the resource tree in an embedded Badger database
// under a single key.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/tendant/simple-resources/pkg/resources"
)

var treeKey = []byte("resource-tree/root")

// Repository implements resources.TreeRepository on Badger
type Repository struct {
	db *badger.DB
}

// New wraps an open database
func New(db *badger.DB) *Repository {
	return &Repository{db: db}
}

// Open opens (or creates) a database at dir. An empty dir runs in memory.
func Open(dir string) (*Repository, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) LoadTree(ctx context.Context) (*resources.Node, error) {
	var root resources.Node
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(treeKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &root)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, resources.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource tree: %w", err)
	}
	return &root, nil
}

// ReplaceTree overwrites the single key in one read-write transaction
func (r *Repository) ReplaceTree(ctx context.Context, root *resources.Node) error {
	raw, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode resource tree: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(treeKey, raw)
	})
	if err != nil {
		return fmt.Errorf("failed to replace resource tree: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if r.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}
