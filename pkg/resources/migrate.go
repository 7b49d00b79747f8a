package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
)

// LegacyPrefix marks locators that still point at local disk
const LegacyPrefix = "/uploads/"

// Migrator rewrites legacy local-path locators to durable URLs.
type Migrator struct {
	repo     TreeRepository
	store    DurableStore
	resolver *Resolver
	dryRun   bool
	logger   *slog.Logger
}

// MigratorOption configures a Migrator
type MigratorOption func(*Migrator)

// WithDryRun resolves and reports without writing the tree back
func WithDryRun(dryRun bool) MigratorOption {
	return func(m *Migrator) {
		m.dryRun = dryRun
	}
}

func WithMigratorLogger(logger *slog.Logger) MigratorOption {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// NewMigrator creates a migrator. The resolver must read from store.
func NewMigrator(repo TreeRepository, store DurableStore, resolver *Resolver, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		repo:     repo,
		store:    store,
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run loads the tree once, resolves every legacy locator in depth-first
// order and writes the tree back once if anything changed. Only a failed
// connectivity check or a failed load/save is returned as an error; files
// that cannot be resolved are listed in the summary.
func (m *Migrator) Run(ctx context.Context) (*MigrationSummary, error) {
	runID := uuid.NewString()
	logger := m.logger.With("run_id", runID)

	if m.store == nil {
		return nil, ErrStoreNotConfigured
	}
	if err := m.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("tree repository unavailable: %w", err)
	}
	if err := m.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("durable store unavailable: %w", err)
	}

	summary := &MigrationSummary{Unresolved: []string{}}
	root, err := m.repo.LoadTree(ctx)
	if errors.Is(err, ErrNotFound) {
		logger.Info("No resource tree found, nothing to migrate")
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource tree: %w", err)
	}

	var legacy []*Node
	root.Walk(func(n *Node) {
		if n.Type != NodeTypeFile {
			return
		}
		summary.TotalFiles++
		if strings.HasPrefix(n.URL, LegacyPrefix) {
			legacy = append(legacy, n)
		}
	})
	summary.LegacyCount = len(legacy)
	logger.Info("Scanning resource tree", "total_files", summary.TotalFiles, "legacy", summary.LegacyCount)

	for _, node := range legacy {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		filename := path.Base(node.URL)
		asset, err := m.resolver.Resolve(ctx, filename)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				logger.Warn("Failed to resolve legacy file", "filename", filename, "error", err)
			}
			summary.Unresolved = append(summary.Unresolved, filename)
			continue
		}
		logger.Info("Resolved legacy file", "filename", filename, "url", asset.URL)
		node.URL = asset.URL
		summary.UpdatedCount++
	}

	if summary.UpdatedCount > 0 && !m.dryRun {
		if err := m.repo.ReplaceTree(ctx, root); err != nil {
			return nil, fmt.Errorf("failed to save migrated tree: %w", err)
		}
		summary.Saved = true
	}

	logger.Info("Migration finished",
		"legacy", summary.LegacyCount,
		"updated", summary.UpdatedCount,
		"unresolved", len(summary.Unresolved),
		"saved", summary.Saved,
		"dry_run", m.dryRun)
	return summary, nil
}
