package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// TreeStore loads, replaces and summarizes the single resource tree aggregate.
type TreeStore struct {
	repo   TreeRepository
	logger *slog.Logger
}

// TreeOption configures a TreeStore
type TreeOption func(*TreeStore)

// WithTreeLogger sets the logger
func WithTreeLogger(logger *slog.Logger) TreeOption {
	return func(s *TreeStore) {
		s.logger = logger
	}
}

// NewTreeStore creates a tree store over repo
func NewTreeStore(repo TreeRepository, opts ...TreeOption) *TreeStore {
	s := &TreeStore{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository returns the underlying repository
func (s *TreeStore) Repository() TreeRepository { return s.repo }

// Load returns the persisted tree, or the empty default root when nothing
// has been written yet.
func (s *TreeStore) Load(ctx context.Context) (*Node, error) {
	root, err := s.repo.LoadTree(ctx)
	if errors.Is(err, ErrNotFound) {
		return DefaultRoot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource tree: %w", err)
	}
	return root, nil
}

// Replace validates root and overwrites the aggregate with it. There is no
// concurrency token: the last writer wins.
func (s *TreeStore) Replace(ctx context.Context, root *Node) error {
	if err := ValidateTree(root); err != nil {
		return err
	}
	if err := s.repo.ReplaceTree(ctx, root); err != nil {
		return fmt.Errorf("failed to replace resource tree: %w", err)
	}
	s.logger.Info("Resource tree replaced", "root", root.Name, "children", len(root.Children))
	return nil
}

// Stats counts files and folders and sums the decoded size of inline files.
// A missing aggregate reports all zeros.
func (s *TreeStore) Stats(ctx context.Context) (*TreeStats, error) {
	root, err := s.repo.LoadTree(ctx)
	if errors.Is(err, ErrNotFound) {
		return &TreeStats{FormattedSize: FormatSize(0)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource tree: %w", err)
	}
	return ComputeStats(root), nil
}

// ComputeStats walks root once. Inline data URIs contribute len(base64)*3/4
// bytes; the total is rounded once at the end.
func ComputeStats(root *Node) *TreeStats {
	stats := &TreeStats{}
	var size float64
	root.Walk(func(n *Node) {
		switch n.Type {
		case NodeTypeFolder:
			stats.TotalFolders++
		case NodeTypeFile:
			stats.TotalFiles++
			if payload, ok := inlinePayload(n.URL); ok {
				size += float64(len(payload)) * 3 / 4
			}
		}
	})
	stats.TotalSize = int64(math.Round(size))
	stats.FormattedSize = FormatSize(stats.TotalSize)
	return stats
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders n in 1024-based units labelled Bytes, KB, MB and GB
// with at most two decimals: 0 Bytes, 1.5 KB, 2 MB.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	value := float64(n) / math.Pow(1024, float64(i))
	return humanize.Ftoa(math.Round(value*100)/100) + " " + sizeUnits[i]
}

// ValidateTree checks the root is a folder and every node is a folder or a file.
func ValidateTree(root *Node) error {
	if !root.IsFolder() {
		return newValidationError("root", ErrInvalidTree, "root folder required")
	}
	return validateChildren(root, root.Name)
}

func validateChildren(folder *Node, path string) error {
	for i, child := range folder.Children {
		if child == nil {
			return newValidationError("children", ErrInvalidTree, "empty node at %s[%d]", path, i)
		}
		childPath := path + "/" + child.Name
		switch child.Type {
		case NodeTypeFolder:
			if err := validateChildren(child, childPath); err != nil {
				return err
			}
		case NodeTypeFile:
			if len(child.Children) > 0 {
				return newValidationError("children", ErrInvalidTree, "file %s cannot have children", childPath)
			}
		default:
			return newValidationError("type", ErrInvalidTree, "invalid node type %q at %s", child.Type, childPath)
		}
	}
	return nil
}

// inlinePayload returns the base64 part of a data URI
func inlinePayload(url string) (string, bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", false
	}
	_, payload, ok := strings.Cut(url, ",")
	return payload, ok && payload != ""
}
