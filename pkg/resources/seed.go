package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// legacyLink is one entry of the flat pre-tree resources document
type legacyLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// legacyDocument is the flat shape used before resources became a tree
type legacyDocument struct {
	Type          NodeType     `json:"type"`
	Notes         []legacyLink `json:"notes"`
	Slides        []legacyLink `json:"slides"`
	Recordings    []legacyLink `json:"recordings"`
	ExternalLinks []legacyLink `json:"external_links"`
}

// Seeder loads an initial tree from a JSON document
type Seeder struct {
	store *TreeStore
}

func NewSeeder(store *TreeStore) *Seeder {
	return &Seeder{store: store}
}

// Seed reads either a folder-rooted tree or the legacy flat document and
// replaces the persisted tree with it.
func (s *Seeder) Seed(ctx context.Context, r io.Reader) (*Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed document: %w", err)
	}
	root, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	if err := s.store.Replace(ctx, root); err != nil {
		return nil, err
	}
	return root, nil
}

// ParseSeed decodes a seed document into a tree
func ParseSeed(data []byte) (*Node, error) {
	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, newValidationError("seed", err, "invalid seed document: %v", err)
	}
	if legacy.Type == NodeTypeFolder {
		var root Node
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, newValidationError("seed", err, "invalid seed document: %v", err)
		}
		return &root, nil
	}
	return NewFolder(DefaultRootName,
		legacyFolder("Notes", legacy.Notes),
		legacyFolder("Slides", legacy.Slides),
		legacyFolder("Recordings", legacy.Recordings),
		legacyFolder("External Links", legacy.ExternalLinks),
	), nil
}

func legacyFolder(name string, links []legacyLink) *Node {
	children := make([]*Node, 0, len(links))
	for _, link := range links {
		children = append(children, NewFile(link.Title, link.URL))
	}
	return NewFolder(name, children...)
}
