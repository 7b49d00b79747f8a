package resources

import (
	"encoding/json"
	"strings"
)

// NodeType tags a Node as folder or file
type NodeType string

const (
	NodeTypeFolder NodeType = "folder"
	NodeTypeFile   NodeType = "file"
)

// DefaultRootName is the name of the empty tree returned before the first write.
const DefaultRootName = "Resources"

// Node is one entry of the resource tree. Folders own their children in
// display order; files carry an opaque locator and optional tags.
type Node struct {
	Name     string         `json:"name"`
	Type     NodeType       `json:"type"`
	URL      string         `json:"url,omitempty"`
	Tags     map[string]any `json:"tags,omitempty"`
	Children []*Node        `json:"children,omitempty"`
}

// NewFolder creates a folder node.
func NewFolder(name string, children ...*Node) *Node {
	if children == nil {
		children = []*Node{}
	}
	return &Node{Name: name, Type: NodeTypeFolder, Children: children}
}

// NewFile creates a file node.
func NewFile(name, url string) *Node {
	return &Node{Name: name, Type: NodeTypeFile, URL: url}
}

// DefaultRoot is the tree reported when nothing has been persisted yet.
func DefaultRoot() *Node {
	return NewFolder(DefaultRootName)
}

func (n *Node) IsFolder() bool { return n != nil && n.Type == NodeTypeFolder }

func (n *Node) IsFile() bool { return n != nil && n.Type == NodeTypeFile }

// MarshalJSON always emits a children array for folders and never for files.
func (n Node) MarshalJSON() ([]byte, error) {
	type folder struct {
		Name     string         `json:"name"`
		Type     NodeType       `json:"type"`
		URL      string         `json:"url,omitempty"`
		Tags     map[string]any `json:"tags,omitempty"`
		Children []*Node        `json:"children"`
	}
	type file struct {
		Name string         `json:"name"`
		Type NodeType       `json:"type"`
		URL  string         `json:"url,omitempty"`
		Tags map[string]any `json:"tags,omitempty"`
	}
	if n.Type == NodeTypeFolder {
		children := n.Children
		if children == nil {
			children = []*Node{}
		}
		return json.Marshal(folder{Name: n.Name, Type: n.Type, URL: n.URL, Tags: n.Tags, Children: children})
	}
	return json.Marshal(file{Name: n.Name, Type: n.Type, URL: n.URL, Tags: n.Tags})
}

// Walk visits n and its descendants depth-first in display order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Clone returns a deep copy of the subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	var out Node
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

// Kind is the durable store partition an object was saved under.
type Kind string

const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
)

// StorageKindInline marks a locator that carries its bytes as a data URI.
const StorageKindInline = "inline"

// ProbeOrder is the fixed priority used when a kind is unknown.
var ProbeOrder = []Kind{KindDocument, KindImage, KindVideo}

// KindForMediaType derives the storage kind from a declared media type.
func KindForMediaType(mediaType string) Kind {
	mt := strings.ToLower(mediaType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	default:
		return KindDocument
	}
}

// Asset describes an object held by the durable store.
type Asset struct {
	Kind        Kind   `json:"kind"`
	PublicID    string `json:"public_id"`
	Format      string `json:"format"`
	Version     string `json:"version"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// UploadLocator is returned by the upload pipeline and embedded by clients
// into a file node with a subsequent tree write.
type UploadLocator struct {
	Name        string `json:"name"`
	URL         string `json:"locatorUrl"`
	Size        int64  `json:"size"`
	MediaType   string `json:"mediaType"`
	StorageKind string `json:"storageKind"`
}

// TreeStats summarizes the persisted tree.
type TreeStats struct {
	TotalFiles    int    `json:"totalFiles"`
	TotalFolders  int    `json:"totalFolders"`
	TotalSize     int64  `json:"totalSize"`
	FormattedSize string `json:"formattedSize"`
}

// MigrationSummary reports the outcome of a legacy locator backfill.
type MigrationSummary struct {
	TotalFiles   int      `json:"totalFiles"`
	LegacyCount  int      `json:"legacyCount"`
	UpdatedCount int      `json:"updatedCount"`
	Unresolved   []string `json:"unresolved"`
	Saved        bool     `json:"saved"`
}
