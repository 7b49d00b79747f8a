// Package objectkey owns the naming scheme shared by staging, the durable
// store and the proxy: staging file names, kind-partitioned object keys,
// public URLs and parsing those URLs back into their parts.
package objectkey

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// LayoutVersion is the version marker embedded in every object key.
const LayoutVersion = "v1"

// DefaultNamespace prefixes every public id.
const DefaultNamespace = "portal/resources"

var (
	// ErrNoVersionMarker is returned by Parse when no kind/version pair is present
	ErrNoVersionMarker = errors.New("objectkey: no version marker in path")

	// ErrEmptyKey is returned by Parse when nothing follows the version marker
	ErrEmptyKey = errors.New("objectkey: empty key after version marker")

	versionPattern = regexp.MustCompile(`^v[0-9]+$`)
)

// Ref is an object key broken into its parts.
type Ref struct {
	Kind     string
	Version  string
	PublicID string
	Format   string
}

// Key renders the object key: <kind>/<version>/<public id>[.<format>]
func (r Ref) Key() string {
	version := r.Version
	if version == "" {
		version = LayoutVersion
	}
	key := fmt.Sprintf("%s/%s/%s", r.Kind, version, strings.Trim(r.PublicID, "/"))
	if r.Format != "" {
		key += "." + r.Format
	}
	return key
}

// Layout builds public ids and URLs for one namespace and delivery base.
type Layout struct {
	Namespace string
	BaseURL   string
}

// NewLayout returns a layout, defaulting the namespace when empty.
func NewLayout(namespace, baseURL string) Layout {
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Layout{Namespace: namespace, BaseURL: strings.TrimRight(baseURL, "/")}
}

// PublicID joins the namespace and a canonical key.
func (l Layout) PublicID(canonical string) string {
	return path.Join(l.Namespace, canonical)
}

// URL returns the delivery URL for an object key.
func (l Layout) URL(key string) string {
	return l.BaseURL + "/" + strings.TrimLeft(key, "/")
}

// Host returns the host:port of the delivery base.
func (l Layout) Host() string {
	u, err := url.Parse(l.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Parse recovers kind, version, public id and format from a delivery URL or
// a bare object key. The kind is the segment immediately before the first
// version marker; when kinds is non-empty the kind must be one of them.
func Parse(raw string, kinds ...string) (Ref, error) {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i := 1; i < len(segments); i++ {
		if !versionPattern.MatchString(segments[i]) {
			continue
		}
		kind := segments[i-1]
		if len(kinds) > 0 && !contains(kinds, kind) {
			continue
		}
		rest := segments[i+1:]
		if len(rest) == 0 || rest[len(rest)-1] == "" {
			return Ref{}, ErrEmptyKey
		}
		last := rest[len(rest)-1]
		ext := path.Ext(last)
		rest[len(rest)-1] = strings.TrimSuffix(last, ext)
		return Ref{
			Kind:     kind,
			Version:  segments[i],
			PublicID: strings.Join(rest, "/"),
			Format:   strings.TrimPrefix(ext, "."),
		}, nil
	}
	return Ref{}, ErrNoVersionMarker
}

// CanonicalKey strips the directory and last extension from a filename.
func CanonicalKey(filename string) string {
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Format returns the lowercased extension of filename without its dot.
func Format(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(path.Base(filename))), ".")
}

// StagingName builds <unix millis>-<suffix>-<sanitized basename><ext>.
// Everything outside [A-Za-z0-9_-] is dropped from the basename so the
// result is safe to join onto a directory.
func StagingName(original string, now time.Time, suffix string) string {
	base := original
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	ext := path.Ext(base)
	stem := sanitize(strings.TrimSuffix(base, ext), false)
	if stem == "" {
		stem = "file"
	}
	cleanExt := sanitize(strings.ToLower(strings.TrimPrefix(ext, ".")), true)
	if cleanExt != "" {
		cleanExt = "." + cleanExt
	}
	return fmt.Sprintf("%d-%s-%s%s", now.UnixMilli(), sanitize(suffix, false), stem, cleanExt)
}

func sanitize(s string, alnumOnly bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case !alnumOnly && (r == '_' || r == '-'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
