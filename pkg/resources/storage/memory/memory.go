package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-resources/pkg/resources"
	"github.com/tendant/simple-resources/pkg/resources/objectkey"
	"github.com/tendant/simple-resources/pkg/resources/presigned"
)

type object struct {
	data        []byte
	contentType string
	restricted  bool
	updatedAt   time.Time
}

// Backend is an in-memory implementation of resources.DurableStore. It also
// serves its objects over HTTP so proxies can be exercised end to end:
// restricted objects answer 403 unless the request carries a valid signature.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
	baseURL string
	signer  *presigned.Signer
}

// Option configures the backend
type Option func(*Backend)

// WithBaseURL sets the delivery base used to build object URLs
func WithBaseURL(baseURL string) Option {
	return func(b *Backend) {
		b.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithSigningKey sets the HMAC key for signed URLs
func WithSigningKey(key string) Option {
	return func(b *Backend) {
		b.signer = presigned.New(presigned.WithSecretKey(key))
	}
}

// New creates a new in-memory durable store
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]*object),
		baseURL: "http://memory.local",
		signer:  presigned.New(presigned.WithSecretKey("memory-store-signing-key")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetBaseURL changes the delivery base, for stores served by httptest
func (b *Backend) SetBaseURL(baseURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseURL = strings.TrimRight(baseURL, "/")
}

// SetRestricted marks an object as requiring a signed URL
func (b *Backend) SetRestricted(ref resources.ObjectRef, restricted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[keyOf(ref)]
	if !ok {
		return resources.ErrNotFound
	}
	obj.restricted = restricted
	return nil
}

func (b *Backend) Name() string { return "memory" }

// Persist stores the content under its kind-partitioned key
func (b *Backend) Persist(ctx context.Context, reader io.Reader, params resources.PersistParams) (*resources.Asset, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &resources.StorageError{Backend: b.Name(), Key: params.PublicID, Op: "persist", Err: err}
	}
	ref := resources.ObjectRef{Kind: params.Kind, PublicID: params.PublicID, Format: params.Format}
	contentType := params.MediaType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[keyOf(ref)] = &object{data: data, contentType: contentType, updatedAt: time.Now().UTC()}
	return b.assetLocked(keyOf(ref)), nil
}

// Put stores raw bytes at ref, for seeding tests
func (b *Backend) Put(ref resources.ObjectRef, contentType string, data []byte) *resources.Asset {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[keyOf(ref)] = &object{data: data, contentType: contentType, updatedAt: time.Now().UTC()}
	return b.assetLocked(keyOf(ref))
}

// Stat looks up a single object
func (b *Backend) Stat(ctx context.Context, ref resources.ObjectRef) (*resources.Asset, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.objects[keyOf(ref)]; !ok {
		return nil, resources.ErrNotFound
	}
	return b.assetLocked(keyOf(ref)), nil
}

// List returns objects of kind whose public id starts with prefix, in key order
func (b *Backend) List(ctx context.Context, kind resources.Kind, prefix string, limit int) ([]*resources.Asset, error) {
	keyPrefix := fmt.Sprintf("%s/%s/%s", kind, objectkey.LayoutVersion, prefix)

	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0)
	for key := range b.objects {
		if strings.HasPrefix(key, keyPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	assets := make([]*resources.Asset, 0, len(keys))
	for _, key := range keys {
		assets = append(assets, b.assetLocked(key))
	}
	return assets, nil
}

// Delete removes an object; absent objects are ignored
func (b *Backend) Delete(ctx context.Context, ref resources.ObjectRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, keyOf(ref))
	return nil
}

// SignedURL returns an HMAC-signed URL served by this backend
func (b *Backend) SignedURL(ctx context.Context, ref resources.ObjectRef, expiry time.Duration) (string, error) {
	signedPath, err := b.signer.SignPath("/"+keyOf(ref), expiry)
	if err != nil {
		return "", err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseURL + signedPath, nil
}

// Hosts returns the host of the delivery base
func (b *Backend) Hosts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return []string{objectkey.NewLayout("", b.baseURL).Host()}
}

func (b *Backend) Ping(ctx context.Context) error { return nil }

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// ServeHTTP delivers objects by key
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/")

	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	if obj.restricted {
		if err := b.signer.ValidateRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
	}
	w.Header().Set("Content-Type", obj.contentType)
	http.ServeContent(w, r, "", obj.updatedAt, bytes.NewReader(obj.data))
}

func (b *Backend) assetLocked(key string) *resources.Asset {
	obj := b.objects[key]
	ref, _ := objectkey.Parse(key)
	return &resources.Asset{
		Kind:        resources.Kind(ref.Kind),
		PublicID:    ref.PublicID,
		Format:      ref.Format,
		Version:     ref.Version,
		URL:         b.baseURL + "/" + key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}
}

func keyOf(ref resources.ObjectRef) string {
	return objectkey.Ref{Kind: string(ref.Kind), Version: ref.Version, PublicID: ref.PublicID, Format: ref.Format}.Key()
}
