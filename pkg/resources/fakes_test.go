package resources_test

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
	memorystorage "github.com/tendant/simple-resources/pkg/resources/storage/memory"
	"github.com/tendant/simple-resources/pkg/resources/staging"
)

// fakeStore wraps the in-memory backend and records what callers do to it
type fakeStore struct {
	*memorystorage.Backend

	mu         sync.Mutex
	writes     int
	statKinds  []resources.Kind
	listLimits []int
	signCalls  int
	statErr    map[resources.Kind]error
	statDelay  map[resources.Kind]time.Duration
	persistErr func(ctx context.Context) error
	signFn     func(ref resources.ObjectRef) (string, error)
	pingErr    error
}

func newFakeStore(t *testing.T) *fakeStore {
	backend := memorystorage.New()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	backend.SetBaseURL(server.URL)
	return &fakeStore{
		Backend:   backend,
		statErr:   map[resources.Kind]error{},
		statDelay: map[resources.Kind]time.Duration{},
	}
}

func (s *fakeStore) Persist(ctx context.Context, reader io.Reader, params resources.PersistParams) (*resources.Asset, error) {
	s.mu.Lock()
	s.writes++
	hook := s.persistErr
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	return s.Backend.Persist(ctx, reader, params)
}

func (s *fakeStore) Stat(ctx context.Context, ref resources.ObjectRef) (*resources.Asset, error) {
	s.mu.Lock()
	s.statKinds = append(s.statKinds, ref.Kind)
	err := s.statErr[ref.Kind]
	delay := s.statDelay[ref.Kind]
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return s.Backend.Stat(ctx, ref)
}

func (s *fakeStore) List(ctx context.Context, kind resources.Kind, prefix string, limit int) ([]*resources.Asset, error) {
	s.mu.Lock()
	s.listLimits = append(s.listLimits, limit)
	s.mu.Unlock()
	return s.Backend.List(ctx, kind, prefix, limit)
}

func (s *fakeStore) ListLimits() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int{}, s.listLimits...)
}

func (s *fakeStore) Delete(ctx context.Context, ref resources.ObjectRef) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Backend.Delete(ctx, ref)
}

func (s *fakeStore) SignedURL(ctx context.Context, ref resources.ObjectRef, expiry time.Duration) (string, error) {
	s.mu.Lock()
	s.signCalls++
	fn := s.signFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ref)
	}
	return s.Backend.SignedURL(ctx, ref, expiry)
}

func (s *fakeStore) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *fakeStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) SignCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signCalls
}

func (s *fakeStore) StatKinds() []resources.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]resources.Kind{}, s.statKinds...)
}

func newStagingArea(t *testing.T) (*staging.Area, string) {
	dir := t.TempDir()
	area, err := staging.New(staging.Config{BaseDir: dir})
	require.NoError(t, err)
	return area, dir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "staging directory should be empty")
}
