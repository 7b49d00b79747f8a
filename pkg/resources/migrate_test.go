package resources_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
	memoryrepo "github.com/tendant/simple-resources/pkg/resources/repo/memory"
)

func newMigrator(repo *memoryrepo.Repository, store *fakeStore, opts ...resources.MigratorOption) *resources.Migrator {
	return resources.NewMigrator(repo, store, resources.NewResolver(store), opts...)
}

func TestMigrator_ScenarioB(t *testing.T) {
	repo := memoryrepo.New()
	store := newFakeStore(t)
	ctx := context.Background()

	var root resources.Node
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Resources","type":"folder","children":[{"name":"Old","type":"file","url":"/uploads/123-x.docx"}]}`), &root))
	require.NoError(t, resources.NewTreeStore(repo).Replace(ctx, &root))
	durable := store.Put(ref(resources.KindDocument, "123-x", "docx"), "application/msword", []byte("doc"))

	summary, err := newMigrator(repo, store).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalFiles)
	assert.Equal(t, 1, summary.LegacyCount)
	assert.Equal(t, 1, summary.UpdatedCount)
	assert.Empty(t, summary.Unresolved)
	assert.True(t, summary.Saved)

	loaded, err := repo.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, durable.URL, loaded.Children[0].URL)
	assert.Equal(t, 0, store.Writes())
}

func TestMigrator_PartialResolution(t *testing.T) {
	repo := memoryrepo.New()
	store := newFakeStore(t)
	ctx := context.Background()

	root := resources.NewFolder("Resources",
		resources.NewFolder("Notes",
			resources.NewFile("A", "/uploads/1-a.pdf"),
			resources.NewFile("B", "/uploads/nested/2-b.png"),
		),
		resources.NewFile("Remote", "https://cdn.example.com/document/v1/portal/resources/r.pdf"),
		resources.NewFile("Missing", "/uploads/3-missing.pdf"),
	)
	require.NoError(t, repo.ReplaceTree(ctx, root))
	store.Put(ref(resources.KindDocument, "1-a", "pdf"), "application/pdf", []byte("a"))
	image := store.Put(ref(resources.KindImage, "2-b", "png"), "image/png", []byte("b"))

	summary, err := newMigrator(repo, store).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalFiles)
	assert.Equal(t, 3, summary.LegacyCount)
	assert.Equal(t, 2, summary.UpdatedCount)
	assert.Equal(t, []string{"3-missing.pdf"}, summary.Unresolved)

	loaded, err := repo.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, image.URL, loaded.Children[0].Children[1].URL)
	assert.Equal(t, "/uploads/3-missing.pdf", loaded.Children[2].URL)
}

func TestMigrator_WritesOnlyWhenUpdated(t *testing.T) {
	ctx := context.Background()

	t.Run("NothingResolved", func(t *testing.T) {
		repo := memoryrepo.New()
		require.NoError(t, repo.ReplaceTree(ctx, resources.NewFolder("Resources", resources.NewFile("x", "/uploads/x.pdf"))))

		summary, err := newMigrator(repo, newFakeStore(t)).Run(ctx)
		require.NoError(t, err)
		assert.False(t, summary.Saved)
		assert.Equal(t, 1, repo.Writes())
	})

	t.Run("DryRun", func(t *testing.T) {
		repo := memoryrepo.New()
		store := newFakeStore(t)
		require.NoError(t, repo.ReplaceTree(ctx, resources.NewFolder("Resources", resources.NewFile("x", "/uploads/x.pdf"))))
		store.Put(ref(resources.KindDocument, "x", "pdf"), "application/pdf", []byte("x"))

		summary, err := newMigrator(repo, store, resources.WithDryRun(true)).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UpdatedCount)
		assert.False(t, summary.Saved)
		assert.Equal(t, 1, repo.Writes())
	})

	t.Run("NoTree", func(t *testing.T) {
		repo := memoryrepo.New()
		summary, err := newMigrator(repo, newFakeStore(t)).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.LegacyCount)
		assert.Equal(t, 0, repo.Writes())
	})
}

func TestMigrator_StartupChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("RepositoryDown", func(t *testing.T) {
		repo := memoryrepo.New()
		repo.SetPingError(errors.New("connection refused"))
		_, err := newMigrator(repo, newFakeStore(t)).Run(ctx)
		assert.ErrorContains(t, err, "tree repository unavailable")
	})

	t.Run("StoreCredentials", func(t *testing.T) {
		repo := memoryrepo.New()
		require.NoError(t, repo.ReplaceTree(ctx, resources.NewFolder("Resources", resources.NewFile("x", "/uploads/x.pdf"))))
		store := newFakeStore(t)
		store.pingErr = errors.New("invalid access key")

		_, err := newMigrator(repo, store).Run(ctx)
		assert.ErrorContains(t, err, "durable store unavailable")
		assert.Equal(t, 1, repo.Writes())
	})

	t.Run("NoStore", func(t *testing.T) {
		_, err := resources.NewMigrator(memoryrepo.New(), nil, resources.NewResolver(nil)).Run(ctx)
		assert.ErrorIs(t, err, resources.ErrStoreNotConfigured)
	})
}
