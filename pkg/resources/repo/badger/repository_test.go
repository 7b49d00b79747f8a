package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
)

func TestBadgerRepository(t *testing.T) {
	repo, err := Open("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	_, err = repo.LoadTree(ctx)
	assert.ErrorIs(t, err, resources.ErrNotFound)

	root := resources.NewFolder("Resources",
		resources.NewFolder("Slides", resources.NewFile("Intro", "data:application/pdf;base64,AAAA")))
	require.NoError(t, repo.ReplaceTree(ctx, root))

	loaded, err := repo.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, root, loaded)

	require.NoError(t, repo.Close())
	assert.Error(t, repo.Ping(ctx))
}

func TestBadgerRepository_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceTree(ctx, resources.NewFolder("Resources")))
	require.NoError(t, repo.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Resources", loaded.Name)
}
