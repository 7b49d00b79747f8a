package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
)

func TestRepository_LoadReplace(t *testing.T) {
	repo := New()
	ctx := context.Background()

	_, err := repo.LoadTree(ctx)
	assert.ErrorIs(t, err, resources.ErrNotFound)

	root := resources.NewFolder("Resources", resources.NewFile("a.pdf", "https://cdn/a.pdf"))
	require.NoError(t, repo.ReplaceTree(ctx, root))

	root.Children[0].Name = "mutated"
	loaded, err := repo.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", loaded.Children[0].Name)
	assert.Equal(t, 1, repo.Writes())
}

func TestRepository_Ping(t *testing.T) {
	repo := New()
	assert.NoError(t, repo.Ping(context.Background()))

	repo.SetPingError(errors.New("down"))
	assert.Error(t, repo.Ping(context.Background()))
}
