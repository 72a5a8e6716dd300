package memory

import (
	"context"
	"testing"

	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/storage/storagetest"
	"github.com/nexus-trading/screener/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Store { return NewStore() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertToken(ctx, &token.Snapshot{Address: "a", Name: "orig", LastUpdated: 1}))

	got, err := s.GetToken(ctx, "a")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.GetToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "orig", again.Name)
}

func TestStore_EmptyStatusStoredAsUnknown(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertToken(ctx, &token.Snapshot{Address: "a"}))
	got, err := s.GetToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, token.StatusUnknown, got.Status)
}
