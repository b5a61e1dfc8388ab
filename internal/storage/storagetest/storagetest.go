// Package storagetest is a conformance suite every storage.Store backend runs.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/storage"
)

// Run exercises the storage.Store contract against stores built by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, map[string]string{
			storage.KeyAccessToken:  "access",
			storage.KeyRefreshToken: "refresh",
		}))

		v, ok, err := s.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "access", v)

		v, ok, err = s.Get(ctx, storage.KeyRefreshToken)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "refresh", v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, map[string]string{storage.KeyCartItems: "[]"}))
		require.NoError(t, s.Set(ctx, map[string]string{storage.KeyCartItems: `[{"id":"a"}]`}))

		v, _, err := s.Get(ctx, storage.KeyCartItems)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":"a"}]`, v)
	})

	t.Run("empty value is present", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, map[string]string{storage.KeyXSRFToken: ""}))
		_, ok, err := s.Get(ctx, storage.KeyXSRFToken)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete several keys", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, map[string]string{
			storage.KeyAccessToken:  "a",
			storage.KeyRefreshToken: "r",
			storage.KeyCartItems:    "[]",
		}))
		require.NoError(t, s.Delete(ctx, storage.KeyAccessToken, storage.KeyRefreshToken, "never-set"))

		for _, k := range []string{storage.KeyAccessToken, storage.KeyRefreshToken} {
			_, ok, err := s.Get(ctx, k)
			require.NoError(t, err)
			assert.False(t, ok, k)
		}
		_, ok, err := s.Get(ctx, storage.KeyCartItems)
		require.NoError(t, err)
		assert.True(t, ok, "unrelated keys survive")
	})

	t.Run("delete nothing", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Delete(ctx))
		assert.NoError(t, s.Set(ctx, nil))
	})
}
