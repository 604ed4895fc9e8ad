package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

func TestMemoryStoreLookups(t *testing.T) {
	store := NewMemoryStore()
	SeedDev(store)
	ctx := context.Background()

	t.Run("unknown ids return ErrNotFound", func(t *testing.T) {
		_, err := store.GetProduct(ctx, id.NewProductID())
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))

		_, err = store.GetTestMethod(ctx, id.NewTestMethodID())
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("find by name is case-insensitive", func(t *testing.T) {
		c, err := store.FindClientByName(ctx, "acme beverages")
		require.NoError(t, err)
		assert.Equal(t, "ACME", c.Code)
	})

	t.Run("product tests ordered by sort order", func(t *testing.T) {
		p, err := store.FindProductByName(ctx, "Sparkling Water 500ml")
		require.NoError(t, err)

		assigned, err := store.ListProductTests(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, assigned, 4)
		for i := 1; i < len(assigned); i++ {
			assert.LessOrEqual(t, assigned[i-1].SortOrder, assigned[i].SortOrder)
		}
	})

	t.Run("returned records are copies", func(t *testing.T) {
		m, err := store.FindTestMethodByCode(ctx, "PH-25")
		require.NoError(t, err)
		m.Name = "mutated"

		again, err := store.FindTestMethodByCode(ctx, "PH-25")
		require.NoError(t, err)
		assert.Equal(t, "pH at 25C", again.Name)
	})
}
