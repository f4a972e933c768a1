package orders

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestReserveConfirmsAndDecrements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t)
	a := env.product(t, "a", 5, true)
	b := env.product(t, "b", 0, false)
	order := env.pendingOrder(t, user.ID, map[*models.Product]int{a: 2, b: 4})

	require.NoError(t, env.client.WithTx(ctx, func(tx *gorm.DB) error {
		return Reserve(ctx, tx, order)
	}))

	stored := env.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	assert.True(t, stored.StockReserved)
	for _, item := range stored.Items {
		if item.ProductID == a.ID {
			assert.Equal(t, 2, item.ReservedQuantity)
		} else {
			assert.Equal(t, 0, item.ReservedQuantity)
		}
	}
	assert.Equal(t, 3, env.stock(t, a.ID))
	assert.Equal(t, 0, env.stock(t, b.ID))

	var sold models.Product
	require.NoError(t, env.client.DB().First(&sold, "id = ?", b.ID).Error)
	assert.Equal(t, 4, sold.SalesCount)

	// a second call is a no-op
	require.NoError(t, env.client.WithTx(ctx, func(tx *gorm.DB) error {
		return Reserve(ctx, tx, stored)
	}))
	assert.Equal(t, 3, env.stock(t, a.ID))
}

func TestReserveIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t)
	plenty := env.product(t, "plenty", 10, true)
	scarce := env.product(t, "scarce", 1, true)
	order := env.pendingOrder(t, user.ID, map[*models.Product]int{plenty: 3, scarce: 2})

	err := env.client.WithTx(ctx, func(tx *gorm.DB) error {
		return Reserve(ctx, tx, order)
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	shortage, ok := typed.Details().(StockShortage)
	require.True(t, ok)
	assert.Equal(t, scarce.ID.String(), shortage.ProductID)

	assert.Equal(t, 10, env.stock(t, plenty.ID))
	assert.Equal(t, 1, env.stock(t, scarce.ID))
	stored := env.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.False(t, stored.StockReserved)
}

func TestConcurrentReservationsForLastUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t)
	last := env.product(t, "last", 1, true)
	first := env.pendingOrder(t, user.ID, map[*models.Product]int{last: 1})
	second := env.pendingOrder(t, user.ID, map[*models.Product]int{last: 1})

	var won, lost atomic.Int32
	var g errgroup.Group
	for _, order := range []*models.Order{first, second} {
		g.Go(func() error {
			err := env.client.WithTx(ctx, func(tx *gorm.DB) error {
				return Reserve(ctx, tx, order)
			})
			switch {
			case err == nil:
				won.Add(1)
			case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, won.Load())
	assert.EqualValues(t, 1, lost.Load())
	assert.Equal(t, 0, env.stock(t, last.ID))
}
