package orders

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type testEnv struct {
	client *db.Client
	svc    Service
	impl   *service
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Carts:    cart.NewRepository(client.DB()),
		Users:    users.NewRepository(client.DB()),
		Tx:       client,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Checkout: config.CheckoutConfig{Currency: "usd"},
	})
	require.NoError(t, err)
	return testEnv{client: client, svc: svc, impl: svc.(*service)}
}

func (e testEnv) user(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         enums.RoleCustomer,
		IsActive:     true,
	}
	require.NoError(t, e.client.DB().Create(u).Error)
	return u
}

func (e testEnv) product(t *testing.T, name string, stock int, tracked bool) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          name,
		Slug:          uuid.NewString(),
		Description:   name,
		Price:         decimal.RequireFromString("20.00"),
		SKU:           uuid.NewString(),
		Stock:         stock,
		TrackQuantity: tracked,
		Status:        enums.ProductStatusActive,
		IsPublished:   true,
		Images:        types.ProductImages{{URL: "https://cdn.example.com/" + name + ".jpg"}},
	}
	require.NoError(t, e.client.DB().Create(p).Error)
	return p
}

// cartWith seeds a cart holding qty of each product with a shipping address.
func (e testEnv) cartWith(t *testing.T, userID uuid.UUID, lines map[*models.Product]int) *models.Cart {
	t.Helper()
	c := &models.Cart{
		UserID:          userID,
		ShippingMethod:  enums.ShippingMethodStandard,
		ShippingCost:    decimal.RequireFromString("5.00"),
		TaxRate:         decimal.NewFromInt(8),
		ShippingAddress: types.Address{Street: "1 Main St", City: "Springfield", ZipCode: "12345", Country: "US"},
	}
	require.NoError(t, e.client.DB().Omit("Items").Create(c).Error)
	position := 0
	for p, qty := range lines {
		item := &models.CartItem{CartID: c.ID, ProductID: p.ID, Quantity: qty, UnitPrice: p.Price, Position: position}
		require.NoError(t, e.client.DB().Omit("Product").Create(item).Error)
		position++
	}
	return c
}

// pendingOrder seeds an order directly, bypassing checkout.
func (e testEnv) pendingOrder(t *testing.T, userID uuid.UUID, lines map[*models.Product]int) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:    "ORD-" + uuid.NewString(),
		UserID:         userID,
		Currency:       "USD",
		ShippingMethod: enums.ShippingMethodStandard,
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
	}
	position := 0
	for p, qty := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         p.SKU,
			Quantity:    qty,
			UnitPrice:   p.Price,
			Position:    position,
		})
		position++
	}
	require.NoError(t, e.client.DB().Create(order).Error)
	return order
}

func (e testEnv) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, e.client.DB().First(&p, "id = ?", productID).Error)
	return p.Stock
}

func (e testEnv) reload(t *testing.T, orderID uuid.UUID) *models.Order {
	t.Helper()
	order, err := NewRepository(e.client.DB()).FindByID(t.Context(), orderID)
	require.NoError(t, err)
	return order
}
