package reviews

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type testEnv struct {
	client *db.Client
	svc    Service
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(client.DB()),
		Products:  products.NewRepository(client.DB()),
		Purchases: orders.NewRepository(client.DB()),
		Tx:        client,
		Outbox:    outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
	})
	require.NoError(t, err)
	return testEnv{client: client, svc: svc}
}

func (e testEnv) user(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Grace",
		LastName:     "Hopper",
		Role:         enums.RoleCustomer,
		IsActive:     true,
	}
	require.NoError(t, e.client.DB().Create(u).Error)
	return u
}

func (e testEnv) product(t *testing.T) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          "Lamp",
		Slug:          uuid.NewString(),
		Description:   "Desk lamp",
		Price:         decimal.RequireFromString("30.00"),
		SKU:           uuid.NewString(),
		Stock:         10,
		TrackQuantity: true,
		Status:        enums.ProductStatusActive,
		IsPublished:   true,
		Images:        types.ProductImages{{URL: "https://cdn.example.com/lamp.jpg", IsPrimary: true}},
	}
	require.NoError(t, e.client.DB().Create(p).Error)
	return p
}

func (e testEnv) paidOrder(t *testing.T, userID uuid.UUID, product *models.Product) {
	t.Helper()
	order := &models.Order{
		OrderNumber:    "ORD-" + uuid.NewString(),
		UserID:         userID,
		Currency:       "USD",
		ShippingMethod: enums.ShippingMethodStandard,
		Status:         enums.OrderStatusConfirmed,
		PaymentStatus:  enums.PaymentStatusPaid,
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			SKU:         product.SKU,
			Quantity:    1,
			UnitPrice:   product.Price,
		}},
	}
	require.NoError(t, e.client.DB().Create(order).Error)
}

func (e testEnv) aggregate(t *testing.T, productID uuid.UUID) (string, int) {
	t.Helper()
	var p models.Product
	require.NoError(t, e.client.DB().First(&p, "id = ?", productID).Error)
	return p.AverageRating.StringFixed(2), p.ReviewsCount
}

func TestCreateRecomputesAggregate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.product(t)

	for _, rating := range []int{5, 4, 4} {
		_, err := env.svc.Create(ctx, env.user(t).ID, product.ID, CreateReviewInput{Rating: rating, Comment: "solid"})
		require.NoError(t, err)
	}

	avg, count := env.aggregate(t, product.ID)
	assert.Equal(t, "4.33", avg)
	assert.Equal(t, 3, count)

	var rated int64
	require.NoError(t, env.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventProductRated).Count(&rated).Error)
	assert.EqualValues(t, 3, rated)
}

func TestCreateValidatesAndRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.product(t)
	user := env.user(t)

	_, err := env.svc.Create(ctx, user.ID, uuid.New(), CreateReviewInput{Rating: 5, Comment: "ghost"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = env.svc.Create(ctx, user.ID, product.ID, CreateReviewInput{Rating: 6, Comment: "too good"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = env.svc.Create(ctx, user.ID, product.ID, CreateReviewInput{Rating: 3, Comment: "   "})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	title := "  Bright  "
	review, err := env.svc.Create(ctx, user.ID, product.ID, CreateReviewInput{Rating: 3, Title: &title, Comment: "ok"})
	require.NoError(t, err)
	require.NotNil(t, review.Title)
	assert.Equal(t, "Bright", *review.Title)
	assert.False(t, review.IsVerified)
	assert.True(t, review.IsApproved)
	require.NotNil(t, review.User)
	assert.Equal(t, "Grace", review.User.FirstName)

	_, err = env.svc.Create(ctx, user.ID, product.ID, CreateReviewInput{Rating: 4, Comment: "again"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDuplicate))
}

func TestCreateMarksVerifiedPurchase(t *testing.T) {
	env := newTestEnv(t)
	product := env.product(t)
	buyer := env.user(t)
	env.paidOrder(t, buyer.ID, product)

	review, err := env.svc.Create(context.Background(), buyer.ID, product.ID, CreateReviewInput{Rating: 5, Comment: "bought it"})
	require.NoError(t, err)
	assert.True(t, review.IsVerified)
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.product(t)
	author := env.user(t)
	other := env.user(t)

	review, err := env.svc.Create(ctx, author.ID, product.ID, CreateReviewInput{Rating: 2, Comment: "meh"})
	require.NoError(t, err)

	five := 5
	_, err = env.svc.Update(ctx, other.ID, review.ID, UpdateReviewInput{Rating: &five})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	updated, err := env.svc.Update(ctx, author.ID, review.ID, UpdateReviewInput{Rating: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	avg, _ := env.aggregate(t, product.ID)
	assert.Equal(t, "5.00", avg)

	err = env.svc.Delete(ctx, other.ID, enums.RoleCustomer, review.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.NoError(t, env.svc.Delete(ctx, other.ID, enums.RoleAdmin, review.ID))
	avg, count := env.aggregate(t, product.ID)
	assert.Equal(t, "0.00", avg)
	assert.Equal(t, 0, count)
}

func TestApprovalHidesReviewFromListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.product(t)

	first, err := env.svc.Create(ctx, env.user(t).ID, product.ID, CreateReviewInput{Rating: 1, Comment: "spam"})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, env.user(t).ID, product.ID, CreateReviewInput{Rating: 4, Comment: "nice"})
	require.NoError(t, err)

	hidden, err := env.svc.SetApproval(ctx, first.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.IsApproved)

	avg, count := env.aggregate(t, product.ID)
	assert.Equal(t, "4.00", avg)
	assert.Equal(t, 1, count)

	page, err := env.svc.ListForProduct(ctx, product.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "nice", page.Items[0].Comment)

	_, err = env.svc.SetApproval(ctx, uuid.New(), true)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestReconcileHealsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drifted := env.product(t)
	healthy := env.product(t)
	orphaned := env.product(t)

	_, err := env.svc.Create(ctx, env.user(t).ID, drifted.ID, CreateReviewInput{Rating: 3, Comment: "fine"})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, env.user(t).ID, healthy.ID, CreateReviewInput{Rating: 5, Comment: "great"})
	require.NoError(t, err)

	db := env.client.DB()
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", drifted.ID).
		Updates(map[string]any{"average_rating": decimal.RequireFromString("1.00"), "reviews_count": 7}).Error)
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", orphaned.ID).
		Updates(map[string]any{"average_rating": decimal.RequireFromString("4.50"), "reviews_count": 2}).Error)

	fixed, err := env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	avg, count := env.aggregate(t, drifted.ID)
	assert.Equal(t, "3.00", avg)
	assert.Equal(t, 1, count)
	avg, count = env.aggregate(t, orphaned.ID)
	assert.Equal(t, "0.00", avg)
	assert.Equal(t, 0, count)

	fixed, err = env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}
