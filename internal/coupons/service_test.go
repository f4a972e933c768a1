package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *service) {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t).DB()))
	require.NoError(t, err)
	return svc, svc.(*service)
}

func TestCreateValidatesAndNormalizes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateCouponInput{Code: " save10 ", Type: enums.CouponTypePercentage, Value: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", created.Code)
	assert.True(t, created.IsActive)

	_, err = svc.Create(ctx, CreateCouponInput{Code: "Save10", Type: enums.CouponTypeFixed, Value: decimal.NewFromInt(5)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDuplicate))

	cases := []CreateCouponInput{
		{Code: "", Type: enums.CouponTypeFixed, Value: decimal.NewFromInt(1)},
		{Code: "BAD", Type: "bogus", Value: decimal.NewFromInt(1)},
		{Code: "ZERO", Type: enums.CouponTypeFixed, Value: decimal.Zero},
		{Code: "HUGE", Type: enums.CouponTypePercentage, Value: decimal.NewFromInt(101)},
	}
	for _, input := range cases {
		_, err := svc.Create(ctx, input)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "code %q", input.Code)
	}
}

func TestRedeemable(t *testing.T) {
	svc, internal := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	internal.now = func() time.Time { return now }

	expiry := now.Add(time.Hour)
	created, err := svc.Create(ctx, CreateCouponInput{Code: "SPRING", Type: enums.CouponTypeFixed, Value: decimal.NewFromInt(5), ExpiresAt: &expiry})
	require.NoError(t, err)

	coupon, err := svc.Redeemable(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, created.ID, coupon.ID)

	internal.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = svc.Redeemable(ctx, "SPRING")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	internal.now = func() time.Time { return now }
	require.NoError(t, svc.Deactivate(ctx, created.ID))
	_, err = svc.Redeemable(ctx, "SPRING")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Redeemable(ctx, "UNKNOWN")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	assert.True(t, pkgerrors.Is(svc.Deactivate(ctx, uuid.New()), pkgerrors.CodeNotFound))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
}
