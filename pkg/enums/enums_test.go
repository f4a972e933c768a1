package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusCancelled, false},
		{OrderStatusShipped, OrderStatusProcessing, false},
		{OrderStatusShipped, OrderStatusRefunded, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusRefunded, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOrderStatusTerminalStates(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatus("bogus").IsTerminal())

	assert.True(t, OrderStatusPending.IsCancellable())
	assert.True(t, OrderStatusConfirmed.IsCancellable())
	assert.False(t, OrderStatusProcessing.IsCancellable())
}

func TestParseHelpers(t *testing.T) {
	role, err := ParseRole("moderator")
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, role)
	_, err = ParseRole("root")
	assert.Error(t, err)

	gateway, err := ParsePaymentGateway("square")
	require.NoError(t, err)
	assert.Equal(t, GatewaySquare, gateway)

	_, err = ParseOrderStatus("lost")
	assert.Error(t, err)

	method, err := ParseShippingMethod("express")
	require.NoError(t, err)
	assert.True(t, method.IsValid())

	assert.True(t, PaymentStatusPartiallyRefunded.IsRefundable())
	assert.False(t, PaymentStatusPending.IsRefundable())
}
