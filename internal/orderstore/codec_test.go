package orderstore

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

func TestRegistry_RoundTripsDecimalMoneyFields(t *testing.T) {
	reg := Registry()

	order := domain.EnrichedOrder{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Products: []domain.EnrichedProduct{
			{ProductID: "p-1", Price: decimal.NewFromFloat(19.99), Quantity: 3, Subtotal: decimal.NewFromFloat(59.97)},
		},
		TotalAmount: decimal.NewFromFloat(59.97),
	}

	payload, err := bson.MarshalWithRegistry(reg, order)
	require.NoError(t, err)

	var out domain.EnrichedOrder
	require.NoError(t, bson.UnmarshalWithRegistry(reg, payload, &out))

	assert.True(t, out.TotalAmount.Equal(decimal.NewFromFloat(59.97)), "totalAmount must survive the round trip exactly")
	require.Len(t, out.Products, 1)
	assert.True(t, out.Products[0].Price.Equal(decimal.NewFromFloat(19.99)))
	assert.True(t, out.Products[0].Subtotal.Equal(decimal.NewFromFloat(59.97)))
}

func TestRegistry_WithoutItDecimalRoundTripsAsZero(t *testing.T) {
	// Documents the failure mode the registry fixes: the default struct
	// codec silently zeroes decimal.Decimal fields instead of erroring.
	order := domain.EnrichedOrder{
		OrderID:     "order-1",
		TotalAmount: decimal.NewFromInt(100),
	}

	payload, err := bson.Marshal(order)
	require.NoError(t, err)

	var out domain.EnrichedOrder
	require.NoError(t, bson.Unmarshal(payload, &out))

	assert.False(t, out.TotalAmount.Equal(decimal.NewFromInt(100)), "default codec is expected to lose the decimal value")
}
