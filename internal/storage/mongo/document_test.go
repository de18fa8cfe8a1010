package mongo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xenking/chronos-shop/internal/domain/order"
)

func TestDocumentKeepsExactAmounts(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &order.Order{
		ID:            "0195536c-1c00-7000-8000-000000000001",
		Items:         []order.LineItem{{Name: "Diver", Price: decimal.RequireFromString("0.10"), Quantity: 3}},
		Total:         decimal.RequireFromString("0.30"),
		Customer:      order.Customer{Name: "Ada", Email: "ada@example.com", Address: "1 Loop St"},
		PaymentMethod: order.PaymentCashOnDelivery,
		Status:        order.StatusPending,
		CreatedAt:     at,
		UpdatedAt:     at,
	}

	doc, err := toDocument(o)
	require.NoError(t, err)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var decoded storedOrder
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got, err := decoded.toOrder()
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(got.Total))
	assert.True(t, o.Items[0].Price.Equal(got.Items[0].Price))
	assert.Equal(t, o.Customer, got.Customer)
	assert.Equal(t, order.PaymentCashOnDelivery, got.PaymentMethod)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestDocumentUsesStoredKeys(t *testing.T) {
	doc, err := toDocument(&order.Order{
		ID:    "x",
		Items: []order.LineItem{{Name: "A", Price: decimal.NewFromInt(1), Quantity: 1}},
		Total: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	for _, key := range []string{"_id", "items", "total", "user", "paymentMethod", "status", "createdAt", "updatedAt"} {
		assert.Contains(t, m, key)
	}
}

func TestStoredOrderReadsNodeBackendDocuments(t *testing.T) {
	oid := primitive.NewObjectID()
	at := time.Date(2024, 11, 5, 9, 30, 0, 0, time.UTC)
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: oid},
		{Key: "items", Value: bson.A{
			bson.D{{Key: "name", Value: "Diver"}, {Key: "price", Value: 249.95}, {Key: "quantity", Value: int32(2)}},
			bson.D{{Key: "name", Value: "Strap"}, {Key: "price", Value: int32(20)}, {Key: "quantity", Value: 1.0}},
		}},
		{Key: "total", Value: 519.9},
		{Key: "user", Value: bson.D{{Key: "name", Value: "Ada"}, {Key: "email", Value: "ada@example.com"}, {Key: "address", Value: "1 Loop St"}}},
		{Key: "paymentMethod", Value: "Card"},
		{Key: "status", Value: "Shipped"},
		{Key: "createdAt", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "updatedAt", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "__v", Value: int32(0)},
	})
	require.NoError(t, err)

	var doc storedOrder
	require.NoError(t, bson.Unmarshal(raw, &doc))

	got, err := doc.toOrder()
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), got.ID)
	assert.True(t, decimal.RequireFromString("519.9").Equal(got.Total), got.Total.String())
	require.Len(t, got.Items, 2)
	assert.True(t, decimal.RequireFromString("249.95").Equal(got.Items[0].Price), got.Items[0].Price.String())
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(20).Equal(got.Items[1].Price))
	assert.Equal(t, 1, got.Items[1].Quantity)
	assert.Equal(t, order.PaymentCard, got.PaymentMethod)
	assert.Equal(t, order.StatusShipped, got.Status)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestStoredOrderRejectsUnknownAmountType(t *testing.T) {
	raw, err := bson.Marshal(bson.D{{Key: "_id", Value: "x"}, {Key: "total", Value: true}})
	require.NoError(t, err)

	var doc storedOrder
	require.NoError(t, bson.Unmarshal(raw, &doc))

	_, err = doc.toOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding total")
}

func TestIDFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	tests := []struct {
		name string
		id   string
		want bson.D
	}{
		{
			name: "uuid",
			id:   "0195536c-1c00-7000-8000-000000000001",
			want: bson.D{{Key: "_id", Value: "0195536c-1c00-7000-8000-000000000001"}},
		},
		{
			name: "object id",
			id:   oid.Hex(),
			want: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, oid.Hex()}}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idFilter(tt.id))
		})
	}
}
