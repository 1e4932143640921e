package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_Recalculate(t *testing.T) {
	cart := &Cart{Items: []CartItem{
		{ProductID: uuid.New(), Quantity: 2, Price: decimal.NewFromInt(10)},
		{ProductID: uuid.New(), Quantity: 3, Price: decimal.RequireFromString("1.50")},
	}}
	cart.Recalculate()
	assert.True(t, cart.TotalPrice.Equal(decimal.RequireFromString("24.50")))

	cart.RemoveAt(0)
	cart.Recalculate()
	assert.True(t, cart.TotalPrice.Equal(decimal.RequireFromString("4.50")))

	cart.Clear()
	assert.True(t, cart.Empty())
	assert.True(t, cart.TotalPrice.IsZero())
}

func TestCart_IndexOf(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	cart := &Cart{Items: []CartItem{{ProductID: a}, {ProductID: b}}}
	assert.Equal(t, 1, cart.IndexOf(b))
	assert.Equal(t, -1, cart.IndexOf(uuid.New()))
}

func TestProduct_InStockDerivedFromQuantity(t *testing.T) {
	p := &Product{Quantity: 0}
	assert.False(t, p.InStock())
	assert.False(t, p.CanSupply(1))

	p.Quantity = 3
	assert.True(t, p.InStock())
	assert.True(t, p.CanSupply(3))
	assert.False(t, p.CanSupply(4))
}

func TestProductSet_AddRemove(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	var set ProductSet

	assert.True(t, set.Add(a))
	assert.False(t, set.Add(a))
	assert.True(t, set.Add(b))
	assert.Equal(t, ProductSet{a, b}, set)

	assert.True(t, set.Remove(a))
	assert.False(t, set.Remove(a))
	assert.Equal(t, ProductSet{b}, set)
}

func TestParseProductSet_SkipsDuplicatesAndGarbage(t *testing.T) {
	a := uuid.New()
	set := ParseProductSet([]string{a.String(), "nope", a.String()})
	assert.Equal(t, ProductSet{a}, set)
}

func TestCart_JSONShape(t *testing.T) {
	pid := uuid.New()
	cart := &Cart{Items: []CartItem{{ProductID: pid, Quantity: 2, Price: decimal.NewFromInt(10)}}}
	cart.Recalculate()

	raw, err := json.Marshal(cart)
	require.NoError(t, err)

	var got struct {
		Items []struct {
			Product  string  `json:"product"`
			Quantity int     `json:"quantity"`
			Price    float64 `json:"price"`
		} `json:"items"`
		TotalPrice float64 `json:"totalPrice"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, pid.String(), got.Items[0].Product)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, 10.0, got.Items[0].Price)
	assert.Equal(t, 20.0, got.TotalPrice)
}
