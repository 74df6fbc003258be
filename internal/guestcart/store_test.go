package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront-cart/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func shirt() models.Product {
	return models.Product{
		ID:           "p1",
		Name:         "Shirt",
		DefaultPrice: models.NewPrice("10"),
		Variants: []models.Variant{
			{ID: "v1", SKU: "S-M", Stock: intPtr(5)},
			{ID: "v2", SKU: "S-L", Stock: intPtr(5)},
		},
	}
}

func poster() models.Product {
	return models.Product{
		ID:       "p3",
		Name:     "Poster",
		Variants: []models.Variant{{ID: "a"}, {ID: "b"}},
	}
}

func mug() models.Product {
	return models.Product{
		ID:           "p2",
		Name:         "Mug",
		DefaultPrice: models.NewPrice("4"),
		Variants:     []models.Variant{{ID: "v9", SKU: "ABC123"}},
	}
}

func newTestStore() (*Store, *MemoryStore) {
	kv := NewMemoryStore()
	store := NewStore(kv, DefaultKey)
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return store, kv
}

func TestLoad_MissingKeyPersistsEmptyCart(t *testing.T) {
	store, kv := newTestStore()

	cart := store.Load(context.Background())

	assert.Empty(t, cart.Products)
	raw, ok, _ := kv.Get(context.Background(), DefaultKey)
	require.True(t, ok)
	assert.JSONEq(t, `{"cart":{"products":[]}}`, raw)
}

func TestLoad_MalformedDataIsReset(t *testing.T) {
	store, kv := newTestStore()
	require.NoError(t, kv.Set(context.Background(), DefaultKey, "{not json"))

	cart := store.Load(context.Background())

	assert.Empty(t, cart.Products)
	raw, _, _ := kv.Get(context.Background(), DefaultKey)
	assert.JSONEq(t, `{"cart":{"products":[]}}`, raw)
}

func TestLoad_DropsInvalidLinesAndPersists(t *testing.T) {
	store, kv := newTestStore()
	product := shirt()
	doc := map[string]interface{}{"cart": map[string]interface{}{"products": []interface{}{
		map[string]interface{}{"_id": "keep", "productId": "p1", "product": product, "quantity": 1, "sku": "S-M"},
		map[string]interface{}{"_id": "no-sku", "productId": "p1", "product": product, "quantity": 1},
		map[string]interface{}{"_id": "stale", "productId": "p1", "product": product, "quantity": 1, "sku": "XXL"},
	}}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), DefaultKey, string(data)))

	cart := store.Load(context.Background())

	// "no-sku" gets the default S-M and merges into "keep"
	require.Len(t, cart.Products, 1)
	assert.Equal(t, "keep", cart.Products[0].ID)
	assert.Equal(t, models.Quantity(2), cart.Products[0].Quantity)

	raw, _, _ := kv.Get(context.Background(), DefaultKey)
	assert.NotContains(t, raw, "XXL")
}

func TestAddLine_MergesSameSku(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.AddLine(ctx, shirt(), 1, "s-m")
	require.NoError(t, err)
	cart, err := store.AddLine(ctx, shirt(), 2, "S-M ")
	require.NoError(t, err)

	require.Len(t, cart.Products, 1)
	assert.Equal(t, models.Quantity(3), cart.Products[0].Quantity)
	assert.Equal(t, "S-M", cart.Products[0].SKU)
	assert.Equal(t, "guest-1700000000000-p1-S-M", cart.Products[0].ID)
}

func TestAddLine_DistinctSkusAreDistinctLines(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.AddLine(ctx, shirt(), 1, "S-M")
	require.NoError(t, err)
	cart, err := store.AddLine(ctx, shirt(), 1, "S-L")
	require.NoError(t, err)

	require.Len(t, cart.Products, 2)
	assert.Equal(t, 2, cart.Products[1].VariantCount)
}

func TestAddLine_SkuRequiredLeavesCartUnchanged(t *testing.T) {
	store, kv := newTestStore()
	ctx := context.Background()
	_, err := store.AddLine(ctx, mug(), 1, "")
	require.NoError(t, err)
	before, _, _ := kv.Get(ctx, DefaultKey)

	_, err = store.AddLine(ctx, poster(), 1, "")

	assert.True(t, errors.Is(err, models.ErrSkuRequired))
	after, _, _ := kv.Get(ctx, DefaultKey)
	assert.Equal(t, before, after)
}

func TestAddLine_SingleVariantAutoAssigns(t *testing.T) {
	store, _ := newTestStore()

	cart, err := store.AddLine(context.Background(), mug(), 1, "")

	require.NoError(t, err)
	require.Len(t, cart.Products, 1)
	assert.Equal(t, "ABC123", cart.Products[0].SKU)
}

func TestAddLine_ClampsToStock(t *testing.T) {
	store, _ := newTestStore()
	product := shirt()
	product.Variants[1].Stock = intPtr(2)

	cart, err := store.AddLine(context.Background(), product, 5, "S-L")
	require.NoError(t, err)
	assert.Equal(t, models.Quantity(2), cart.Products[0].Quantity)

	product.Variants[1].Stock = intPtr(0)
	_, err = store.AddLine(context.Background(), product, 1, "S-L")
	assert.True(t, errors.Is(err, models.ErrOutOfStock))
}

func TestAddLine_SnapshotIsolatedFromCaller(t *testing.T) {
	store, _ := newTestStore()
	product := shirt()

	cart, err := store.AddLine(context.Background(), product, 1, "S-M")
	require.NoError(t, err)
	product.Name = "Renamed"

	assert.Equal(t, "Shirt", cart.Products[0].Product.Name)
}

func TestUpdateLineQuantity(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	cart, err := store.AddLine(ctx, shirt(), 1, "S-M")
	require.NoError(t, err)
	lineID := cart.Products[0].ID

	cart, err = store.UpdateLineQuantity(ctx, lineID, 9)
	require.NoError(t, err)
	assert.Equal(t, models.Quantity(5), cart.Products[0].Quantity)

	_, err = store.UpdateLineQuantity(ctx, "missing", 1)
	assert.True(t, errors.Is(err, models.ErrLineNotFound))

	_, err = store.UpdateLineQuantity(ctx, lineID, 0)
	assert.True(t, errors.Is(err, models.ErrInvalidQuantity))
}

func TestRemoveLineAndClear(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	_, err := store.AddLine(ctx, shirt(), 1, "S-M")
	require.NoError(t, err)
	cart, err := store.AddLine(ctx, mug(), 1, "")
	require.NoError(t, err)

	cart, err = store.RemoveLine(ctx, cart.Products[0].ID)
	require.NoError(t, err)
	require.Len(t, cart.Products, 1)
	assert.Equal(t, "p2", cart.Products[0].ProductID)

	cart, err = store.RemoveLine(ctx, "missing")
	require.NoError(t, err)
	assert.Len(t, cart.Products, 1)

	cart = store.Clear(ctx)
	assert.Empty(t, cart.Products)
	assert.Empty(t, store.Load(ctx).Products)
}

func TestSaveFailureIsNotFatal(t *testing.T) {
	store, kv := newTestStore()
	kv.FailWrites(true)

	cart, err := store.AddLine(context.Background(), mug(), 1, "")

	require.NoError(t, err)
	assert.Len(t, cart.Products, 1)
}

func TestPurge(t *testing.T) {
	store, kv := newTestStore()
	ctx := context.Background()
	_, err := store.AddLine(ctx, mug(), 1, "")
	require.NoError(t, err)

	require.NoError(t, store.Purge(ctx))

	_, ok, _ := kv.Get(ctx, DefaultKey)
	assert.False(t, ok)
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "guest_cart", KeyFor("", ""))
	assert.Equal(t, "guest_cart:dev-1", KeyFor("guest_cart", "dev-1"))
	assert.Equal(t, "shop", KeyFor("shop", ""))
}

func TestAddLine_DefaultVariantPrefersActive(t *testing.T) {
	store, _ := newTestStore()
	product := models.Product{
		ID: "P1",
		Variants: []models.Variant{
			{ID: "v1", SKU: "S-M", Stock: intPtr(5), Status: models.VariantStatusActive},
			{ID: "v2", SKU: "S-L", Stock: intPtr(0), Status: models.VariantStatusActive},
		},
	}

	cart, err := store.AddLine(context.Background(), product, 2, "")

	require.NoError(t, err)
	require.Len(t, cart.Products, 1)
	assert.Equal(t, "P1", cart.Products[0].ProductID)
	assert.Equal(t, "S-M", cart.Products[0].SKU)
	assert.Equal(t, models.Quantity(2), cart.Products[0].Quantity)
}

func TestAddLine_SkuMatchIsCaseInsensitive(t *testing.T) {
	store, _ := newTestStore()
	product := models.Product{ID: "p5", Variants: []models.Variant{{ID: "v1", SKU: "xyz-1"}, {ID: "v2", SKU: "xyz-2"}}}
	ctx := context.Background()

	_, err := store.AddLine(ctx, product, 1, "Xyz-1")
	require.NoError(t, err)
	cart, err := store.AddLine(ctx, product, 1, "XYZ-1 ")
	require.NoError(t, err)

	require.Len(t, cart.Products, 1)
	assert.Equal(t, "XYZ-1", cart.Products[0].SKU)
	assert.Equal(t, models.Quantity(2), cart.Products[0].Quantity)
}

func TestLoad_IDlessLineKeepsItsIDAcrossLoads(t *testing.T) {
	store, kv := newTestStore()
	ctx := context.Background()
	product := mug()
	doc := map[string]interface{}{"cart": map[string]interface{}{"products": []interface{}{
		map[string]interface{}{"productId": "p2", "product": product, "quantity": 1},
	}}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, DefaultKey, string(data)))

	cart := store.Load(ctx)
	require.Len(t, cart.Products, 1)
	lineID := cart.Products[0].ID
	require.NotEmpty(t, lineID)

	raw, _, _ := kv.Get(ctx, DefaultKey)
	assert.Contains(t, raw, lineID)

	time.Sleep(5 * time.Millisecond)

	cart, err = store.UpdateLineQuantity(ctx, lineID, 2)
	require.NoError(t, err)
	assert.Equal(t, lineID, cart.Products[0].ID)
	assert.Equal(t, models.Quantity(2), cart.Products[0].Quantity)

	cart, err = store.RemoveLine(ctx, lineID)
	require.NoError(t, err)
	assert.Empty(t, cart.Products)
}

type countingStore struct {
	*MemoryStore
	sets int
}

func (c *countingStore) Set(ctx context.Context, key, value string) error {
	c.sets++
	return c.MemoryStore.Set(ctx, key, value)
}

func TestLoad_CanonicalDocumentIsNotRewritten(t *testing.T) {
	kv := &countingStore{MemoryStore: NewMemoryStore()}
	store := NewStore(kv, DefaultKey)
	ctx := context.Background()
	_, err := store.AddLine(ctx, mug(), 1, "")
	require.NoError(t, err)
	writes := kv.sets

	cart := store.Load(ctx)
	store.Load(ctx)

	require.Len(t, cart.Products, 1)
	assert.Equal(t, writes, kv.sets)
}

func TestMutationsRejectedWhenReadFails(t *testing.T) {
	store, kv := newTestStore()
	ctx := context.Background()
	_, err := store.AddLine(ctx, mug(), 1, "")
	require.NoError(t, err)
	cart, err := store.AddLine(ctx, shirt(), 1, "S-M")
	require.NoError(t, err)
	lineID := cart.Products[0].ID
	before, _, _ := kv.Get(ctx, DefaultKey)

	kv.FailReads(true)

	_, err = store.AddLine(ctx, shirt(), 1, "S-L")
	assert.True(t, errors.Is(err, models.ErrStorageFailure))
	assert.True(t, errors.Is(err, ErrReadFailed))

	_, err = store.UpdateLineQuantity(ctx, lineID, 3)
	assert.True(t, errors.Is(err, models.ErrStorageFailure))

	_, err = store.RemoveLine(ctx, lineID)
	assert.True(t, errors.Is(err, models.ErrStorageFailure))

	// display reads still degrade to an empty cart without writing it
	assert.Empty(t, store.Load(ctx).Products)

	kv.FailReads(false)
	after, _, _ := kv.Get(ctx, DefaultKey)
	assert.Equal(t, before, after)
	assert.Len(t, store.Load(ctx).Products, 2)
}
