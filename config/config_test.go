package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "guest_cart", cfg.Cart.GuestKey)
	assert.Equal(t, 4, cfg.Cart.ReconcileConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Cart.LockTTL)
	assert.Equal(t, time.Minute, cfg.Cart.CacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GUEST_CART_KEY", "shop_cart")
	t.Setenv("RECONCILE_CONCURRENCY", "8")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CART_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "shop_cart", cfg.Cart.GuestKey)
	assert.Equal(t, 8, cfg.Cart.ReconcileConcurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Cart.CacheTTL)
}
