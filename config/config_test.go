package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_MemoryDriverDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET_KEY", "segredo")
	t.Setenv("TRADE_WINDOW_DAYS", "7")
	t.Setenv("FREIGHT_FLAT_VALUE", "12.50")

	cfg := LoadConfig()

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 7*24*time.Hour, cfg.TradeWindow)
	assert.Equal(t, "12.50", cfg.FreightFlatValue.StringFixed(2))
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, "goloja.events", cfg.NotifyChannel)
}

func TestGetIntEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "muitos")
	assert.Equal(t, 100, getIntEnv("RATE_LIMIT_MAX_REQUESTS", 100))
}

func TestGetDecimalEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("FREIGHT_FLAT_VALUE", "quinze")
	assert.Equal(t, "15.00", getDecimalEnv("FREIGHT_FLAT_VALUE", "15.00").StringFixed(2))
}
