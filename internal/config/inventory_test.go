package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateInventoryConfig(t *testing.T) {
	assert.NoError(t, validateInventoryConfig(DefaultInventoryConfig()))

	cfg := DefaultInventoryConfig()
	cfg.LockTimeout = 0
	assert.Error(t, validateInventoryConfig(cfg))

	cfg = DefaultInventoryConfig()
	cfg.RegisterMaxAttempts = 0
	assert.Error(t, validateInventoryConfig(cfg))

	cfg = DefaultInventoryConfig()
	cfg.InvoiceCodePrefix = " "
	assert.Error(t, validateInventoryConfig(cfg))
}

func TestInventoryConfigHolderNilFallsBackToDefaults(t *testing.T) {
	var holder *InventoryConfigHolder
	assert.Equal(t, DefaultInventoryConfig(), holder.Get())

	custom := DefaultInventoryConfig()
	custom.LockTimeout = 250 * time.Millisecond
	assert.Equal(t, custom, NewStaticInventoryConfigHolder(custom).Get())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "SQLite")
	t.Setenv("LOCK_BACKEND", "Redis")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Lock.LeaseTTL)
}
