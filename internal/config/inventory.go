package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InventoryConfig tunes stock locking and invoice registration.
type InventoryConfig struct {
	LockTimeout         time.Duration `mapstructure:"lockTimeout"`
	RegisterMaxAttempts int           `mapstructure:"registerMaxAttempts"`
	InvoiceCodePrefix   string        `mapstructure:"invoiceCodePrefix"`
	DefaultMinStock     int64         `mapstructure:"defaultMinStock"`
}

func DefaultInventoryConfig() InventoryConfig {
	return InventoryConfig{
		LockTimeout:         5 * time.Second,
		RegisterMaxAttempts: 3,
		InvoiceCodePrefix:   "F",
		DefaultMinStock:     5,
	}
}

type InventoryConfigHolder struct {
	current atomic.Value // holds InventoryConfig
}

// NewStaticInventoryConfigHolder returns a holder that never reloads.
func NewStaticInventoryConfigHolder(cfg InventoryConfig) *InventoryConfigHolder {
	holder := &InventoryConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewInventoryConfigHolder() (*InventoryConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("inventory")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/kontago")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KONTAGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultInventoryConfig()
	v.SetDefault("inventory.lockTimeout", defaults.LockTimeout)
	v.SetDefault("inventory.registerMaxAttempts", defaults.RegisterMaxAttempts)
	v.SetDefault("inventory.invoiceCodePrefix", defaults.InvoiceCodePrefix)
	v.SetDefault("inventory.defaultMinStock", defaults.DefaultMinStock)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var cfg InventoryConfig
	if err := v.UnmarshalKey("inventory", &cfg); err != nil {
		return nil, err
	}
	if err := validateInventoryConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticInventoryConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated InventoryConfig
		if err := v.UnmarshalKey("inventory", &updated); err != nil {
			zap.L().Warn("inventory config reload failed", zap.Error(err))
			return
		}
		if err := validateInventoryConfig(updated); err != nil {
			zap.L().Warn("invalid inventory config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("inventory config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *InventoryConfigHolder) Get() InventoryConfig {
	if h == nil {
		return DefaultInventoryConfig()
	}
	return h.current.Load().(InventoryConfig)
}

func validateInventoryConfig(cfg InventoryConfig) error {
	if cfg.LockTimeout <= 0 {
		return errors.New("inventory.lockTimeout must be positive")
	}
	if cfg.RegisterMaxAttempts < 1 {
		return errors.New("inventory.registerMaxAttempts must be at least 1")
	}
	if strings.TrimSpace(cfg.InvoiceCodePrefix) == "" {
		return errors.New("inventory.invoiceCodePrefix cannot be empty")
	}
	if cfg.DefaultMinStock < 0 {
		return errors.New("inventory.defaultMinStock cannot be negative")
	}
	return nil
}
