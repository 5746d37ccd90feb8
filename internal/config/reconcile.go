package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReconcileConfig tunes payment matching. It is hot reloaded from reconcile.yml.
type ReconcileConfig struct {
	// StayMarkers are description substrings that tag an untyped legacy
	// payment as an inpatient stay payment.
	StayMarkers []string `mapstructure:"stayMarkers"`
	// StrictOrders rejects gateway callbacks whose order is unknown or expired.
	StrictOrders bool `mapstructure:"strictOrders"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		StayMarkers:  []string{"IPD"},
		StrictOrders: false,
	}
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

// NewStaticReconcileConfigHolder returns a holder that never reloads.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconcileConfigHolder(log *zap.Logger) (*ReconcileConfigHolder, error) {
	log = log.Named("config.reconcile")
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/carebill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAREBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.stayMarkers", defaults.StayMarkers)
	v.SetDefault("reconcile.strictOrders", defaults.StrictOrders)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcileConfig
		if err := v.UnmarshalKey("reconcile", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateReconcileConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	if h == nil {
		return DefaultReconcileConfig()
	}
	cfg, ok := h.current.Load().(ReconcileConfig)
	if !ok {
		return DefaultReconcileConfig()
	}
	return cfg
}

func validateReconcileConfig(cfg ReconcileConfig) error {
	for _, marker := range cfg.StayMarkers {
		if strings.TrimSpace(marker) == "" {
			return errors.New("reconcile.stayMarkers cannot contain blank entries")
		}
	}
	return nil
}
