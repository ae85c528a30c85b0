package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerPolicy carries the tunable knobs of the subscription ledger.
type LedgerPolicy struct {
	// TermMonths maps a subscription type to the default length of its validity window.
	TermMonths map[string]int `mapstructure:"terms"`
	Bulk       BulkPolicy      `mapstructure:"bulk"`
	Reporting  ReportingPolicy `mapstructure:"reporting"`
	Payments   PaymentsPolicy  `mapstructure:"payments"`
}

type BulkPolicy struct {
	MaxIDs int `mapstructure:"max_ids"`
}

type ReportingPolicy struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type PaymentsPolicy struct {
	DefaultMethod string `mapstructure:"default_method"`
}

func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		TermMonths: map[string]int{
			"monthly":  1,
			"6-months": 6,
			"yearly":   12,
		},
		Bulk:      BulkPolicy{MaxIDs: 500},
		Reporting: ReportingPolicy{DefaultLimit: 20, MaxLimit: 100},
		Payments:  PaymentsPolicy{DefaultMethod: "cash"},
	}
}

type LedgerPolicyHolder struct {
	current atomic.Value // holds LedgerPolicy
}

// NewStaticLedgerPolicyHolder returns a holder that never reloads.
func NewStaticLedgerPolicyHolder(policy LedgerPolicy) *LedgerPolicyHolder {
	holder := &LedgerPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewLedgerPolicyHolder(cfg Config, log *zap.Logger) (*LedgerPolicyHolder, error) {
	return loadLedgerPolicy(cfg.LedgerPolicyPath, log)
}

func loadLedgerPolicy(path string, log *zap.Logger) (*LedgerPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/coursedesk")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COURSEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerPolicy()
	for kind, months := range defaults.TermMonths {
		v.SetDefault("ledger.terms."+kind, months)
	}
	v.SetDefault("ledger.bulk.max_ids", defaults.Bulk.MaxIDs)
	v.SetDefault("ledger.reporting.default_limit", defaults.Reporting.DefaultLimit)
	v.SetDefault("ledger.reporting.max_limit", defaults.Reporting.MaxLimit)
	v.SetDefault("ledger.payments.default_method", defaults.Payments.DefaultMethod)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodeLedgerPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticLedgerPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLedgerPolicy(v)
		if err != nil {
			log.Warn("ledger policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ledger policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *LedgerPolicyHolder) Get() LedgerPolicy {
	if h == nil {
		return DefaultLedgerPolicy()
	}
	policy, ok := h.current.Load().(LedgerPolicy)
	if !ok {
		return DefaultLedgerPolicy()
	}
	return policy
}

// TermMonthsFor returns the configured term for a subscription type.
func (p LedgerPolicy) TermMonthsFor(kind string) (int, bool) {
	months, ok := p.TermMonths[strings.ToLower(strings.TrimSpace(kind))]
	return months, ok && months > 0
}

func decodeLedgerPolicy(v *viper.Viper) (LedgerPolicy, error) {
	var root struct {
		Ledger LedgerPolicy `mapstructure:"ledger"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return LedgerPolicy{}, err
	}
	policy := root.Ledger
	normalized := make(map[string]int, len(policy.TermMonths))
	for kind, months := range policy.TermMonths {
		normalized[strings.ToLower(strings.TrimSpace(kind))] = months
	}
	policy.TermMonths = normalized
	if err := validateLedgerPolicy(policy); err != nil {
		return LedgerPolicy{}, err
	}
	return policy, nil
}

func validateLedgerPolicy(p LedgerPolicy) error {
	for _, kind := range []string{"monthly", "6-months", "yearly"} {
		if months, ok := p.TermMonths[kind]; !ok || months <= 0 {
			return fmt.Errorf("ledger.terms.%s must be positive", kind)
		}
	}
	if p.Bulk.MaxIDs <= 0 {
		return errors.New("ledger.bulk.max_ids must be positive")
	}
	if p.Reporting.DefaultLimit <= 0 || p.Reporting.MaxLimit < p.Reporting.DefaultLimit {
		return errors.New("ledger.reporting limits are inconsistent")
	}
	if strings.TrimSpace(p.Payments.DefaultMethod) == "" {
		return errors.New("ledger.payments.default_method cannot be empty")
	}
	return nil
}
