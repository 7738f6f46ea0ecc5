package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownSource is returned when a requested source is not registered.
var ErrUnknownSource = errors.New("unknown source")

// Registry is the immutable set of configured sources.
type Registry struct {
	order []string
	byKey map[string]Config
}

// NewRegistry validates and indexes the given sources. Keys are
// case-insensitive and must be unique.
func NewRegistry(cfgs ...Config) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Config, len(cfgs))}
	for _, cfg := range cfgs {
		cfg.Key = strings.ToLower(strings.TrimSpace(cfg.Key))
		if cfg.Headless == "" {
			cfg.Headless = HeadlessNever
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byKey[cfg.Key]; dup {
			return nil, fmt.Errorf("duplicate source key %q", cfg.Key)
		}
		r.byKey[cfg.Key] = cfg
		r.order = append(r.order, cfg.Key)
	}
	return r, nil
}

// Lookup resolves a source by key or display name.
func (r *Registry) Lookup(name string) (Config, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	if cfg, ok := r.byKey[want]; ok {
		return cfg, nil
	}
	for _, key := range r.order {
		if strings.EqualFold(r.byKey[key].Name, want) {
			return r.byKey[key], nil
		}
	}
	return Config{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

// All returns every source in registration order.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	keys := append([]string(nil), r.order...)
	sort.Strings(keys)
	return keys
}

// Override adjusts a built-in source from configuration. Unset fields keep
// the built-in value.
type Override struct {
	Enabled       *bool         `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	MaxRetries    *int          `mapstructure:"max_retries"`
	Delay         time.Duration `mapstructure:"delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
	Headless      string        `mapstructure:"headless"`
}

// WithOverrides returns a new registry with the overrides applied.
func (r *Registry) WithOverrides(overrides map[string]Override) (*Registry, error) {
	cfgs := r.All()
	for key, o := range overrides {
		idx := -1
		for i := range cfgs {
			if strings.EqualFold(cfgs[i].Key, key) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("override: %w: %s", ErrUnknownSource, key)
		}
		c := &cfgs[idx]
		if o.Enabled != nil {
			c.Enabled = *o.Enabled
		}
		if o.BaseURL != "" {
			c.BaseURL = o.BaseURL
		}
		if o.MaxRetries != nil {
			c.MaxRetries = *o.MaxRetries
		}
		if o.Delay > 0 {
			c.Delay = o.Delay
		}
		if o.Timeout > 0 {
			c.Timeout = o.Timeout
		}
		if o.DetailTimeout > 0 {
			c.DetailTimeout = o.DetailTimeout
		}
		if o.Headless != "" {
			c.Headless = HeadlessMode(strings.ToLower(o.Headless))
		}
	}
	return NewRegistry(cfgs...)
}
