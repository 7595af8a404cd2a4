package config

import (
	"fmt"
	"time"

	"github.com/gxo-labs/rxstore/internal/logger"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
)

// Log formats understood by the logger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Settings is the top-level structure of an rxstore settings file.
type Settings struct {
	SchemaVersion string                  `yaml:"schemaVersion"`
	Store         StoreConfig             `yaml:"store"`
	FetchProfiles map[string]FetchProfile `yaml:"fetch_profiles,omitempty"`

	// FilePath is the source file, kept for error messages. It is not parsed
	// from the YAML.
	FilePath string `yaml:"-"`
}

// StoreConfig declares how a store is built.
type StoreConfig struct {
	Name string `yaml:"name"`
	// HistoryCapacity bounds the undo ledger. 0 keeps every entry.
	HistoryCapacity int    `yaml:"history_capacity,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
	LogFormat       string `yaml:"log_format,omitempty"`
}

// FetchProfile is a named set of sync pipeline settings. Durations are Go
// duration strings such as "250ms" or "2s".
type FetchProfile struct {
	Debounce     string `yaml:"debounce,omitempty"`
	Throttle     string `yaml:"throttle,omitempty"`
	RetryCount   int    `yaml:"retry_count,omitempty"`
	InitialDelay string `yaml:"initial_delay,omitempty"`
	CacheTime    string `yaml:"cache_time,omitempty"`
	Coalesce     bool   `yaml:"coalesce,omitempty"`
}

// ToFetchSettings converts the profile into pipeline settings.
func (p FetchProfile) ToFetchSettings() (*rxv1.FetchSettings, error) {
	fs := &rxv1.FetchSettings{RetryCount: p.RetryCount, Coalesce: p.Coalesce}
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"debounce", p.Debounce, &fs.DebounceTime},
		{"throttle", p.Throttle, &fs.ThrottleTime},
		{"initial_delay", p.InitialDelay, &fs.InitialDelayTime},
		{"cache_time", p.CacheTime, &fs.CacheTime},
	}
	for _, f := range fields {
		d, err := parseDuration(f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return fs, nil
}

// StoreOptions translates the store section into store options, including a
// logger built from log_level and log_format.
func (s *Settings) StoreOptions() []rxv1.StoreOption {
	level := s.Store.LogLevel
	if level == "" {
		level = "info"
	}
	format := s.Store.LogFormat
	if format == "" {
		format = LogFormatText
	}
	return []rxv1.StoreOption{
		rxv1.WithName(s.Store.Name),
		rxv1.WithHistoryCapacity(s.Store.HistoryCapacity),
		rxv1.WithLogger(logger.NewLogger(level, format, nil)),
	}
}

// Profile returns the fetch settings declared under name.
func (s *Settings) Profile(name string) (*rxv1.FetchSettings, bool) {
	p, ok := s.FetchProfiles[name]
	if !ok {
		return nil, false
	}
	fs, err := p.ToFetchSettings()
	if err != nil {
		// Loaded settings have already passed validation.
		return nil, false
	}
	return fs, true
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration '%s' cannot be negative", v)
	}
	return d, nil
}
