package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
)

// EnvOverrides are the settings an operator may override from the
// environment. Unset variables leave the file value alone.
type EnvOverrides struct {
	LogLevel        string `env:"RXSTORE_LOG_LEVEL"`
	LogFormat       string `env:"RXSTORE_LOG_FORMAT"`
	HistoryCapacity *int   `env:"RXSTORE_HISTORY_CAPACITY"`
}

// ParseEnv reads EnvOverrides from the process environment.
func ParseEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply copies every set override onto s.
func (o EnvOverrides) Apply(s *Settings) {
	if o.LogLevel != "" {
		s.Store.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		s.Store.LogFormat = o.LogFormat
	}
	if o.HistoryCapacity != nil {
		s.Store.HistoryCapacity = *o.HistoryCapacity
	}
}

// LoadWithEnv loads settings and applies environment overrides on top. The
// merged result is validated again.
func LoadWithEnv(settingsYAML []byte, filePathHint string) (*Settings, error) {
	s, err := Load(settingsYAML, filePathHint)
	if err != nil {
		return nil, err
	}
	return withEnv(s)
}

// LoadFromFileWithEnv is LoadWithEnv for a file on disk.
func LoadFromFileWithEnv(filePath string) (*Settings, error) {
	s, err := LoadFromFile(filePath)
	if err != nil {
		return nil, err
	}
	return withEnv(s)
}

func withEnv(s *Settings) (*Settings, error) {
	o, err := ParseEnv()
	if err != nil {
		return nil, rxerrors.NewConfigError("failed to read environment overrides", err)
	}
	o.Apply(s)
	if errs := ValidateSettings(s); len(errs) > 0 {
		return nil, errs[0]
	}
	return s, nil
}
