package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
)

// Store and profile names end up in metric labels and log attributes.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ValidateSettings runs the checks JSON Schema cannot express and returns
// every problem found.
func ValidateSettings(s *Settings) []error {
	var errs []error

	if s.Store.Name == "" {
		errs = append(errs, rxerrors.NewValidationError("store: 'name' is required", nil))
	} else if !nameRegex.MatchString(s.Store.Name) {
		errs = append(errs, rxerrors.NewValidationError(fmt.Sprintf("store: name '%s' contains invalid characters (allowed: alphanumeric, underscore, hyphen)", s.Store.Name), nil))
	}
	if s.Store.HistoryCapacity < 0 {
		errs = append(errs, rxerrors.NewValidationError("store: history_capacity cannot be negative", nil))
	}
	if s.Store.LogLevel != "" && !validLogLevels[strings.ToLower(s.Store.LogLevel)] {
		errs = append(errs, rxerrors.NewValidationError(fmt.Sprintf("store: invalid log_level '%s'", s.Store.LogLevel), nil))
	}
	switch strings.ToLower(s.Store.LogFormat) {
	case "", LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, rxerrors.NewValidationError(fmt.Sprintf("store: invalid log_format '%s'", s.Store.LogFormat), nil))
	}

	// Sorted so the combined message is stable.
	names := make([]string, 0, len(s.FetchProfiles))
	for name := range s.FetchProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		profile := s.FetchProfiles[name]
		if !nameRegex.MatchString(name) {
			errs = append(errs, rxerrors.NewValidationError(fmt.Sprintf("fetch profile '%s': name contains invalid characters", name), nil))
		}
		if profile.RetryCount < 0 {
			errs = append(errs, rxerrors.NewValidationError(fmt.Sprintf("fetch profile '%s': retry_count cannot be negative", name), nil))
		}
		if _, err := profile.ToFetchSettings(); err != nil {
			errs = append(errs, rxerrors.NewValidationError(fmt.Sprintf("fetch profile '%s': invalid duration", name), err))
		}
	}

	return errs
}
