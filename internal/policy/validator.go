package policy

import (
	"fmt"
	"strings"
)

// Validate checks cfg for semantic correctness and returns all validation errors
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - version must be 1
//   - check names must appear in availableChecks
//   - enforcement fail_on must be WARN or FAIL if set
//
// All errors are collected before returning; Validate never stops at the first error.
func Validate(cfg *PolicyConfig, availableChecks []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}

	known := make(map[string]struct{}, len(availableChecks))
	for _, n := range availableChecks {
		known[n] = struct{}{}
	}

	var errs []error

	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: unsupported value %d; must be 1", cfg.Version))
	}

	for name, cc := range cfg.Checks {
		if _, ok := known[name]; !ok {
			errs = append(errs, fmt.Errorf("checks.%s: unknown check", name))
		}
		for key, v := range cc.Params {
			if v < 0 {
				errs = append(errs, fmt.Errorf("checks.%s.params.%s: must not be negative", name, key))
			}
		}
	}

	if fo := cfg.Enforcement.FailOn; fo != "" {
		switch strings.ToUpper(fo) {
		case "WARN", "FAIL":
		default:
			errs = append(errs, fmt.Errorf("enforcement.fail_on: invalid value %q; valid values: WARN, FAIL", fo))
		}
	}

	return errs
}
