// Package policy loads the optional posture policy file and applies it: which
// checks run, checker parameters, and the status that fails a CI run.
package policy

// PolicyConfig is the parsed policy file.
//
//	version: 1
//	checks:
//	  INCIDENT_READINESS:
//	    enabled: false
//	  IAM_BASELINE:
//	    params:
//	      max_access_key_age_days: 60
//	enforcement:
//	  fail_on: WARN
type PolicyConfig struct {
	Version     int                    `yaml:"version"`
	Checks      map[string]CheckConfig `yaml:"checks"`
	Enforcement EnforcementConfig      `yaml:"enforcement"`
}

// CheckConfig overrides one check.
type CheckConfig struct {
	Enabled *bool              `yaml:"enabled,omitempty"`
	Params  map[string]float64 `yaml:"params,omitempty"`
}

// EnforcementConfig sets the exit-code threshold.
type EnforcementConfig struct {
	// FailOn is WARN or FAIL. Empty disables enforcement.
	FailOn string `yaml:"fail_on,omitempty"`
}
