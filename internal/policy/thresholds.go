package policy

// GetThreshold returns the configured parameter value for a check, or
// defaultValue when no override is present. It is safe to call with cfg == nil.
//
// Lookup order:
//  1. cfg == nil → defaultValue
//  2. cfg.Checks[checkName] absent → defaultValue
//  3. cfg.Checks[checkName].Params[key] absent → defaultValue
//  4. Otherwise → configured value
func GetThreshold(checkName, key string, defaultValue float64, cfg *PolicyConfig) float64 {
	if cfg == nil {
		return defaultValue
	}
	cc, ok := cfg.Checks[checkName]
	if !ok {
		return defaultValue
	}
	v, ok := cc.Params[key]
	if !ok {
		return defaultValue
	}
	return v
}

// FailOn resolves the enforcement threshold. A non-empty flag wins over the
// policy file.
func FailOn(flag string, cfg *PolicyConfig) string {
	if flag != "" || cfg == nil {
		return flag
	}
	return cfg.Enforcement.FailOn
}
