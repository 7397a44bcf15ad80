package policy

import "testing"

func TestGetThreshold_NilConfig(t *testing.T) {
	got := GetThreshold("IAM_BASELINE", "max_access_key_age_days", 90, nil)
	if got != 90 {
		t.Errorf("got %.1f; want 90 (nil cfg must return default)", got)
	}
}

func TestGetThreshold_CheckNotPresent(t *testing.T) {
	cfg := &PolicyConfig{Checks: map[string]CheckConfig{}}
	got := GetThreshold("IAM_BASELINE", "max_access_key_age_days", 90, cfg)
	if got != 90 {
		t.Errorf("got %.1f; want 90 (check absent must return default)", got)
	}
}

func TestGetThreshold_NilParamsMap(t *testing.T) {
	cfg := &PolicyConfig{
		Checks: map[string]CheckConfig{
			"IAM_BASELINE": {Params: nil},
		},
	}
	got := GetThreshold("IAM_BASELINE", "max_access_key_age_days", 90, cfg)
	if got != 90 {
		t.Errorf("got %.1f; want 90 (nil Params map must return default)", got)
	}
}

func TestGetThreshold_Configured(t *testing.T) {
	cfg := &PolicyConfig{
		Checks: map[string]CheckConfig{
			"IAM_BASELINE": {Params: map[string]float64{"max_access_key_age_days": 30}},
		},
	}
	got := GetThreshold("IAM_BASELINE", "max_access_key_age_days", 90, cfg)
	if got != 30 {
		t.Errorf("got %.1f; want 30", got)
	}
}

func TestFailOn(t *testing.T) {
	cfg := &PolicyConfig{Enforcement: EnforcementConfig{FailOn: "FAIL"}}

	if got := FailOn("", nil); got != "" {
		t.Errorf("nil cfg, empty flag: got %q", got)
	}
	if got := FailOn("", cfg); got != "FAIL" {
		t.Errorf("policy value must apply when flag is empty, got %q", got)
	}
	if got := FailOn("WARN", cfg); got != "WARN" {
		t.Errorf("flag must win over policy, got %q", got)
	}
}
