package policy

import "github.com/pankaj-dahiya-devops/org-posture/internal/checks"

// EnabledCheckers returns all minus the checks the policy disables, keeping
// order. A nil cfg keeps everything.
func EnabledCheckers(all []checks.Checker, cfg *PolicyConfig) []checks.Checker {
	if cfg == nil {
		return all
	}
	out := make([]checks.Checker, 0, len(all))
	for _, c := range all {
		if cc, ok := cfg.Checks[c.Name()]; ok && cc.Enabled != nil && !*cc.Enabled {
			continue
		}
		out = append(out, c)
	}
	return out
}
