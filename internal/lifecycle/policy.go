package lifecycle

import "fmt"

// Policy selects how mutators treat the transition table.
type Policy string

const (
	// PolicyStrict re-checks the table inside every mutator.
	PolicyStrict Policy = "strict"
	// PolicyLenient trusts the caller's visibility gating. A terminal state
	// is never left; marking a PAID invoice paid again re-stamps the
	// payment, while a CANCELLED invoice refuses every mutator.
	PolicyLenient Policy = "lenient"
)

// ParsePolicy maps a config value to a Policy. Empty means strict.
func ParsePolicy(v string) (Policy, error) {
	switch Policy(v) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	default:
		return "", fmt.Errorf("lifecycle: unknown transition policy %q", v)
	}
}
