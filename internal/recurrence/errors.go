package recurrence

import "fmt"

// InvalidRuleError reports a malformed or ambiguous recurrence specification.
type InvalidRuleError struct {
	Rule   string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("invalid recurrence rule: %s", e.Reason)
	}
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Rule, e.Reason)
}

func invalid(rule, reason string) error {
	return &InvalidRuleError{Rule: rule, Reason: reason}
}
