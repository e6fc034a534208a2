package enums

import "fmt"

// ReconcileResult is the outcome of reconciling one webhook delivery.
type ReconcileResult string

const (
	ReconcileApplied         ReconcileResult = "applied"
	ReconcileDuplicate       ReconcileResult = "duplicate_noop"
	ReconcileConflict        ReconcileResult = "conflict"
	ReconcileNotFound        ReconcileResult = "not_found"
	ReconcileMalformed       ReconcileResult = "malformed"
	ReconcileUnauthenticated ReconcileResult = "unauthenticated"
	ReconcileIgnored         ReconcileResult = "ignored"
)

var validReconcileResults = []ReconcileResult{
	ReconcileApplied,
	ReconcileDuplicate,
	ReconcileConflict,
	ReconcileNotFound,
	ReconcileMalformed,
	ReconcileUnauthenticated,
	ReconcileIgnored,
}

// String implements fmt.Stringer.
func (r ReconcileResult) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReconcileResult.
func (r ReconcileResult) IsValid() bool {
	for _, candidate := range validReconcileResults {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReconcileResult converts raw input into a ReconcileResult.
func ParseReconcileResult(value string) (ReconcileResult, error) {
	for _, candidate := range validReconcileResults {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reconcile result %q", value)
}
