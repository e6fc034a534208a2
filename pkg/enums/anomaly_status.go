package enums

import "fmt"

// AnomalyStatus tracks manual review of a payment anomaly.
type AnomalyStatus string

const (
	AnomalyStatusOpen      AnomalyStatus = "open"
	AnomalyStatusAccepted  AnomalyStatus = "accepted"
	AnomalyStatusDismissed AnomalyStatus = "dismissed"
)

var validAnomalyStatuses = []AnomalyStatus{
	AnomalyStatusOpen,
	AnomalyStatusAccepted,
	AnomalyStatusDismissed,
}

// String implements fmt.Stringer.
func (a AnomalyStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AnomalyStatus.
func (a AnomalyStatus) IsValid() bool {
	for _, candidate := range validAnomalyStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAnomalyStatus converts raw input into a AnomalyStatus.
func ParseAnomalyStatus(value string) (AnomalyStatus, error) {
	for _, candidate := range validAnomalyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid anomaly status %q", value)
}
