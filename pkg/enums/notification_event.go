package enums

import "fmt"

// NotificationEvent names an event delivered to the automation endpoint.
type NotificationEvent string

const (
	NotificationPaymentCompleted NotificationEvent = "payment_completed"
	NotificationNewOrder         NotificationEvent = "new_order"
	NotificationOrderComplete    NotificationEvent = "order_complete"
)

var validNotificationEvents = []NotificationEvent{
	NotificationPaymentCompleted,
	NotificationNewOrder,
	NotificationOrderComplete,
}

// String implements fmt.Stringer.
func (n NotificationEvent) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationEvent.
func (n NotificationEvent) IsValid() bool {
	for _, candidate := range validNotificationEvents {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationEvent converts raw input into a NotificationEvent.
func ParseNotificationEvent(value string) (NotificationEvent, error) {
	for _, candidate := range validNotificationEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification event %q", value)
}
