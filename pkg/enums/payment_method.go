package enums

import "fmt"

// PaymentMethod identifies the provider that settled an order.
type PaymentMethod string

const (
	PaymentMethodUnset    PaymentMethod = "unset"
	PaymentMethodCashfree PaymentMethod = "cashfree"
	PaymentMethodPayPal   PaymentMethod = "paypal"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodUnset,
	PaymentMethodCashfree,
	PaymentMethodPayPal,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// IsProvider reports whether the method names a real payment provider.
func (p PaymentMethod) IsProvider() bool {
	return p == PaymentMethodCashfree || p == PaymentMethodPayPal
}
