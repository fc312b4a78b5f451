package enums

import "fmt"

// PaymentEventType names one transition in a payment's append-only log.
type PaymentEventType string

const (
	PaymentEventInitiated    PaymentEventType = "initiated"
	PaymentEventMarkedPaid   PaymentEventType = "marked_paid"
	PaymentEventMarkedFailed PaymentEventType = "marked_failed"
	PaymentEventRefunded     PaymentEventType = "refunded"
)

var validPaymentEventTypes = []PaymentEventType{
	PaymentEventInitiated,
	PaymentEventMarkedPaid,
	PaymentEventMarkedFailed,
	PaymentEventRefunded,
}

// String implements fmt.Stringer.
func (p PaymentEventType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentEventType.
func (p PaymentEventType) IsValid() bool {
	for _, candidate := range validPaymentEventTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// PaymentEventSource records which write path produced a transition.
type PaymentEventSource string

const (
	PaymentEventSourceRedirect PaymentEventSource = "redirect"
	PaymentEventSourceWebhook  PaymentEventSource = "webhook"
	PaymentEventSourceAdmin    PaymentEventSource = "admin"
	PaymentEventSourceSystem   PaymentEventSource = "system"
)

var validPaymentEventSources = []PaymentEventSource{
	PaymentEventSourceRedirect,
	PaymentEventSourceWebhook,
	PaymentEventSourceAdmin,
	PaymentEventSourceSystem,
}

// String implements fmt.Stringer.
func (p PaymentEventSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentEventSource.
func (p PaymentEventSource) IsValid() bool {
	for _, candidate := range validPaymentEventSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentEventSource converts raw input into a PaymentEventSource.
func ParsePaymentEventSource(value string) (PaymentEventSource, error) {
	for _, candidate := range validPaymentEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment event source %q", value)
}
