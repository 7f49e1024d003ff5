package enums

import "fmt"

// FlowKind names the purchase type a checkout session walks through.
type FlowKind string

const (
	FlowKindCart       FlowKind = "cart"
	FlowKindTickets    FlowKind = "tickets"
	FlowKindMembership FlowKind = "membership"
)

var validFlowKinds = []FlowKind{
	FlowKindCart,
	FlowKindTickets,
	FlowKindMembership,
}

// String implements fmt.Stringer.
func (f FlowKind) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FlowKind.
func (f FlowKind) IsValid() bool {
	for _, candidate := range validFlowKinds {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFlowKind converts raw input into a FlowKind.
func ParseFlowKind(value string) (FlowKind, error) {
	for _, candidate := range validFlowKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid flow kind %q", value)
}
