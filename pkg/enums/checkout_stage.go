package enums

import "fmt"

// CheckoutStage names a step in a checkout flow's fixed stage sequence.
type CheckoutStage string

const (
	StageGuestOrLogin    CheckoutStage = "guest_or_login"
	StageTicketSelection CheckoutStage = "ticket_selection"
	StageBuyerDetails    CheckoutStage = "buyer_details"
	StageTierSelection   CheckoutStage = "tier_selection"
	StageTierDetails     CheckoutStage = "tier_details"
	StagePayment         CheckoutStage = "payment"
	StageSuccess         CheckoutStage = "success"
)

// flowStages fixes the forward order of stages per flow kind. Back moves
// exactly one index left, Advance exactly one right; no skipping.
var flowStages = map[FlowKind][]CheckoutStage{
	FlowKindCart:       {StageGuestOrLogin, StagePayment},
	FlowKindTickets:    {StageTicketSelection, StageBuyerDetails, StagePayment, StageSuccess},
	FlowKindMembership: {StageTierSelection, StageTierDetails, StagePayment},
}

// StagesFor returns the fixed stage sequence for the flow kind.
func StagesFor(kind FlowKind) []CheckoutStage {
	stages := flowStages[kind]
	out := make([]CheckoutStage, len(stages))
	copy(out, stages)
	return out
}

// StageIndex returns the position of the stage within the flow, or -1.
func StageIndex(kind FlowKind, stage CheckoutStage) int {
	for i, candidate := range flowStages[kind] {
		if candidate == stage {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (c CheckoutStage) String() string {
	return string(c)
}

// ParseCheckoutStage converts raw input into a CheckoutStage.
func ParseCheckoutStage(value string) (CheckoutStage, error) {
	for _, candidate := range []CheckoutStage{
		StageGuestOrLogin,
		StageTicketSelection,
		StageBuyerDetails,
		StageTierSelection,
		StageTierDetails,
		StagePayment,
		StageSuccess,
	} {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout stage %q", value)
}
