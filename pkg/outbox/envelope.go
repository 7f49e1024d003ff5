package outbox

import (
	"encoding/json"
	"time"
)

// BuyerRef identifies the buyer who produced the event, when known.
type BuyerRef struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Buyer      *BuyerRef       `json:"buyer,omitempty"`
	Data       json.RawMessage `json:"data"`
}
