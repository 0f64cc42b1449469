package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who caused the event. Scheduled jobs emit with Kind "system".
type Actor struct {
	Kind string     `json:"kind"`
	ID   *uuid.UUID `json:"id,omitempty"`
}

// SystemActor is used by the sweep and reconcile jobs.
var SystemActor = &Actor{Kind: "system"}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
