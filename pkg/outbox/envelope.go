package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// CurrentVersion is the envelope layout written by Emit.
const CurrentVersion = 1

// PayloadEnvelope is the JSON body stored in outbox_events and published as
// the Pub/Sub message data. Data holds the event-specific payload.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
	Data       json.RawMessage       `json:"data"`
}

// DecodeEnvelope parses a stored payload. Rows without an event id or written
// by a newer layout are rejected so the publisher can park them.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, err
	}
	if env.EventID == "" {
		return PayloadEnvelope{}, errMissingEventID
	}
	if env.Version < 1 || env.Version > CurrentVersion {
		return PayloadEnvelope{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	return env, nil
}
