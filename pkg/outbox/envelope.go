package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written into every new envelope. Consumers reject
// versions they do not know.
const EnvelopeVersion = 1

// ActorRef identifies the user whose request produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Validate reports envelopes no consumer could make sense of.
func (e PayloadEnvelope) Validate() error {
	switch {
	case e.Version < 1 || e.Version > EnvelopeVersion:
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	case e.EventID == "":
		return errors.New("envelope missing event id")
	case len(e.Data) == 0 || string(e.Data) == "null":
		return errors.New("envelope missing data")
	}
	return nil
}

// Decode unwraps a stored payload into its envelope and, when data is
// non-nil, the typed event body.
func Decode(payload []byte, data any) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return env, fmt.Errorf("decode %T: %w", data, err)
		}
	}
	return env, nil
}
