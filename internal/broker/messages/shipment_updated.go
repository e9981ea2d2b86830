package messages

import (
	"encoding/json"
	"time"
)

const TopicShipmentUpdated = "parcelscope.shipment.updated"

// ShipmentUpdated — результат одной проверки трека воркером.
// api-процесс сливает его в БД через ApplyShipmentUpdate.
type ShipmentUpdated struct {
	ShipmentID uint64    `json:"shipment_id"`
	CheckedAt  time.Time `json:"checked_at"`

	Status    string     `json:"status,omitempty"`
	StatusRaw string     `json:"status_raw,omitempty"`
	StatusAt  *time.Time `json:"status_at,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Events []ShipmentEvent `json:"events,omitempty"`

	Error *string `json:"error,omitempty"`
	// Машиночитаемый вид отказа (carriers.Kind.String()): auth_required
	// лечится только действием пользователя, UI по нему просит re-auth.
	ErrorKind string `json:"error_kind,omitempty"`
}

type ShipmentEvent struct {
	Status      string          `json:"status"`
	Description string          `json:"description"`
	EventTime   time.Time       `json:"event_time"`
	Location    string          `json:"location,omitempty"`
	Latitude    *float64        `json:"latitude,omitempty"`
	Longitude   *float64        `json:"longitude,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}
