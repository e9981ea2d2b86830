package models

import "time"

// Нормализованные статусы (общая таксономия, см. internal/status).
const (
	StatusUnknown        = "UNKNOWN"
	StatusPreShipment    = "PRE_SHIPMENT"
	StatusPending        = "PENDING"
	StatusInTransit      = "IN_TRANSIT"
	StatusOutForDelivery = "OUT_FOR_DELIVERY"
	StatusException      = "EXCEPTION"
	StatusReturned       = "RETURNED"
	StatusDelivered      = "DELIVERED"
)

type Shipment struct {
	ID          uint64
	CarrierCode string
	TrackNumber string
	Title       string

	Status    string
	StatusRaw string
	StatusAt  *time.Time

	// Последняя миля: иногда перевозчик передаёт посылку локальному курьеру.
	SubCarrierName  *string
	SubCarrierTrack *string

	EstimatedDelivery *time.Time

	Archived bool
	Muted    bool

	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string
	LastErrorKind  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShipmentEvent struct {
	ID         uint64
	ShipmentID uint64

	Status      string
	Description string
	EventTime   time.Time
	Location    string

	Latitude  *float64
	Longitude *float64

	PayloadJSON *string
	CreatedAt   time.Time
}

type ShipmentCreateInput struct {
	CarrierCode string
	TrackNumber string
	Title       string
}

// MergeOutcome — результат слияния свежего результата с БД.
// Его потребляют внешние нотификации/UI, ядро на него не реагирует.
type MergeOutcome struct {
	StatusChanged   bool `json:"statusChanged"`
	NewEventCount   int  `json:"newEventCount"`
	BecameDelivered bool `json:"becameDelivered"`
}
