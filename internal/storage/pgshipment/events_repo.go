package pgshipment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/BearBump/ParcelScope/internal/status"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type ShipmentUpdate struct {
	ShipmentID uint64

	CheckedAt time.Time

	Status    string
	StatusRaw string
	StatusAt  *time.Time

	NextCheckAt time.Time

	Events []*models.ShipmentEvent

	Error     *string
	ErrorKind *string
}

func (s *Storage) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, shipment_id, status, description,
  event_time, location, latitude, longitude, payload, created_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.ShipmentEvent
	for rows.Next() {
		var e models.ShipmentEvent
		var payload any
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.Status, &e.Description,
			&e.EventTime, &e.Location, &e.Latitude, &e.Longitude, &payload, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}

		if payload != nil {
			b, _ := json.Marshal(payload)
			s := string(b)
			e.PayloadJSON = &s
		}

		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyShipmentUpdate — слияние результата проверки в БД.
// Ключевые свойства:
//   - события вставляются ON CONFLICT DO NOTHING по ключу уникальности,
//     поэтому повторное применение того же результата — no-op;
//   - FOR UPDATE на строке посылки сериализует конкурентные merge
//     по одной посылке (в т.ч. между процессами);
//   - ветка с ошибкой не трогает ранее слитые данные.
func (s *Storage) ApplyShipmentUpdate(ctx context.Context, upd ShipmentUpdate) (models.MergeOutcome, error) {
	var out models.MergeOutcome

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prevStatus string
	if err := tx.QueryRow(ctx, `SELECT status FROM shipments WHERE id = $1 FOR UPDATE`, upd.ShipmentID).Scan(&prevStatus); err != nil {
		if err == pgx.ErrNoRows {
			return out, errors.Errorf("shipment %d not found", upd.ShipmentID)
		}
		return out, errors.Wrap(err, "lock shipment")
	}

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  last_error_kind = $4,
  next_check_at = $5,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), *upd.Error, upd.ErrorKind, upd.NextCheckAt.UTC())
		if err != nil {
			return out, errors.Wrap(err, "update shipment (error)")
		}
		if err := tx.Commit(ctx); err != nil {
			return out, errors.Wrap(err, "commit tx")
		}
		return out, nil
	}

	for _, e := range upd.Events {
		var payload any
		if e.PayloadJSON != nil && *e.PayloadJSON != "" {
			var m any
			if json.Unmarshal([]byte(*e.PayloadJSON), &m) == nil {
				payload = m
			}
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, status, description, event_time, location, latitude, longitude, payload, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
ON CONFLICT (shipment_id, description, event_time, location) DO NOTHING
`, upd.ShipmentID, e.Status, e.Description, e.EventTime.UTC(), e.Location, e.Latitude, e.Longitude, payload)
		if err != nil {
			return out, errors.Wrap(err, "insert shipment event")
		}
		out.NewEventCount += int(tag.RowsAffected())
	}

	// Статус и отметку проверки обновляем безусловно — даже без новых
	// событий факт проверки должен быть виден.
	_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  status = $3,
  status_raw = $4,
  status_at = $5,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  last_error_kind = NULL,
  next_check_at = $6,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), upd.Status, upd.StatusRaw, upd.StatusAt, upd.NextCheckAt.UTC())
	if err != nil {
		return out, errors.Wrap(err, "update shipment (ok)")
	}

	if err := tx.Commit(ctx); err != nil {
		return out, errors.Wrap(err, "commit tx")
	}

	out.StatusChanged = prevStatus != upd.Status
	out.BecameDelivered = !status.IsDelivered(prevStatus) && status.IsDelivered(upd.Status)
	return out, nil
}
