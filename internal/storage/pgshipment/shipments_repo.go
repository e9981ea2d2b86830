package pgshipment

import (
	"context"
	"time"

	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	defaultInitialStatus    = models.StatusUnknown
	defaultInitialStatusRaw = "UNKNOWN"
)

const shipmentColumns = `
  id, carrier_code, track_number, title,
  status, status_raw, status_at,
  sub_carrier_name, sub_carrier_track, estimated_delivery,
  archived, muted,
  last_checked_at, next_check_at,
  check_fail_count, last_error, last_error_kind,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.CarrierCode, &sh.TrackNumber, &sh.Title,
		&sh.Status, &sh.StatusRaw, &sh.StatusAt,
		&sh.SubCarrierName, &sh.SubCarrierTrack, &sh.EstimatedDelivery,
		&sh.Archived, &sh.Muted,
		&sh.LastCheckedAt, &sh.NextCheckAt,
		&sh.CheckFailCount, &sh.LastError, &sh.LastErrorKind,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}
	return &sh, nil
}

func (s *Storage) CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO shipments (
  carrier_code, track_number, title, status, status_raw, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (carrier_code, track_number)
DO UPDATE SET updated_at = shipments.updated_at
RETURNING id
`, it.CarrierCode, it.TrackNumber, it.Title, defaultInitialStatus, defaultInitialStatusRaw, now, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert shipment")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetShipmentsByIDs(ctx, ids)
}

func (s *Storage) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, len(ids))
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListShipments — основная выборка для UI: активные или архивные,
// свежие сверху.
func (s *Storage) ListShipments(ctx context.Context, archived bool, limit, offset int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE archived = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`, archived, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments list")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) RefreshShipment(ctx context.Context, shipmentID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE shipments SET next_check_at = now(), updated_at = now() WHERE id = $1`, shipmentID)
	return errors.Wrap(err, "refresh shipment")
}

func (s *Storage) SetArchived(ctx context.Context, shipmentID uint64, archived bool) error {
	_, err := s.db.Exec(ctx, `UPDATE shipments SET archived = $2, updated_at = now() WHERE id = $1`, shipmentID, archived)
	return errors.Wrap(err, "set archived")
}

func (s *Storage) SetMuted(ctx context.Context, shipmentID uint64, muted bool) error {
	_, err := s.db.Exec(ctx, `UPDATE shipments SET muted = $2, updated_at = now() WHERE id = $1`, shipmentID, muted)
	return errors.Wrap(err, "set muted")
}

func (s *Storage) RenameShipment(ctx context.Context, shipmentID uint64, title string) error {
	_, err := s.db.Exec(ctx, `UPDATE shipments SET title = $2, updated_at = now() WHERE id = $1`, shipmentID, title)
	return errors.Wrap(err, "rename shipment")
}

// DeleteShipment удаляет посылку; события уходят каскадом (FK).
func (s *Storage) DeleteShipment(ctx context.Context, shipmentID uint64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, shipmentID)
	return errors.Wrap(err, "delete shipment")
}

// ClaimDueShipments выбирает пачку посылок, готовых к проверке, и «бронирует»
// их, чтобы они не попадали в повторную выборку, пока воркер их обрабатывает.
// Использует SELECT ... FOR UPDATE SKIP LOCKED. Архивные и доставленные
// не опрашиваем.
func (s *Storage) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE next_check_at <= $1
  AND archived = FALSE
  AND status NOT IN ($2, $3)
ORDER BY next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.StatusDelivered, models.StatusReturned, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}
	defer rows.Close()

	var picked []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		picked = append(picked, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, sh := range picked {
		_, err := tx.Exec(ctx, `UPDATE shipments SET next_check_at = $2, updated_at = now() WHERE id = $1`, sh.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		sh.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
