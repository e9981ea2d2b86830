package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/ParcelScope/internal/broker/messages"
	"github.com/BearBump/ParcelScope/internal/cache"
	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/BearBump/ParcelScope/internal/storage/pgshipment"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error)
	GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error)
	ListShipments(ctx context.Context, archived bool, limit, offset int) ([]*models.Shipment, error)
	ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error)
	RefreshShipment(ctx context.Context, shipmentID uint64) error
	SetArchived(ctx context.Context, shipmentID uint64, archived bool) error
	SetMuted(ctx context.Context, shipmentID uint64, muted bool) error
	RenameShipment(ctx context.Context, shipmentID uint64, title string) error
	DeleteShipment(ctx context.Context, shipmentID uint64) error
	ApplyShipmentUpdate(ctx context.Context, upd pgshipment.ShipmentUpdate) (models.MergeOutcome, error)
}

// Detector отвечает на вопрос «какие перевозчики узнают этот номер».
type Detector interface {
	Detect(trackNumber string) []string
}

type Service struct {
	repo       Repository
	detector   Detector
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, detector Detector, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, detector: detector, cache: c, currentTTL: currentTTL}
}

func (s *Service) CreateShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	if len(items) == 0 {
		return nil, errors.New("items is empty")
	}
	if len(items) > 10_000 {
		return nil, errors.New("too many items (max 10000)")
	}

	clean := make([]models.ShipmentCreateInput, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.TrackNumber == "" {
			return nil, errors.New("trackNumber is required")
		}
		if it.CarrierCode == "" {
			// Номер без явного перевозчика — берём первого, кто его узнал.
			if s.detector != nil {
				if cands := s.detector.Detect(it.TrackNumber); len(cands) > 0 {
					it.CarrierCode = cands[0]
				}
			}
			if it.CarrierCode == "" {
				return nil, errors.Errorf("carrier not detected for %q", it.TrackNumber)
			}
		}
		k := fmt.Sprintf("%s|%s", it.CarrierCode, it.TrackNumber)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, it)
	}

	return s.repo.CreateOrGetShipments(ctx, clean)
}

func (s *Service) DetectCarriers(trackNumber string) []string {
	if s.detector == nil {
		return nil
	}
	return s.detector.Detect(trackNumber)
}

func (s *Service) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}
	// Кэшируем «текущее состояние» целиком как JSON отправления.
	// Кэш best-effort: промах или мусор просто уводит в БД.
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Shipment, len(ids))

	if s.cache != nil && s.currentTTL > 0 {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var sh models.Shipment
			if json.Unmarshal(b, &sh) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &sh
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetShipmentsByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.currentTTL > 0 {
			for _, sh := range fromDB {
				b, _ := json.Marshal(sh)
				_ = s.cache.Set(ctx, currentKey(sh.ID), b, s.currentTTL)
			}
		}
		for _, sh := range fromDB {
			got[sh.ID] = sh
		}
	}

	// Ответ в том же порядке, что ids.
	out := make([]*models.Shipment, 0, len(ids))
	for _, id := range ids {
		if sh, ok := got[id]; ok {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *Service) ListShipments(ctx context.Context, archived bool, limit, offset int) ([]*models.Shipment, error) {
	return s.repo.ListShipments(ctx, archived, limit, offset)
}

func (s *Service) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	return s.repo.ListShipmentEvents(ctx, shipmentID, limit, offset)
}

func (s *Service) RefreshShipment(ctx context.Context, shipmentID uint64) error {
	if shipmentID == 0 {
		return errors.New("shipmentId is required")
	}
	return s.repo.RefreshShipment(ctx, shipmentID)
}

func (s *Service) SetArchived(ctx context.Context, shipmentID uint64, archived bool) error {
	if shipmentID == 0 {
		return errors.New("shipmentId is required")
	}
	if err := s.repo.SetArchived(ctx, shipmentID, archived); err != nil {
		return err
	}
	s.invalidate(ctx, shipmentID)
	return nil
}

func (s *Service) SetMuted(ctx context.Context, shipmentID uint64, muted bool) error {
	if shipmentID == 0 {
		return errors.New("shipmentId is required")
	}
	if err := s.repo.SetMuted(ctx, shipmentID, muted); err != nil {
		return err
	}
	s.invalidate(ctx, shipmentID)
	return nil
}

func (s *Service) RenameShipment(ctx context.Context, shipmentID uint64, title string) error {
	if shipmentID == 0 {
		return errors.New("shipmentId is required")
	}
	if title == "" {
		return errors.New("title is required")
	}
	if err := s.repo.RenameShipment(ctx, shipmentID, title); err != nil {
		return err
	}
	s.invalidate(ctx, shipmentID)
	return nil
}

func (s *Service) DeleteShipment(ctx context.Context, shipmentID uint64) error {
	if shipmentID == 0 {
		return errors.New("shipmentId is required")
	}
	if err := s.repo.DeleteShipment(ctx, shipmentID); err != nil {
		return err
	}
	s.invalidate(ctx, shipmentID)
	return nil
}

// ApplyKafkaUpdate сливает результат проверки воркера в БД и освежает кэш.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.ShipmentUpdated) (models.MergeOutcome, error) {
	if msg.ShipmentID == 0 {
		return models.MergeOutcome{}, errors.New("shipment_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: если воркер не послал next_check_at, ставим "через час"
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	var events []*models.ShipmentEvent
	for _, e := range msg.Events {
		var payloadStr *string
		if len(e.Payload) > 0 {
			p := string(e.Payload)
			payloadStr = &p
		}
		events = append(events, &models.ShipmentEvent{
			Status:      e.Status,
			Description: e.Description,
			EventTime:   e.EventTime,
			Location:    e.Location,
			Latitude:    e.Latitude,
			Longitude:   e.Longitude,
			PayloadJSON: payloadStr,
		})
	}

	var errorKind *string
	if msg.ErrorKind != "" {
		k := msg.ErrorKind
		errorKind = &k
	}

	out, err := s.repo.ApplyShipmentUpdate(ctx, pgshipment.ShipmentUpdate{
		ShipmentID:  msg.ShipmentID,
		CheckedAt:   msg.CheckedAt,
		Status:      msg.Status,
		StatusRaw:   msg.StatusRaw,
		StatusAt:    msg.StatusAt,
		NextCheckAt: msg.NextCheckAt,
		Events:      events,
		Error:       msg.Error,
		ErrorKind:   errorKind,
	})
	if err != nil {
		return models.MergeOutcome{}, err
	}

	// Перечитываем запись и кладём свежую в кэш.
	if s.cache != nil && s.currentTTL > 0 {
		shs, err := s.repo.GetShipmentsByIDs(ctx, []uint64{msg.ShipmentID})
		if err == nil && len(shs) == 1 {
			b, _ := json.Marshal(shs[0])
			_ = s.cache.Set(ctx, currentKey(msg.ShipmentID), b, s.currentTTL)
		}
	}

	return out, nil
}

func (s *Service) invalidate(ctx context.Context, id uint64) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, currentKey(id))
	}
}

func currentKey(id uint64) string {
	return fmt.Sprintf("shipment:%d:current", id)
}
