package refresher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ParcelScope/internal/broker/messages"
	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/geocoder"
	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeClaimRepo struct {
	items []*models.Shipment
}

func (r *fakeClaimRepo) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	out := r.items
	r.items = nil
	return out, nil
}

type fakeResolver struct {
	res carriers.RawResult
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, trackNumber, carrierCode string) (carriers.RawResult, string, error) {
	return f.res, carrierCode, f.err
}

type fakeGeo struct {
	calls  map[string]int
	points map[string]geocoder.Point
}

func (g *fakeGeo) Resolve(ctx context.Context, location string) (geocoder.Point, bool, error) {
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	g.calls[location]++
	p, ok := g.points[location]
	return p, ok, nil
}

type fakeProducer struct {
	topics []string
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

type fakeRL struct {
	keys []string
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.keys = append(r.keys, key)
	return true, 1, nil
}

func TestProcessOne_PublishesNormalizedUpdate(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC)
	resolver := &fakeResolver{res: carriers.RawResult{
		Status: "ENTREGADO",
		Events: []carriers.RawEvent{
			{Time: t1, Description: "Recogido por el transportador", Location: "Bogotá"},
			{Time: t2, Description: "Entregado al destinatario", Location: "Medellín"},
		},
	}}
	geo := &fakeGeo{points: map[string]geocoder.Point{
		"Bogotá": {Lat: 4.711, Lon: -74.0721},
	}}
	prod := &fakeProducer{}
	rl := &fakeRL{}

	r := New(&fakeClaimRepo{}, resolver, geo, prod, rl, "t.updated")
	sh := &models.Shipment{ID: 42, CarrierCode: "SERVIENTREGA", TrackNumber: "1234567890"}
	require.NoError(t, r.processOne(context.Background(), sh))

	require.Len(t, prod.values, 1)
	require.Equal(t, "t.updated", prod.topics[0])
	require.Equal(t, []byte("42"), prod.keys[0])

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(prod.values[0], &msg))
	require.Equal(t, uint64(42), msg.ShipmentID)
	require.Equal(t, models.StatusDelivered, msg.Status)
	require.Equal(t, "ENTREGADO", msg.StatusRaw)
	require.NotNil(t, msg.StatusAt)
	require.True(t, msg.StatusAt.Equal(t2))
	require.Nil(t, msg.Error)

	require.Len(t, msg.Events, 2)
	require.Equal(t, models.StatusInTransit, msg.Events[0].Status)
	require.NotNil(t, msg.Events[0].Latitude)
	require.InDelta(t, 4.711, *msg.Events[0].Latitude, 0.001)
	require.Equal(t, models.StatusDelivered, msg.Events[1].Status)
	// Medellín не нашёлся — координат нет, событие остаётся.
	require.Nil(t, msg.Events[1].Latitude)

	// DELIVERED паркуется надолго.
	require.True(t, msg.NextCheckAt.After(time.Now().Add(300*24*time.Hour)))

	// Rate limiter спрошен по ключу перевозчика.
	require.Len(t, rl.keys, 1)
	require.Contains(t, rl.keys[0], "rl:carrier:SERVIENTREGA:")
}

func TestProcessOne_GeocodeDedupedPerLocation(t *testing.T) {
	now := time.Now().UTC()
	resolver := &fakeResolver{res: carriers.RawResult{
		Status: "EN TRANSITO",
		Events: []carriers.RawEvent{
			{Time: now.Add(-2 * time.Hour), Description: "En bodega", Location: "Cali"},
			{Time: now.Add(-1 * time.Hour), Description: "Despachado", Location: "Cali"},
			{Time: now, Description: "En camino", Location: "Cali"},
		},
	}}
	geo := &fakeGeo{points: map[string]geocoder.Point{"Cali": {Lat: 3.4516, Lon: -76.532}}}
	prod := &fakeProducer{}

	r := New(&fakeClaimRepo{}, resolver, geo, prod, nil, "t")
	require.NoError(t, r.processOne(context.Background(), &models.Shipment{ID: 1, CarrierCode: "COORDINADORA", TrackNumber: "123456789012"}))

	require.Equal(t, 1, geo.calls["Cali"], "один lookup на уникальный город")

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(prod.values[0], &msg))
	for _, e := range msg.Events {
		require.NotNil(t, e.Latitude)
	}
}

func TestProcessOne_FailurePublishesErrorWithBackoff(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("all strategies exhausted")}
	prod := &fakeProducer{}

	r := New(&fakeClaimRepo{}, resolver, nil, prod, nil, "t")
	sh := &models.Shipment{ID: 7, CarrierCode: "DEPRISA", TrackNumber: "999999999999", CheckFailCount: 1}
	require.NoError(t, r.processOne(context.Background(), sh))

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(prod.values[0], &msg))
	require.NotNil(t, msg.Error)
	require.Contains(t, *msg.Error, "exhausted")
	require.Equal(t, "transport", msg.ErrorKind)
	require.Empty(t, msg.Events)
	// Второй промах подряд — вторая ступень лестницы (15 минут).
	d := time.Until(msg.NextCheckAt)
	require.Greater(t, d, 13*time.Minute)
	require.Less(t, d, 17*time.Minute)
}

// auth_required не ходит по лестнице backoff: без новой учётки повторы
// бесполезны, сообщение несёт машиночитаемый вид отказа, посылка паркуется.
func TestProcessOne_AuthRequiredParksAndCarriesKind(t *testing.T) {
	resolver := &fakeResolver{err: &carriers.Exhausted{
		TrackNumber: "999999999999",
		Attempts: []carriers.Attempt{
			{Carrier: "DEPRISA", Strategy: "rest", Kind: carriers.KindAuthRequired, Err: carriers.NewFailure(carriers.KindAuthRequired, "401")},
		},
	}}
	prod := &fakeProducer{}

	r := New(&fakeClaimRepo{}, resolver, nil, prod, nil, "t")
	sh := &models.Shipment{ID: 8, CarrierCode: "DEPRISA", TrackNumber: "999999999999"}
	require.NoError(t, r.processOne(context.Background(), sh))

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(prod.values[0], &msg))
	require.NotNil(t, msg.Error)
	require.Equal(t, "auth_required", msg.ErrorKind)
	// Паркуемся на сутки, а не на первую ступень backoff (5 минут).
	d := time.Until(msg.NextCheckAt)
	require.Greater(t, d, 23*time.Hour)
	require.Less(t, d, 25*time.Hour)
}

func TestRunOnce_ProcessesClaimedBatch(t *testing.T) {
	repo := &fakeClaimRepo{items: []*models.Shipment{
		{ID: 1, CarrierCode: "FAKE", TrackNumber: "FK-1"},
		{ID: 2, CarrierCode: "FAKE", TrackNumber: "FK-2"},
	}}
	resolver := &fakeResolver{res: carriers.RawResult{Status: "EN TRANSITO", Events: []carriers.RawEvent{
		{Time: time.Now().UTC(), Description: "En camino", Location: ""},
	}}}
	prod := &fakeProducer{}

	r := New(repo, resolver, nil, prod, nil, "t")
	r.runOnce(context.Background())

	require.Len(t, prod.values, 2)
	st := r.Stats()
	require.Equal(t, int64(2), st.TotalClaimed)
	require.Equal(t, int64(2), st.TotalProcessed)
	require.Zero(t, st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestTrigger_NonBlocking(t *testing.T) {
	r := New(&fakeClaimRepo{}, &fakeResolver{}, nil, &fakeProducer{}, nil, "t")
	r.Trigger()
	r.Trigger() // второй не должен блокировать
	require.NotNil(t, r.Stats().LastTriggerAt)
}
