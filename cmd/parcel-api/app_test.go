package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/BearBump/ParcelScope/internal/services/shipments"
	"github.com/BearBump/ParcelScope/internal/storage/pgshipment"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	return []*models.Shipment{}, nil
}
func (r *fakeRepo) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	return []*models.Shipment{}, nil
}
func (r *fakeRepo) ListShipments(ctx context.Context, archived bool, limit, offset int) ([]*models.Shipment, error) {
	return []*models.Shipment{}, nil
}
func (r *fakeRepo) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	return []*models.ShipmentEvent{}, nil
}
func (r *fakeRepo) RefreshShipment(ctx context.Context, shipmentID uint64) error       { return nil }
func (r *fakeRepo) SetArchived(ctx context.Context, shipmentID uint64, v bool) error   { return nil }
func (r *fakeRepo) SetMuted(ctx context.Context, shipmentID uint64, v bool) error      { return nil }
func (r *fakeRepo) RenameShipment(ctx context.Context, shipmentID uint64, title string) error {
	return nil
}
func (r *fakeRepo) DeleteShipment(ctx context.Context, shipmentID uint64) error { return nil }
func (r *fakeRepo) ApplyShipmentUpdate(ctx context.Context, upd pgshipment.ShipmentUpdate) (models.MergeOutcome, error) {
	return models.MergeOutcome{}, nil
}

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunParcelAPI_SwaggerAndHealthServed(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	svc := shipments.New(&fakeRepo{}, nil, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := parcelAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "t",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runParcelAPI(ctx, opts, svc, fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "\"swagger\"")

	resp, err = http.Get("http://" + httpAddr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case <-errCh:
	}
}

func TestRunParcelAPI_MissingSwagger(t *testing.T) {
	svc := shipments.New(&fakeRepo{}, nil, nil, time.Minute)
	err := runParcelAPI(context.Background(), parcelAPIOpts{httpAddr: "127.0.0.1:0"}, svc, fakeConsumer{})
	require.Error(t, err)
}
