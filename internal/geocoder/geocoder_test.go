package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_HitIsCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "bogotá", r.URL.Query().Get("q"))
		require.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"lat":"4.7110","lon":"-74.0721"}]`))
	}))
	defer srv.Close()

	g := New(srv.URL, "test")
	ctx := context.Background()

	p, found, err := g.Resolve(ctx, "  Bogotá ")
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, 4.7110, p.Lat, 1e-9)
	require.InDelta(t, -74.0721, p.Lon, 1e-9)

	// Второй запрос того же места (в другом регистре) — из кэша.
	_, found, err = g.Resolve(ctx, "BOGOTÁ")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), calls.Load())
	require.Equal(t, 1, g.CacheLen())
}

func TestResolve_NegativeResultIsCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := New(srv.URL, "test")
	ctx := context.Background()

	_, found, err := g.Resolve(ctx, "nowhere")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = g.Resolve(ctx, "nowhere")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, int64(1), calls.Load(), "отрицательный результат должен кэшироваться")
}

func TestResolve_TransportErrorIsRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"6.2442","lon":"-75.5812"}]`))
	}))
	defer srv.Close()

	g := New(srv.URL, "test")
	ctx := context.Background()

	_, _, err := g.Resolve(ctx, "medellín")
	require.Error(t, err, "http 502 — ошибка, не кэшируется")

	p, found, err := g.Resolve(ctx, "medellín")
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, 6.2442, p.Lat, 1e-9)
	require.Equal(t, int64(2), calls.Load())
}

// Lookup общий для всех конкурентных ожидающих: отмена контекста
// вызвавшего не должна срывать запрос.
func TestResolve_DetachedFromCallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"3.4516","lon":"-76.5320"}]`))
	}))
	defer srv.Close()

	g := New(srv.URL, "test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, found, err := g.Resolve(ctx, "cali")
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, 3.4516, p.Lat, 1e-9)
	require.Equal(t, 1, g.CacheLen())
}

func TestResolve_EmptyQuery(t *testing.T) {
	g := New("http://unused.invalid", "test")
	_, found, err := g.Resolve(context.Background(), "   ")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 0, g.CacheLen())
}
