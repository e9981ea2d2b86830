package deprisa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/stretchr/testify/require"
)

func TestFetch_NoCredential(t *testing.T) {
	c := New("http://unused.invalid", carriers.StaticCredentials{})
	_, err := c.Strategies()[0].Fetch(context.Background(), "123456789012")
	require.Equal(t, carriers.KindAuthRequired, carriers.KindOf(err))
}

func TestFetch_CredentialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, carriers.StaticCredentials{Code: "Bearer stale"})
	_, err := c.Strategies()[0].Fetch(context.Background(), "123456789012")
	require.Equal(t, carriers.KindAuthRequired, carriers.KindOf(err))
}

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		require.Equal(t, "/v2/envios/123456789012/tracking", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"estadoActual": "ENTREGADO",
			"historia": [
				{"fecha":"2024-03-01T10:00:00Z","evento":"Admitido","ubicacion":"Bogotá"},
				{"fecha":"2024-03-03T16:20:00Z","evento":"Entregado","ubicacion":"Cartagena"}
			]
		}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, carriers.StaticCredentials{Code: "Bearer abc"})
	res, err := c.Strategies()[0].Fetch(context.Background(), "123456789012")
	require.NoError(t, err)
	require.Equal(t, "ENTREGADO", res.Status)
	require.Len(t, res.Events, 2)
	require.Equal(t, "Cartagena", res.Events[1].Location)
}

func TestFetch_NotFoundIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, carriers.StaticCredentials{Code: "Bearer abc"})
	_, err := c.Strategies()[0].Fetch(context.Background(), "123456789012")
	require.Equal(t, carriers.KindNoData, carriers.KindOf(err))
}

func TestMatch_OverlapsWithCoordinadora(t *testing.T) {
	c := New("", nil)
	require.True(t, c.Match("123456789012"))
	require.False(t, c.Match("1234567890"))
}
