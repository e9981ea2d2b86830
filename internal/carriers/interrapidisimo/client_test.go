package interrapidisimo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestMatch(t *testing.T) {
	c := New("")
	require.True(t, c.Match("24123456789"))
	require.False(t, c.Match("25123456789"))
	require.False(t, c.Match("2412345678"))
}

func TestFetch_EmbeddedJSON(t *testing.T) {
	c := serve(t, `<html><body>
	<div id="app"></div>
	<script>
	window.__ESTADO_GUIA__ = {"estado":"EN CAMINO","guia":{"movimientos":[
		{"fechaHora":"2024-03-01T10:00:00Z","descripcion":"Recogido","ciudad":"Bogotá"},
		{"fechaHora":"2024-03-02T08:00:00-05:00","descripcion":"En tránsito","ciudad":"Medellín"}
	]}};
	</script></body></html>`)

	res, err := c.Strategies()[0].Fetch(context.Background(), "24123456789")
	require.NoError(t, err)
	require.Equal(t, "EN CAMINO", res.Status)
	require.Len(t, res.Events, 2)
	require.Equal(t, "Recogido", res.Events[0].Description)
	// Время приводится к UTC.
	require.Equal(t, time.Date(2024, 3, 2, 13, 0, 0, 0, time.UTC), res.Events[1].Time)
}

func TestFetch_DOMTextFallback(t *testing.T) {
	c := serve(t, `<html><body><div class="timeline">
		<span>01/03/2024 10:00 Recogido en Bogotá</span>
		<span>02/03/2024 07:45 Llegó a bodega en Medellín</span>
	</div></body></html>`)

	res, err := c.Strategies()[0].Fetch(context.Background(), "24123456789")
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	require.Equal(t, "Recogido", res.Events[0].Description)
	require.Equal(t, "Bogotá", res.Events[0].Location)
	require.Equal(t, "Llegó a bodega", res.Events[1].Description)
	require.Equal(t, "Medellín", res.Events[1].Location)
}

func TestFetch_MalformedEmbeddedJSON(t *testing.T) {
	c := serve(t, `<html><script>window.__ESTADO_GUIA__ = {"estado": broken};</script></html>`)

	_, err := c.Strategies()[0].Fetch(context.Background(), "24123456789")
	require.Error(t, err)
	require.Equal(t, carriers.KindDecode, carriers.KindOf(err))
}

func TestFetch_NoData(t *testing.T) {
	c := serve(t, `<html><body>sin datos</body></html>`)

	_, err := c.Strategies()[0].Fetch(context.Background(), "24123456789")
	require.Equal(t, carriers.KindNoData, carriers.KindOf(err))
	var f *carriers.Failure
	require.ErrorAs(t, err, &f)
	require.NotEmpty(t, f.Snippet)
}
