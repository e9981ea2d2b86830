// Package interrapidisimo — трекинг со страницы, где история вшита JSON-ом
// в <script> (SPA-гидрация). Внутренний фолбэк: встроенный JSON ->
// паттерны по видимому DOM-тексту -> NoData со сниппетом.
package interrapidisimo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/scrape"
)

const Code = "INTERRAPIDISIMO"

// 11 цифр, исторически начинаются с "24".
var trackRe = regexp.MustCompile(`^24\d{9}$`)

const stateMarker = "window.__ESTADO_GUIA__"

// Фолбэк по DOM-тексту: "01/03/2024 10:00 Recogido en Bogotá".
var textEvtRe = regexp.MustCompile(`(\d{2}/\d{2}/\d{4} \d{2}:\d{2})\s+(\p{L}[\p{L} ]*?)\s+en\s+(\p{L}[\p{L} ]*)`)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://interrapidisimo.com"
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Code() string { return Code }

func (c *Client) Match(trackNumber string) bool {
	return trackRe.MatchString(trackNumber)
}

func (c *Client) Strategies() []carriers.Strategy {
	return []carriers.Strategy{&embeddedJSONStrategy{c: c}}
}

type embeddedJSONStrategy struct {
	c *Client
}

func (s *embeddedJSONStrategy) Name() string { return "embedded-json" }

type guiaState struct {
	Estado string `json:"estado"`
	Guia   struct {
		Movimientos []struct {
			FechaHora   string `json:"fechaHora"`
			Descripcion string `json:"descripcion"`
			Ciudad      string `json:"ciudad"`
		} `json:"movimientos"`
	} `json:"guia"`
}

func (s *embeddedJSONStrategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	body, err := s.c.fetchPage(ctx, trackNumber)
	if err != nil {
		return carriers.RawResult{}, err
	}

	root, err := scrape.Parse(body)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindDecode, err, "parse page")
	}

	if raw, ok := scrape.ScriptJSON(root, stateMarker); ok {
		var st guiaState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return carriers.RawResult{}, carriers.WrapFailure(carriers.KindDecode, err, "decode embedded state").
				WithSnippet(raw)
		}
		res := carriers.RawResult{Status: strings.TrimSpace(st.Estado)}
		for _, mv := range st.Guia.Movimientos {
			ev := carriers.RawEvent{
				Description: strings.TrimSpace(mv.Descripcion),
				Location:    strings.TrimSpace(mv.Ciudad),
			}
			// ISO-8601 в гидрации.
			if t, err := time.Parse(time.RFC3339, mv.FechaHora); err == nil {
				ev.Time = t.UTC()
			}
			res.Events = append(res.Events, ev)
		}
		if !res.Empty() {
			return res, nil
		}
	}

	// JSON-а нет (или пустой) — пробуем видимый текст.
	if res := parseDOMText(scrape.Text(root)); !res.Empty() {
		return res, nil
	}

	return carriers.RawResult{}, carriers.NewFailure(carriers.KindNoData, "embedded state not found").
		WithSnippet(scrape.Snippet(body, 400))
}

func parseDOMText(text string) carriers.RawResult {
	var res carriers.RawResult
	for _, m := range textEvtRe.FindAllStringSubmatch(text, -1) {
		ev := carriers.RawEvent{
			Description: strings.TrimSpace(m[2]),
			Location:    strings.TrimSpace(m[3]),
		}
		if t, err := time.ParseInLocation("02/01/2006 15:04", m[1], time.UTC); err == nil {
			ev.Time = t
		}
		res.Events = append(res.Events, ev)
	}
	return res
}

func (c *Client) fetchPage(ctx context.Context, trackNumber string) (string, error) {
	u := c.baseURL + "/siguetuenvio/?guia=" + url.QueryEscape(trackNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", carriers.WrapFailure(carriers.KindTransport, err, "new request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", carriers.WrapFailure(carriers.KindTransport, err, "fetch page")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", carriers.NewFailure(carriers.KindTransport, fmt.Sprintf("http %d", resp.StatusCode))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", carriers.WrapFailure(carriers.KindTransport, err, "read body")
	}
	return string(b), nil
}
