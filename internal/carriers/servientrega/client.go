// Package servientrega — трекинг через неавторизованный JSON API,
// которому нужен короткоживущий bearer-токен, «собранный» со страницы
// растрео. Внутренний фолбэк: кэшированный токен -> пересбор токена -> отказ.
package servientrega

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
)

const Code = "SERVIENTREGA"

// Формат номера: 10 цифр.
var trackRe = regexp.MustCompile(`^\d{10}$`)

// Токен лежит в странице как "apiToken":"...".
var tokenRe = regexp.MustCompile(`"apiToken"\s*:\s*"([^"]+)"`)

type Client struct {
	baseURL string
	httpc   *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.servientrega.com"
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
	return []carriers.Strategy{&apiStrategy{c: c}}
}

type apiStrategy struct {
	c *Client
}

func (s *apiStrategy) Name() string { return "token-api" }

func (s *apiStrategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	// Сначала пробуем с кэшированным токеном, при отказе API —
	// один пересбор со страницы и повтор.
	token, err := s.c.currentToken(ctx, false)
	if err != nil {
		return carriers.RawResult{}, err
	}

	res, err := s.c.query(ctx, token, trackNumber)
	if err != nil && carriers.KindOf(err) == carriers.KindAuthRequired {
		token, err = s.c.currentToken(ctx, true)
		if err != nil {
			return carriers.RawResult{}, err
		}
		res, err = s.c.query(ctx, token, trackNumber)
	}
	return res, err
}

func (c *Client) currentToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tracking", nil)
	if err != nil {
		return "", carriers.WrapFailure(carriers.KindTransport, err, "new token request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", carriers.WrapFailure(carriers.KindTransport, err, "fetch tracking page")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", carriers.NewFailure(carriers.KindTransport, fmt.Sprintf("tracking page http %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", carriers.WrapFailure(carriers.KindTransport, err, "read tracking page")
	}

	m := tokenRe.FindSubmatch(body)
	if m == nil {
		// Токен больше не вшит в страницу — скорее всего редизайн.
		return "", carriers.NewFailure(carriers.KindNoData, "apiToken not found in page").
			WithSnippet(string(body))
	}

	c.token = string(m[1])
	c.tokenExp = time.Now().Add(10 * time.Minute)
	return c.token, nil
}

type apiResp struct {
	Estado      string `json:"estado"`
	Movimientos []struct {
		Fecha       string `json:"fecha"`
		Descripcion string `json:"descripcion"`
		Ciudad      string `json:"ciudad"`
	} `json:"movimientos"`
}

func (c *Client) query(ctx context.Context, token, trackNumber string) (carriers.RawResult, error) {
	u := c.baseURL + "/api/guia/" + url.PathEscape(trackNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "new api request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "api request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindAuthRequired, "api token rejected")
	case resp.StatusCode/100 != 2:
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindTransport, fmt.Sprintf("api http %d", resp.StatusCode))
	}

	var r apiResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindDecode, err, "decode api response")
	}

	out := carriers.RawResult{Status: strings.TrimSpace(r.Estado)}
	for _, mv := range r.Movimientos {
		ev := carriers.RawEvent{
			Description: strings.TrimSpace(mv.Descripcion),
			Location:    strings.TrimSpace(mv.Ciudad),
		}
		// Формат Servientrega: "02/01/2006 15:04".
		if t, err := time.ParseInLocation("02/01/2006 15:04", mv.Fecha, time.UTC); err == nil {
			ev.Time = t
		}
		if ev.Description == "" && ev.Time.IsZero() {
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}
