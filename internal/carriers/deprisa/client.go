// Package deprisa — авторизованный JSON REST. Кред — непрозрачный blob от
// внешнего CredentialProvider; его получение/обновление не наша забота.
// Нет creда или API его отверг -> KindAuthRequired, чтобы вызывающий мог
// попросить пользователя переавторизоваться, а не ретраить молча.
package deprisa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
)

const Code = "DEPRISA"

// 12 цифр — сознательно пересекается с Coordinadora (см. реестр).
var trackRe = regexp.MustCompile(`^\d{12}$`)

type Client struct {
	baseURL string
	creds   carriers.CredentialProvider
	httpc   *http.Client
}

func New(baseURL string, creds carriers.CredentialProvider) *Client {
	if baseURL == "" {
		baseURL = "https://api.deprisa.com"
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Code() string { return Code }

func (c *Client) Match(trackNumber string) bool {
	return trackRe.MatchString(trackNumber)
}

func (c *Client) Strategies() []carriers.Strategy {
	return []carriers.Strategy{&authAPIStrategy{c: c}}
}

type authAPIStrategy struct {
	c *Client
}

func (s *authAPIStrategy) Name() string { return "auth-api" }

type apiResp struct {
	EstadoActual string `json:"estadoActual"`
	Historia     []struct {
		Fecha     string `json:"fecha"` // RFC3339
		Evento    string `json:"evento"`
		Ubicacion string `json:"ubicacion"`
	} `json:"historia"`
}

func (s *authAPIStrategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	cred, ok := s.c.creds.Credential(Code)
	if !ok {
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindAuthRequired, "no credential configured")
	}

	u := s.c.baseURL + "/v2/envios/" + url.PathEscape(trackNumber) + "/tracking"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "new request")
	}
	req.Header.Set("Authorization", cred)
	req.Header.Set("Accept", "application/json")

	resp, err := s.c.httpc.Do(req)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "api request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindAuthRequired, "credential rejected")
	case resp.StatusCode == http.StatusNotFound:
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindNoData, "track number not found")
	case resp.StatusCode/100 != 2:
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindTransport, fmt.Sprintf("api http %d", resp.StatusCode))
	}

	var r apiResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindDecode, err, "decode response")
	}

	out := carriers.RawResult{Status: strings.TrimSpace(r.EstadoActual)}
	for _, h := range r.Historia {
		ev := carriers.RawEvent{
			Description: strings.TrimSpace(h.Evento),
			Location:    strings.TrimSpace(h.Ubicacion),
		}
		if t, err := time.Parse(time.RFC3339, h.Fecha); err == nil {
			ev.Time = t.UTC()
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}
