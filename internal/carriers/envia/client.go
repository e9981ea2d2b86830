// Package envia — страница рисует историю на JS, обычный GET отдаёт пустой
// каркас. Стратегии две: сначала дешёвый статический GET (иногда история
// всё же есть в SSR-выдаче), затем headless-рендер и те же селекторы.
package envia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/scrape"
)

const Code = "ENVIA"

// 9 цифр.
var trackRe = regexp.MustCompile(`^\d{9}$`)

// PageRenderer — обычно *browser.Renderer; интерфейс, чтобы тестировать
// без Chromium.
type PageRenderer interface {
	HTML(ctx context.Context, url string) (string, error)
}

type Client struct {
	baseURL  string
	httpc    *http.Client
	renderer PageRenderer
}

func New(baseURL string, renderer PageRenderer) *Client {
	if baseURL == "" {
		baseURL = "https://envia.co"
	}
	return &Client{
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		renderer: renderer,
	}
}

func (c *Client) Code() string { return Code }

func (c *Client) Match(trackNumber string) bool {
	return trackRe.MatchString(trackNumber)
}

func (c *Client) Strategies() []carriers.Strategy {
	sts := []carriers.Strategy{&staticStrategy{c: c}}
	if c.renderer != nil {
		sts = append(sts, &renderStrategy{c: c})
	}
	return sts
}

func (c *Client) trackURL(trackNumber string) string {
	return c.baseURL + "/rastreo?guia=" + trackNumber
}

type staticStrategy struct {
	c *Client
}

func (s *staticStrategy) Name() string { return "static-html" }

func (s *staticStrategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.c.trackURL(trackNumber), nil)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "new request")
	}
	resp, err := s.c.httpc.Do(req)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "fetch page")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindTransport, fmt.Sprintf("http %d", resp.StatusCode))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "read body")
	}
	return parsePage(string(b))
}

type renderStrategy struct {
	c *Client
}

func (s *renderStrategy) Name() string { return "headless-render" }

func (s *renderStrategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	body, err := s.c.renderer.HTML(ctx, s.c.trackURL(trackNumber))
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindTransport, err, "render page")
	}
	return parsePage(body)
}

// Обе стратегии смотрят на одну и ту же (финальную) вёрстку.
func parsePage(body string) (carriers.RawResult, error) {
	root, err := scrape.Parse(body)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindDecode, err, "parse page")
	}

	res := carriers.RawResult{
		Status: scrape.Text(scrape.First(root, "span.estado-envio")),
	}
	for _, item := range scrape.FindAll(root, "ul.historia li.evento") {
		ev := carriers.RawEvent{
			Description: scrape.Text(scrape.First(item, "span.detalle")),
			Location:    scrape.Text(scrape.First(item, "span.ciudad")),
		}
		if t, err := time.ParseInLocation("2006-01-02 15:04", scrape.Text(scrape.First(item, "span.fecha")), time.UTC); err == nil {
			ev.Time = t
		}
		if ev.Description == "" {
			continue
		}
		res.Events = append(res.Events, ev)
	}

	if res.Empty() {
		return carriers.RawResult{}, carriers.NewFailure(carriers.KindNoData, "empty tracking markup").
			WithSnippet(scrape.Snippet(body, 400))
	}
	return res, nil
}
