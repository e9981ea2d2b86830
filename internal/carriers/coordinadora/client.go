// Package coordinadora — скрейп HTML-страницы растрео по селекторам.
// Внутренний фолбэк: таблица истории по селекторам -> паттерны по видимому
// тексту -> NoData с диагностическим куском страницы (для починки селекторов).
package coordinadora

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/scrape"
	"golang.org/x/net/html"
)

const Code = "COORDINADORA"

// 12 цифр. Формат пересекается с Deprisa — разрешается порядком
// регистрации в реестре.
var trackRe = regexp.MustCompile(`^\d{12}$`)

// Фолбэк по тексту построчно: "02/01/2006 15:04 - Recogido - Bogotá".
var lineRe = regexp.MustCompile(`(\d{2}/\d{2}/\d{4} \d{2}:\d{2})\s*-\s*([^-<\n]+?)\s*-\s*([^-<\n]+)`)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.coordinadora.com"
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
	return []carriers.Strategy{&scrapeStrategy{c: c}}
}

type scrapeStrategy struct {
	c *Client
}

func (s *scrapeStrategy) Name() string { return "html-scrape" }

func (s *scrapeStrategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	body, err := s.c.fetchPage(ctx, trackNumber)
	if err != nil {
		return carriers.RawResult{}, err
	}

	root, err := scrape.Parse(body)
	if err != nil {
		return carriers.RawResult{}, carriers.WrapFailure(carriers.KindDecode, err, "parse page")
	}

	res := parseSelectors(root)
	if !res.Empty() {
		return res, nil
	}

	// Селекторы ничего не дали — возможно, сменилась вёрстка.
	// Пробуем построчные паттерны по сырому телу.
	res = parseVisibleText(body)
	if !res.Empty() {
		return res, nil
	}

	return carriers.RawResult{}, carriers.NewFailure(carriers.KindNoData, "no recognizable tracking data").
		WithSnippet(scrape.Snippet(body, 400))
}

func (c *Client) fetchPage(ctx context.Context, trackNumber string) (string, error) {
	u := c.baseURL + "/rastreo/?guia=" + trackNumber
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

// Актуальная вёрстка: статус в div#estado-guia, история — строки
// table.historial-guia tr.evento с ячейками fecha/descripcion/ciudad.
func parseSelectors(root *html.Node) carriers.RawResult {
	var res carriers.RawResult
	res.Status = scrape.Text(scrape.First(root, "div#estado-guia"))

	for _, row := range scrape.FindAll(root, "table.historial-guia tr.evento") {
		ev := carriers.RawEvent{
			Description: scrape.Text(scrape.First(row, "td.descripcion")),
			Location:    scrape.Text(scrape.First(row, "td.ciudad")),
		}
		if t, err := time.ParseInLocation("02/01/2006 15:04", scrape.Text(scrape.First(row, "td.fecha")), time.UTC); err == nil {
			ev.Time = t
		}
		if ev.Description == "" && ev.Location == "" {
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res
}

func parseVisibleText(text string) carriers.RawResult {
	var res carriers.RawResult
	for _, m := range lineRe.FindAllStringSubmatch(text, -1) {
		ev := carriers.RawEvent{
			Description: strings.TrimSpace(m[2]),
			Location:    strings.TrimSpace(m[3]),
		}
		if t, err := time.ParseInLocation("02/01/2006 15:04", m[1], time.UTC); err == nil {
			ev.Time = t
		}
		res.Events = append(res.Events, ev)
	}
	// Статус из текста не восстанавливаем: reconciler возьмёт его из
	// последнего события.
	return res
}
