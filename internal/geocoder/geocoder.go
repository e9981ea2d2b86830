// Package geocoder резолвит текстовые места событий в координаты.
//
// Кэш живёт в памяти процесса (между рестартами не переживает).
// Кэшируем и попадания, и явные "не найдено"; сетевые ошибки не кэшируем
// никогда — их надо повторять при следующем обращении.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const lookupTimeout = 10 * time.Second

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type entry struct {
	p     Point
	found bool
}

type Geocoder struct {
	baseURL   string
	userAgent string
	httpc     *http.Client

	mu    sync.RWMutex
	cache map[string]entry

	// Схлопывает конкурентные запросы одного и того же места:
	// рефреши нескольких посылок часто спрашивают один город.
	sf singleflight.Group
}

func New(baseURL, userAgent string) *Geocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "parcelscope/1.0"
	}
	return &Geocoder{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpc:     &http.Client{Timeout: lookupTimeout},
		cache:     map[string]entry{},
	}
}

// Resolve: (point, true, nil) — найдено; (_, false, nil) — явное "не найдено"
// (тоже кэшируется); ошибка — транспортный сбой, в кэш не попадает.
func (g *Geocoder) Resolve(ctx context.Context, place string) (Point, bool, error) {
	key := strings.ToLower(strings.TrimSpace(place))
	if key == "" {
		return Point{}, false, nil
	}

	g.mu.RLock()
	e, ok := g.cache[key]
	g.mu.RUnlock()
	if ok {
		return e.p, e.found, nil
	}

	v, err, _ := g.sf.Do(key, func() (any, error) {
		// Полёт разделяют все конкурентные ожидающие этого ключа:
		// отмена первого вызвавшего не должна ронять lookup для остальных.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		e, err := g.lookup(lctx, key)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.cache[key] = e
		g.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return Point{}, false, err
	}
	e = v.(entry)
	return e.p, e.found, nil
}

type nominatimHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *Geocoder) lookup(ctx context.Context, query string) (entry, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return entry{}, errors.Wrap(err, "parse geocoder base url")
	}
	u.Path = "/search"
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1") // только лучший матч
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return entry{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return entry{}, errors.Wrap(err, "geocoder request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return entry{}, fmt.Errorf("geocoder http %d", resp.StatusCode)
	}

	var hits []nominatimHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return entry{}, errors.Wrap(err, "decode geocoder response")
	}
	if len(hits) == 0 {
		return entry{found: false}, nil
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return entry{}, errors.Wrap(err, "parse lat")
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return entry{}, errors.Wrap(err, "parse lon")
	}
	return entry{p: Point{Lat: lat, Lon: lon}, found: true}, nil
}

// CacheLen — размер кэша (для stats-эндпоинта воркера).
func (g *Geocoder) CacheLen() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}
