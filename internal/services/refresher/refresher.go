package refresher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelScope/internal/broker/messages"
	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/geocoder"
	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/BearBump/ParcelScope/internal/status"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error)
}

// Resolver прогоняет трек по цепочке стратегий перевозчика.
type Resolver interface {
	Resolve(ctx context.Context, trackNumber, carrierCode string) (carriers.RawResult, string, error)
}

type Geocoder interface {
	Resolve(ctx context.Context, location string) (geocoder.Point, bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Refresher — цикл воркера: забрать просроченные отправления, опросить
// перевозчиков, привязать координаты и опубликовать результат в Kafka.
type Refresher struct {
	repo     Repository
	resolver Resolver
	geo      Geocoder
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	perCarrierLimits   map[string]int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, resolver Resolver, geo Geocoder, producer Producer, rl RateLimiter, topic string) *Refresher {
	return &Refresher{
		repo: repo, resolver: resolver, geo: geo, producer: producer, rl: rl, topic: topic,
		planner:            NewPlanner(DefaultPlannerConfig(), nil),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (r *Refresher) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Refresher {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	if rlPerMin > 0 {
		r.rateLimitPerMinute = rlPerMin
	}
	return r
}

func (r *Refresher) WithPlanner(cfg PlannerConfig) *Refresher {
	r.planner = NewPlanner(cfg, nil)
	return r
}

// WithCarrierRateLimits задаёт пер-carrier лимиты (запросов в минуту)
// поверх общего rateLimitPerMinute.
func (r *Refresher) WithCarrierRateLimits(perMinute map[string]int64) *Refresher {
	if len(perMinute) > 0 {
		r.perCarrierLimits = perMinute
	}
	return r
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (r *Refresher) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalProcessed: r.totalProcessed.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Refresher) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())

	items, err := r.repo.ClaimDueShipments(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim due shipments", "error", err.Error())
		r.setLastError(err)
		return
	}
	r.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		shCopy := sh
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, shCopy); err != nil {
				r.totalErrors.Add(1)
				r.setLastError(err)
				slog.Error("process shipment", "shipment_id", shCopy.ID, "error", err.Error())
			}
			r.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (r *Refresher) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}

func (r *Refresher) processOne(ctx context.Context, sh *models.Shipment) error {
	now := time.Now().UTC()

	if r.rl != nil && r.rateLimitPerMinute > 0 {
		limit := r.rateLimitPerMinute
		if n, ok := r.perCarrierLimits[sh.CarrierCode]; ok && n > 0 {
			limit = n
		}

		minuteKey := fmt.Sprintf("rl:carrier:%s:%s", sh.CarrierCode, now.Format("200601021504"))
		allowed, n, err := r.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("rate limit exceeded", "carrier", sh.CarrierCode, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	res, _, err := r.resolver.Resolve(ctx, sh.TrackNumber, sh.CarrierCode)

	msg := messages.ShipmentUpdated{
		ShipmentID: sh.ID,
		CheckedAt:  now,
	}

	if err != nil {
		e := err.Error()
		msg.Error = &e
		kind := carriers.KindOf(err)
		msg.ErrorKind = kind.String()
		if kind == carriers.KindAuthRequired {
			// Протухшая учётка не чинится повторами — паркуем до re-auth.
			msg.NextCheckAt = now.Add(r.planner.AuthRequiredDelay())
		} else {
			nextFail := sh.CheckFailCount + 1
			msg.NextCheckAt = now.Add(r.planner.BackoffDelay(nextFail))
		}
	} else {
		msg.Status, msg.StatusRaw, msg.StatusAt, msg.Events = r.reconcile(ctx, res)
		msg.NextCheckAt = now.Add(r.planner.NextCheckDelay(msg.Status))
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", sh.ID))
	// Kafka может быть не готова сразу после старта docker compose.
	// Для демо/устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := r.producer.Publish(ctx, r.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}

// reconcile переводит сырой ответ перевозчика в нормализованные события:
// статусы через общую таксономию, координаты через геокодер (один поиск
// на каждый уникальный город в батче; сам геокодер ещё и кэширует).
func (r *Refresher) reconcile(ctx context.Context, res carriers.RawResult) (string, string, *time.Time, []messages.ShipmentEvent) {
	points := map[string]*geocoder.Point{}
	if r.geo != nil {
		for _, e := range res.Events {
			loc := e.Location
			if loc == "" {
				continue
			}
			if _, seen := points[loc]; seen {
				continue
			}
			p, ok, err := r.geo.Resolve(ctx, loc)
			if err != nil || !ok {
				points[loc] = nil
				continue
			}
			points[loc] = &p
		}
	}

	events := make([]messages.ShipmentEvent, 0, len(res.Events))
	var latest *time.Time
	var latestStatus string
	for _, e := range res.Events {
		ev := messages.ShipmentEvent{
			Status:      status.Normalize(e.Description),
			Description: e.Description,
			EventTime:   e.Time,
			Location:    e.Location,
		}
		if p := points[e.Location]; p != nil {
			lat, lon := p.Lat, p.Lon
			ev.Latitude = &lat
			ev.Longitude = &lon
		}
		events = append(events, ev)
		if latest == nil || e.Time.After(*latest) {
			t := e.Time
			latest = &t
			latestStatus = ev.Status
		}
	}

	raw := res.Status
	var st string
	if raw != "" {
		st = status.Normalize(raw)
	} else if latestStatus != "" {
		st = latestStatus
	} else {
		st = models.StatusUnknown
	}

	return st, raw, latest, events
}
