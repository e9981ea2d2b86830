package carriers

import (
	"context"
	"log/slog"
	"time"
)

// Resolver гоняет цепочку фолбэков: для каждого кандидата — его стратегии
// по приоритету, до первого непустого результата. Машина состояний строго
// вперёд: ретраев с backoff внутри одного Resolve нет, повторы — забота
// внешнего планировщика.
type Resolver struct {
	registry *Registry

	// Таймаут на одну стратегию, ограничивает худший случай
	// (особенно headless-браузер).
	strategyTimeout time.Duration
}

func NewResolver(reg *Registry, strategyTimeout time.Duration) *Resolver {
	if strategyTimeout <= 0 {
		strategyTimeout = 30 * time.Second
	}
	return &Resolver{registry: reg, strategyTimeout: strategyTimeout}
}

// Resolve — основная точка входа ядра.
// carrierCode == "" -> определяем кандидатов по формату номера.
// Возвращает результат первой сработавшей стратегии, либо *Exhausted.
func (r *Resolver) Resolve(ctx context.Context, trackNumber, carrierCode string) (RawResult, string, error) {
	var candidates []Carrier
	if carrierCode != "" {
		c, ok := r.registry.ByCode(carrierCode)
		if !ok {
			return RawResult{}, "", &Exhausted{TrackNumber: trackNumber, Attempts: []Attempt{{
				Carrier: carrierCode, Kind: KindNoData,
				Err: NewFailure(KindNoData, "unknown carrier code "+carrierCode),
			}}}
		}
		candidates = []Carrier{c}
	} else {
		candidates = r.registry.Detect(trackNumber)
		if len(candidates) == 0 {
			return RawResult{}, "", &Exhausted{TrackNumber: trackNumber, Attempts: []Attempt{{
				Kind: KindNoData,
				Err:  NewFailure(KindNoData, "no carrier matches track number format"),
			}}}
		}
	}

	agg := &Exhausted{TrackNumber: trackNumber}

	for _, c := range candidates {
		for _, st := range c.Strategies() {
			if err := ctx.Err(); err != nil {
				// Вызывающий отменил резолв — дальше не идём.
				return RawResult{}, "", err
			}

			res, err := r.attempt(ctx, st, trackNumber)
			if err == nil && res.Empty() {
				// Успешный транспорт без данных — продолжаем цепочку.
				err = NewFailure(KindNoData, "empty result")
			}
			if err != nil {
				// Отказ одной стратегии глотаем здесь: наружу уходит
				// только агрегат.
				kind := KindOf(err)
				slog.Info("strategy failed",
					"carrier", c.Code(), "strategy", st.Name(),
					"kind", kind.String(), "error", err.Error())
				agg.Attempts = append(agg.Attempts, Attempt{
					Carrier: c.Code(), Strategy: st.Name(), Kind: kind, Err: err,
				})
				continue
			}

			return res, c.Code(), nil
		}
	}

	return RawResult{}, "", agg
}

func (r *Resolver) attempt(ctx context.Context, st Strategy, trackNumber string) (RawResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.strategyTimeout)
	defer cancel()
	return st.Fetch(ctx, trackNumber)
}

// Detect — предикаты перевозчиков, доступные отдельно (API «определить
// перевозчика по номеру»).
func (r *Resolver) Detect(trackNumber string) []string {
	cs := r.registry.Detect(trackNumber)
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Code())
	}
	return out
}
