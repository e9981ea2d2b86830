package refresher

import (
	"math/rand"
	"time"

	"github.com/BearBump/ParcelScope/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	TerminalDelay time.Duration // DELIVERED/RETURNED, default: 365 days

	OutForDeliveryDelay time.Duration // default: 10 minutes

	InTransitMinDelay time.Duration // default: 30 minutes
	InTransitMaxDelay time.Duration // default: 120 minutes

	ExceptionDelay time.Duration // default: 30 minutes
	PendingDelay   time.Duration // PENDING/PRE_SHIPMENT, default: 3 hours
	UnknownDelay   time.Duration // default: 90 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes

	// Парковка при auth_required: повторы бессмысленны, пока пользователь
	// не обновит учётку. default: 24 hours
	AuthRequiredDelay time.Duration
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		TerminalDelay: 365 * 24 * time.Hour,

		OutForDeliveryDelay: 10 * time.Minute,

		InTransitMinDelay: 30 * time.Minute,
		InTransitMaxDelay: 120 * time.Minute,

		ExceptionDelay: 30 * time.Minute,
		PendingDelay:   3 * time.Hour,
		UnknownDelay:   90 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,

		AuthRequiredDelay: 24 * time.Hour,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.TerminalDelay <= 0 {
		cfg.TerminalDelay = def.TerminalDelay
	}
	if cfg.OutForDeliveryDelay <= 0 {
		cfg.OutForDeliveryDelay = def.OutForDeliveryDelay
	}
	if cfg.InTransitMinDelay <= 0 {
		cfg.InTransitMinDelay = def.InTransitMinDelay
	}
	if cfg.InTransitMaxDelay <= 0 {
		cfg.InTransitMaxDelay = def.InTransitMaxDelay
	}
	if cfg.InTransitMaxDelay < cfg.InTransitMinDelay {
		cfg.InTransitMaxDelay = cfg.InTransitMinDelay
	}
	if cfg.ExceptionDelay <= 0 {
		cfg.ExceptionDelay = def.ExceptionDelay
	}
	if cfg.PendingDelay <= 0 {
		cfg.PendingDelay = def.PendingDelay
	}
	if cfg.UnknownDelay <= 0 {
		cfg.UnknownDelay = def.UnknownDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if cfg.AuthRequiredDelay <= 0 {
		cfg.AuthRequiredDelay = def.AuthRequiredDelay
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

func (p *Planner) NextCheckDelay(status string) time.Duration {
	switch status {
	case models.StatusDelivered, models.StatusReturned:
		return p.cfg.TerminalDelay
	case models.StatusOutForDelivery:
		return p.cfg.OutForDeliveryDelay
	case models.StatusInTransit:
		min := p.cfg.InTransitMinDelay
		max := p.cfg.InTransitMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMin < 0 {
			secMin = 0
		}
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	case models.StatusException:
		return p.cfg.ExceptionDelay
	case models.StatusPending, models.StatusPreShipment:
		return p.cfg.PendingDelay
	default:
		return p.cfg.UnknownDelay
	}
}

// AuthRequiredDelay — не лестница backoff: без новой учётки каждый повтор
// обречён, поэтому паркуем далеко.
func (p *Planner) AuthRequiredDelay() time.Duration {
	return p.cfg.AuthRequiredDelay
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
