package refresher

import (
	"testing"
	"time"

	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/stretchr/testify/require"
)

type fixedRand struct{ n int }

func (r fixedRand) Intn(n int) int { return r.n % n }

func TestPlanner_BackoffLadder(t *testing.T) {
	p := NewPlanner(PlannerConfig{}, nil)
	require.Equal(t, 5*time.Minute, p.BackoffDelay(1))
	require.Equal(t, 15*time.Minute, p.BackoffDelay(2))
	require.Equal(t, 30*time.Minute, p.BackoffDelay(3))
	require.Equal(t, 60*time.Minute, p.BackoffDelay(4))
	require.Equal(t, 60*time.Minute, p.BackoffDelay(100))

	// Парковка по auth_required — отдельно от лестницы.
	require.Equal(t, 24*time.Hour, p.AuthRequiredDelay())
}

func TestPlanner_NextCheckDelay(t *testing.T) {
	p := NewPlanner(PlannerConfig{}, fixedRand{n: 0})

	require.Equal(t, 365*24*time.Hour, p.NextCheckDelay(models.StatusDelivered))
	require.Equal(t, 365*24*time.Hour, p.NextCheckDelay(models.StatusReturned))
	require.Equal(t, 10*time.Minute, p.NextCheckDelay(models.StatusOutForDelivery))
	require.Equal(t, 30*time.Minute, p.NextCheckDelay(models.StatusException))
	require.Equal(t, 3*time.Hour, p.NextCheckDelay(models.StatusPending))
	require.Equal(t, 3*time.Hour, p.NextCheckDelay(models.StatusPreShipment))
	require.Equal(t, 90*time.Minute, p.NextCheckDelay(models.StatusUnknown))

	// Джиттер в пределах [min, max].
	require.Equal(t, 30*time.Minute, p.NextCheckDelay(models.StatusInTransit))
	p = NewPlanner(PlannerConfig{}, fixedRand{n: 90 * 60})
	d := p.NextCheckDelay(models.StatusInTransit)
	require.GreaterOrEqual(t, d, 30*time.Minute)
	require.LessOrEqual(t, d, 120*time.Minute)
}

func TestPlanner_ConfigOverridesAndClamp(t *testing.T) {
	p := NewPlanner(PlannerConfig{
		InTransitMinDelay: 10 * time.Minute,
		InTransitMaxDelay: 5 * time.Minute, // max < min — подтягиваем к min
	}, fixedRand{})
	require.Equal(t, 10*time.Minute, p.NextCheckDelay(models.StatusInTransit))
}
