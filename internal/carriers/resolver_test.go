package carriers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name  string
	res   RawResult
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Fetch(ctx context.Context, trackNumber string) (RawResult, error) {
	s.calls++
	return s.res, s.err
}

type stubCarrier struct {
	code       string
	match      func(string) bool
	strategies []Strategy
}

func (c *stubCarrier) Code() string                 { return c.code }
func (c *stubCarrier) Match(trackNumber string) bool { return c.match(trackNumber) }
func (c *stubCarrier) Strategies() []Strategy        { return c.strategies }

func numeric(n int) func(string) bool {
	return func(tn string) bool {
		if len(tn) != n {
			return false
		}
		return strings.Trim(tn, "0123456789") == ""
	}
}

func TestResolve_FallbackOrdering(t *testing.T) {
	a := &stubStrategy{name: "api", err: NewFailure(KindTransport, "boom")}
	b := &stubStrategy{name: "html", res: RawResult{Status: "ENTREGADO"}}
	c := &stubStrategy{name: "browser", res: RawResult{Status: "should not be reached"}}

	reg := NewRegistry(&stubCarrier{code: "X", match: numeric(10), strategies: []Strategy{a, b, c}})
	r := NewResolver(reg, time.Second)

	res, code, err := r.Resolve(context.Background(), "0123456789", "X")
	require.NoError(t, err)
	require.Equal(t, "X", code)
	require.Equal(t, "ENTREGADO", res.Status)
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
	require.Equal(t, 0, c.calls, "цепочка должна остановиться на первом успехе")
}

func TestResolve_EmptyResultIsNoData(t *testing.T) {
	empty := &stubStrategy{name: "api", res: RawResult{}}
	ok := &stubStrategy{name: "html", res: RawResult{Events: []RawEvent{{Description: "Recogido"}}}}

	reg := NewRegistry(&stubCarrier{code: "X", match: numeric(10), strategies: []Strategy{empty, ok}})
	r := NewResolver(reg, time.Second)

	res, _, err := r.Resolve(context.Background(), "0123456789", "X")
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, 1, empty.calls)
}

func TestResolve_AggregateSpecificity(t *testing.T) {
	// AuthRequired обязан победить в агрегате независимо от порядка попыток.
	s1 := &stubStrategy{name: "api", err: NewFailure(KindTransport, "timeout")}
	s2 := &stubStrategy{name: "auth-api", err: NewFailure(KindAuthRequired, "session expired")}
	s3 := &stubStrategy{name: "html", err: NewFailure(KindNoData, "selectors drifted")}

	reg := NewRegistry(&stubCarrier{code: "X", match: numeric(10), strategies: []Strategy{s1, s2, s3}})
	r := NewResolver(reg, time.Second)

	_, _, err := r.Resolve(context.Background(), "0123456789", "X")
	require.Error(t, err)

	var ex *Exhausted
	require.ErrorAs(t, err, &ex)
	require.Equal(t, KindAuthRequired, ex.Kind())
	require.Len(t, ex.Attempts, 3)
}

func TestResolve_DetectAmbiguousRegistrationOrder(t *testing.T) {
	// Оба матчат 12 цифр; первый зарегистрированный падает, второй отвечает.
	first := &stubCarrier{code: "FIRST", match: numeric(12), strategies: []Strategy{
		&stubStrategy{name: "api", err: NewFailure(KindNoData, "nothing")},
	}}
	second := &stubCarrier{code: "SECOND", match: numeric(12), strategies: []Strategy{
		&stubStrategy{name: "api", res: RawResult{Status: "EN TRANSITO"}},
	}}

	reg := NewRegistry(first, second)
	r := NewResolver(reg, time.Second)

	require.Equal(t, []string{"FIRST", "SECOND"}, r.Detect("123456789012"))

	res, code, err := r.Resolve(context.Background(), "123456789012", "")
	require.NoError(t, err)
	require.Equal(t, "SECOND", code)
	require.Equal(t, "EN TRANSITO", res.Status)
}

func TestResolve_UnknownNumberFormat(t *testing.T) {
	reg := NewRegistry(&stubCarrier{code: "X", match: numeric(10), strategies: nil})
	r := NewResolver(reg, time.Second)

	_, _, err := r.Resolve(context.Background(), "ZZZ", "")
	var ex *Exhausted
	require.ErrorAs(t, err, &ex)
	require.Equal(t, KindNoData, ex.Kind())
}

func TestResolve_CancelledContext(t *testing.T) {
	slow := &stubStrategy{name: "api", err: NewFailure(KindTransport, "unreached")}
	reg := NewRegistry(&stubCarrier{code: "X", match: numeric(10), strategies: []Strategy{slow}})
	r := NewResolver(reg, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := r.Resolve(ctx, "0123456789", "X")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, slow.calls)
}
