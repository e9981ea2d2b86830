package carriers

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindAuthRequired, KindOf(NewFailure(KindAuthRequired, "401")))
	require.Equal(t, KindDecode, KindOf(WrapFailure(KindDecode, errors.New("bad json"), "decode body")))
	// Типизированный отказ должен распознаваться и через цепочку Wrap.
	require.Equal(t, KindNoData, KindOf(errors.Wrap(NewFailure(KindNoData, "empty"), "fetch page")))
	// Всё прочее — транспорт.
	require.Equal(t, KindTransport, KindOf(errors.New("connection refused")))
	// Агрегат классифицируется по худшей попытке.
	ex := &Exhausted{Attempts: []Attempt{{Kind: KindTransport}, {Kind: KindAuthRequired}}}
	require.Equal(t, KindAuthRequired, KindOf(ex))
	require.Equal(t, KindAuthRequired, KindOf(errors.Wrap(ex, "resolve")))
}

func TestFailure_Snippet(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}
	f := NewFailure(KindNoData, "selectors drifted").WithSnippet(string(long))
	require.Len(t, f.Snippet, 400)
}

func TestExhausted_WorstKind(t *testing.T) {
	ex := &Exhausted{Attempts: []Attempt{
		{Kind: KindTransport},
		{Kind: KindDecode},
		{Kind: KindNoData},
	}}
	require.Equal(t, KindNoData, ex.Kind())

	ex.Attempts = append(ex.Attempts, Attempt{Kind: KindAuthRequired})
	require.Equal(t, KindAuthRequired, ex.Kind())
	require.Contains(t, ex.Error(), "auth_required")
}
