package carriers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_ByCode(t *testing.T) {
	a := &stubCarrier{code: "A", match: numeric(10)}
	b := &stubCarrier{code: "B", match: numeric(11)}
	reg := NewRegistry(a, b)

	got, ok := reg.ByCode("B")
	require.True(t, ok)
	require.Equal(t, "B", got.Code())

	_, ok = reg.ByCode("C")
	require.False(t, ok)
}

func TestRegistry_DetectKeepsRegistrationOrder(t *testing.T) {
	a := &stubCarrier{code: "A", match: numeric(12)}
	b := &stubCarrier{code: "B", match: numeric(12)}
	c := &stubCarrier{code: "C", match: numeric(9)}
	reg := NewRegistry(a, b, c)

	got := reg.Detect("123456789012")
	require.Len(t, got, 2)
	require.Equal(t, "A", got[0].Code())
	require.Equal(t, "B", got[1].Code())
	require.Empty(t, reg.Detect("X"))
}
