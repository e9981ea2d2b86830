package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistry_OrderAndCodes(t *testing.T) {
	reg := NewRegistry(Options{EnableFake: true})

	var codes []string
	for _, c := range reg.All() {
		codes = append(codes, c.Code())
	}
	require.Equal(t, []string{
		"SERVIENTREGA", "COORDINADORA", "INTERRAPIDISIMO", "DEPRISA", "ENVIA", "FAKE",
	}, codes)

	// 12 цифр узнают и coordinadora, и deprisa; порядок фиксирует победителя.
	var det []string
	for _, c := range reg.Detect("123456789012") {
		det = append(det, c.Code())
	}
	require.Equal(t, []string{"COORDINADORA", "DEPRISA"}, det)
}

func TestNewRegistry_FakeOffByDefault(t *testing.T) {
	reg := NewRegistry(Options{})
	_, ok := reg.ByCode("FAKE")
	require.False(t, ok)
	require.Empty(t, reg.Detect("FK-123"))
}

func TestNewRegistry_EnviaWithoutRenderer(t *testing.T) {
	reg := NewRegistry(Options{})
	c, ok := reg.ByCode("ENVIA")
	require.True(t, ok)
	// Без рендерера остаётся только дешёвая static-стратегия.
	var names []string
	for _, s := range c.Strategies() {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"static-html"}, names)
}
