package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	r := New(0)
	require.Equal(t, 2*time.Second, r.settle)

	r = New(500 * time.Millisecond)
	require.Equal(t, 500*time.Millisecond, r.settle)

	// Close до первого рендера не должен падать.
	r.Close()
	r.Close()
}
