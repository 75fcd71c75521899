package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoard_PostAndExpire(t *testing.T) {
	b := NewBoard(30 * time.Millisecond)

	b.Post("rested")
	require.Equal(t, "rested", b.Current())

	require.Eventually(t, func() bool { return b.Current() == "" }, time.Second, 5*time.Millisecond)
}

func TestBoard_PostResetsExpiry(t *testing.T) {
	b := NewBoard(80 * time.Millisecond)

	b.Post("first")
	time.Sleep(50 * time.Millisecond)
	b.Post("second")
	time.Sleep(50 * time.Millisecond)

	// The first message's expiry would have fired by now; it must not clear the second.
	require.Equal(t, "second", b.Current())
	require.Eventually(t, func() bool { return b.Current() == "" }, time.Second, 5*time.Millisecond)
}

func TestBoard_Clear(t *testing.T) {
	b := NewBoard(time.Minute)
	b.Post("x")
	b.Clear()
	require.Empty(t, b.Current())
}

func TestNewBoard_DefaultTTL(t *testing.T) {
	require.Equal(t, DefaultTTL, NewBoard(0).ttl)
}
