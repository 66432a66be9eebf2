package sigcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutThenGet(t *testing.T) {
	c := New(4, time.Minute)
	c.Put("k1", "sig-1")
	v, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, "sig-1", v)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(4, time.Minute)
	_, ok := c.Get("missing")
	require.False(t, ok)
}

func TestExpiredEntryIsEvictedOnGet(t *testing.T) {
	c := New(4, 10*time.Millisecond)
	c.Put("k1", "sig-1")
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k1")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("k1", "v1")
	c.Put("k2", "v2")
	// touch k1 so k2 becomes the least recently used
	_, _ = c.Get("k1")
	c.Put("k3", "v3")

	_, ok1 := c.Get("k1")
	_, ok2 := c.Get("k2")
	_, ok3 := c.Get("k3")
	require.True(t, ok1)
	require.False(t, ok2)
	require.True(t, ok3)
}

func TestPutOverwritesExistingKeyAndRefreshesTTL(t *testing.T) {
	c := New(4, time.Minute)
	c.Put("k1", "v1")
	c.Put("k1", "v2")
	v, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, "v2", v)
	require.Equal(t, 1, c.Len())
}

func TestKeyIsDeterministicAndAccountScoped(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	k1 := Key(body, "acc-a")
	k2 := Key(body, "acc-a")
	k3 := Key(body, "acc-b")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}
