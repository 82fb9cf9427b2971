package spread

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownWindow(t *testing.T) {
	c := NewCooldown(1800 * time.Second)
	t0 := time.Unix(1700000000, 0)

	assert.True(t, c.MayEmit("BTC", t0))
	assert.False(t, c.MayEmit("BTC", t0.Add(600*time.Second)))
	assert.True(t, c.MayEmit("BTC", t0.Add(1801*time.Second)))
}

func TestCooldownSuppressedAttemptDoesNotExtendWindow(t *testing.T) {
	c := NewCooldown(1800 * time.Second)
	t0 := time.Unix(1700000000, 0)

	assert.True(t, c.MayEmit("BTC", t0))
	// Denied attempts must not push the next allowed time out.
	assert.False(t, c.MayEmit("BTC", t0.Add(1700*time.Second)))
	assert.True(t, c.MayEmit("BTC", t0.Add(1800*time.Second)))
}

func TestCooldownKeysAreIndependent(t *testing.T) {
	c := NewCooldown(1800 * time.Second)
	t0 := time.Unix(1700000000, 0)

	assert.True(t, c.MayEmit("BTC", t0))
	assert.True(t, c.MayEmit("ETH", t0))
	assert.False(t, c.MayEmit("BTC", t0.Add(time.Second)))
	assert.Equal(t, 2, c.Len())
}

func TestCooldownSingleWinnerUnderConcurrency(t *testing.T) {
	c := NewCooldown(time.Hour)
	now := time.Now()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.MayEmit("BTC", now) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCooldownPrune(t *testing.T) {
	c := NewCooldown(1800 * time.Second)
	t0 := time.Unix(1700000000, 0)

	c.MayEmit("BTC", t0)
	c.MayEmit("ETH", t0.Add(1000*time.Second))

	assert.Equal(t, 1, c.Prune(t0.Add(2000*time.Second)))
	assert.Equal(t, 1, c.Len())

	// Pruning an expired key must not change what MayEmit would say.
	assert.True(t, c.MayEmit("BTC", t0.Add(2000*time.Second)))
	assert.False(t, c.MayEmit("ETH", t0.Add(2000*time.Second)))
}
