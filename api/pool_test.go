package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPool(proxies ...string) (*Pool, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	p := NewPool(proxies, []string{"k1", "k2", "k3"}, DefaultCooldown)
	p.now = clock.now
	return p, clock
}

func TestPool_RoundRobin(t *testing.T) {
	p, _ := newTestPool("a", "b", "c")

	var seen []string
	for range 4 {
		_, proxy, ok := p.CurrentProxy()
		require.True(t, ok)
		seen = append(seen, proxy)
		p.Rotate()
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, seen)
}

func TestPool_FailedProxySkippedUntilCooldown(t *testing.T) {
	p, clock := newTestPool("a", "b", "c")
	p.MarkFailed(0)

	for range 10 {
		i, _, _ := p.CurrentProxy()
		assert.NotEqual(t, 0, i)
		p.Rotate()
		clock.advance(20 * time.Second)
	}
	assert.Equal(t, []int{0}, p.Failed())

	clock.advance(2 * time.Minute)
	assert.Empty(t, p.Failed(), "cool-down elapsed")

	seenZero := false
	for range 3 {
		if i, _, _ := p.CurrentProxy(); i == 0 {
			seenZero = true
		}
		p.Rotate()
	}
	assert.True(t, seenZero)
}

func TestPool_AllFailedResetsToFirst(t *testing.T) {
	p, _ := newTestPool("a", "b", "c")
	p.Rotate()
	p.MarkFailed(0)
	p.MarkFailed(1)
	p.MarkFailed(2)

	i, proxy, ok := p.CurrentProxy()

	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "a", proxy)
	assert.Empty(t, p.Failed())
}

func TestPool_ResetIgnoresEarlierFailures(t *testing.T) {
	p, clock := newTestPool("a", "b")
	p.MarkFailed(1)
	clock.advance(4 * time.Minute)

	p.Reset()
	assert.Empty(t, p.Failed())

	// A fresh failure after the reset gets its own full window
	p.MarkFailed(1)
	clock.advance(2 * time.Minute)
	assert.Equal(t, []int{1}, p.Failed(), "earlier failure must not expire the new one")

	clock.advance(3 * time.Minute)
	assert.Empty(t, p.Failed())
}

func TestPool_NoProxies(t *testing.T) {
	p := NewPool(nil, nil, 0)

	_, _, ok := p.CurrentProxy()
	assert.False(t, ok)
	assert.False(t, p.Enabled())
	assert.Equal(t, "", p.APIKey())

	target, proxy := p.TargetURL(DefaultBaseURL, "/colors/", true)
	assert.Equal(t, "https://rebrickable.com/api/v3/lego/colors/", target)
	assert.Equal(t, -1, proxy)
}

func TestPool_APIKeyRandom(t *testing.T) {
	p, _ := newTestPool("a")
	picks := []int{2, 0, 1}
	p.intn = func(n int) int {
		assert.Equal(t, 3, n)
		v := picks[0]
		picks = picks[1:]
		return v
	}

	assert.Equal(t, "k3", p.APIKey())
	assert.Equal(t, "k1", p.APIKey())
	assert.Equal(t, "k2", p.APIKey())
}

func TestPool_TargetURL(t *testing.T) {
	p, _ := newTestPool("https://corsproxy.io/?", "https://api.allorigins.win/raw?url=")

	target, proxy := p.TargetURL(DefaultBaseURL, "/parts/3001/", true)
	assert.Equal(t, 0, proxy)
	assert.Equal(t, "https://corsproxy.io/?https%3A%2F%2Frebrickable.com%2Fapi%2Fv3%2Flego%2Fparts%2F3001%2F", target)

	target, proxy = p.TargetURL(DefaultBaseURL, "/parts/3001/", false)
	assert.Equal(t, -1, proxy)
	assert.Equal(t, "https://rebrickable.com/api/v3/lego/parts/3001/", target)

	p.SetEnabled(false)
	_, proxy = p.TargetURL(DefaultBaseURL, "/parts/3001/", true)
	assert.Equal(t, -1, proxy)
}

func TestEncodeURIComponent(t *testing.T) {
	assert.Equal(t, "a%20b%26c%3Dd", EncodeURIComponent("a b&c=d"))
	assert.Equal(t, "3001-x_y.z~", EncodeURIComponent("3001-x_y.z~"))
}
