package api

import (
	"math/rand/v2"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed proxy is skipped
const DefaultCooldown = 5 * time.Minute

// Pool picks API keys and CORS relay proxies for outbound requests.
// Failed proxies are skipped until their cool-down has passed; expiry is
// checked when a proxy is selected.
type Pool struct {
	mu       sync.Mutex
	proxies  []string
	keys     []string
	enabled  bool
	current  int
	failed   map[int]time.Time
	cooldown time.Duration

	now  func() time.Time
	intn func(int) int
}

// NewPool creates a pool with proxying enabled
func NewPool(proxies, keys []string, cooldown time.Duration) *Pool {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Pool{
		proxies:  append([]string(nil), proxies...),
		keys:     append([]string(nil), keys...),
		enabled:  true,
		failed:   make(map[int]time.Time),
		cooldown: cooldown,
		now:      time.Now,
		intn:     rand.IntN,
	}
}

// SetEnabled turns proxy routing on or off
func (p *Pool) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// Enabled reports whether requests may be routed through proxies
func (p *Pool) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled && len(p.proxies) > 0
}

// APIKey returns a uniformly random key, or "" when none are configured
func (p *Pool) APIKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.intn(len(p.keys))]
}

// CurrentProxy returns the proxy to use next, round-robin over the ones
// not cooling down. When every proxy is cooling down the failures are
// forgotten and the first proxy is returned.
func (p *Pool) CurrentProxy() (int, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *Pool) currentLocked() (int, string, bool) {
	if len(p.proxies) == 0 {
		return -1, "", false
	}
	p.expireLocked()

	available := make([]int, 0, len(p.proxies))
	for i := range p.proxies {
		if _, failed := p.failed[i]; !failed {
			available = append(available, i)
		}
	}
	if len(available) == 0 {
		p.failed = make(map[int]time.Time)
		return 0, p.proxies[0], true
	}
	i := available[p.current%len(available)]
	return i, p.proxies[i], true
}

func (p *Pool) expireLocked() {
	now := p.now()
	for i, at := range p.failed {
		if now.Sub(at) >= p.cooldown {
			delete(p.failed, i)
		}
	}
}

// MarkFailed starts the cool-down for a proxy
func (p *Pool) MarkFailed(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.proxies) {
		return
	}
	p.failed[index] = p.now()
}

// Rotate advances the round-robin position
func (p *Pool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return
	}
	p.current = (p.current + 1) % len(p.proxies)
}

// CurrentIndex is the round-robin position, not necessarily a usable proxy
func (p *Pool) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Failed lists proxies still cooling down
func (p *Pool) Failed() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireLocked()
	out := make([]int, 0, len(p.failed))
	for i := range p.failed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Reset forgets failures and rewinds the round-robin position
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = 0
	p.failed = make(map[int]time.Time)
}

// TargetURL builds the URL for an endpoint and reports which proxy it goes
// through, or -1 for a direct request.
func (p *Pool) TargetURL(baseURL, endpoint string, useProxy bool) (string, int) {
	target := strings.TrimRight(baseURL, "/") + endpoint
	p.mu.Lock()
	defer p.mu.Unlock()
	if !useProxy || !p.enabled {
		return target, -1
	}
	i, proxy, ok := p.currentLocked()
	if !ok {
		return target, -1
	}
	return proxy + EncodeURIComponent(target), i
}

// EncodeURIComponent escapes s the way browsers escape a URI component
func EncodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
