package peerview

import (
	"sync"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-peerview/pkg/types"
)

// limiterCacheSize 保留限速状态的来源数上限
const limiterCacheSize = 1024

// requestLimiter 按来源节点限制 AddressRequest 速率
type requestLimiter struct {
	mu    sync.Mutex
	cache *lru.Cache[types.PeerID, *rate.Limiter]
	limit rate.Limit
	burst int
	clock clock.Clock
}

func newRequestLimiter(limit rate.Limit, burst int, clk clock.Clock) (*requestLimiter, error) {
	cache, err := lru.New[types.PeerID, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}
	return &requestLimiter{cache: cache, limit: limit, burst: burst, clock: clk}, nil
}

func (l *requestLimiter) allow(id types.PeerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.cache.Get(id)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.cache.Add(id, lim)
	}
	return lim.AllowN(l.clock.Now(), 1)
}
