package httpclient

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter is a process-global per-host request throttle. All HTTP clients
// in the process share the same limiter for a given host, preventing
// thundering-herd when many goroutines hit the same upstream at once during a
// cycle (e.g. per-channel stream lookups, batched guide fetches).
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// GlobalHostLimiter is the shared per-host throttle: 8 requests/second with a
// burst of 16 per host across the entire process.
var GlobalHostLimiter = NewHostLimiter(8, 16)

func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Wait blocks until the host's limiter admits one request, or ctx is done.
// rawURL may be a full URL; only scheme+host identify the bucket.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return h.limiterFor(rawURL).Wait(ctx)
}

func (h *HostLimiter) limiterFor(rawURL string) *rate.Limiter {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		key = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[key]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[key] = l
	}
	return l
}
