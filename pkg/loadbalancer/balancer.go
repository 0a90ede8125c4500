// Package loadbalancer spreads gateway traffic across scholar backend
// replicas listed in SCHOLAR_BACKENDS.
package loadbalancer

import (
	"net/http"
	"sync"
)

type LoadBalancer struct {
	upstreams []string
	mu        sync.Mutex
	next      int
}

func NewLoadBalancer(upstreams []string) *LoadBalancer {
	return &LoadBalancer{upstreams: upstreams}
}

// NextUpstream hands out backends in strict round-robin order. Returns
// "" when no upstream is configured.
func (lb *LoadBalancer) NextUpstream() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.upstreams) == 0 {
		return ""
	}
	upstream := lb.upstreams[lb.next]
	lb.next = (lb.next + 1) % len(lb.upstreams)
	return upstream
}

// ServeHTTP redirects the caller to the next backend replica. Import
// uploads carry multipart bodies, so the client re-sends the request
// itself rather than the gateway streaming it through.
func (lb *LoadBalancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upstream := lb.NextUpstream()
	if upstream == "" {
		http.Error(w, "no scholar backend available", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, upstream+r.RequestURI, http.StatusTemporaryRedirect)
}
