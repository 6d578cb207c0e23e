package timeengine

import (
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// routeEdge is spec.md §3's per-edge weighted route: a distance in km
// and a quality factor, symmetric between its two endpoints.
type routeEdge struct {
	km      float64
	quality float64
}

// routeKey canonicalizes an unordered (from, to) pair into a single
// xxhash-derived key so the symmetric graph only needs one map entry per
// edge regardless of query direction. Grounded in the same xxhash-keyed
// index idea scheduler/registry.go uses for system names, applied here
// to location-pair edges.
func routeKey(a, b string) uint64 {
	if a > b {
		a, b = b, a
	}
	h := xxhash.New()
	_, _ = h.WriteString(a)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(b)
	return h.Sum64()
}

// routeNetwork is the symmetric weighted graph spec.md §3/§4.5 define,
// with a single global seasonal modifier applied to every edge's
// effective speed.
type routeNetwork struct {
	mu       sync.RWMutex
	edges    map[uint64]routeEdge
	seasonal float64
}

func newRouteNetwork() *routeNetwork {
	return &routeNetwork{edges: make(map[uint64]routeEdge), seasonal: 1.0}
}

func (r *routeNetwork) addRoute(from, to string, km, quality float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges[routeKey(from, to)] = routeEdge{km: km, quality: quality}
}

func (r *routeNetwork) removeRoute(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.edges, routeKey(from, to))
}

// distance returns the edge's km, or +Inf if no route exists (spec.md §3:
// "missing edge ⇒ infinite distance").
func (r *routeNetwork) distance(from, to string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.edges[routeKey(from, to)]
	if !ok {
		return math.Inf(1)
	}
	return e.km
}

func (r *routeNetwork) quality(from, to string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.edges[routeKey(from, to)]
	return e.quality, ok
}

func (r *routeNetwork) setSeasonalModifier(m float64) {
	r.mu.Lock()
	r.seasonal = m
	r.mu.Unlock()
}

func (r *routeNetwork) seasonalModifier() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seasonal
}
