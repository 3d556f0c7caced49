package membership

import (
    "sync"

    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

// Registry is the ordered list of known peer addresses. Insertion order is
// kept and duplicates are not filtered: a peer that connects twice appears
// twice until removed.
type Registry struct {
    mu      sync.Mutex
    members []string
}

func NewRegistry() *Registry { return &Registry{} }

// Add appends addr.
func (r *Registry) Add(addr string) {
    r.mu.Lock()
    r.members = append(r.members, addr)
    n := len(r.members)
    r.mu.Unlock()
    obsmetrics.ClusterMembers.Set(float64(n))
}

// Remove drops every occurrence of addr and returns how many were removed.
func (r *Registry) Remove(addr string) int {
    r.mu.Lock()
    kept := r.members[:0]
    removed := 0
    for _, m := range r.members {
        if m == addr { removed++; continue }
        kept = append(kept, m)
    }
    // clear the tail so the backing array doesn't pin stale strings
    for i := len(kept); i < len(r.members); i++ { r.members[i] = "" }
    r.members = kept
    n := len(r.members)
    r.mu.Unlock()
    obsmetrics.ClusterMembers.Set(float64(n))
    return removed
}

// Members returns a copy in insertion order.
func (r *Registry) Members() []string {
    r.mu.Lock(); defer r.mu.Unlock()
    return append([]string(nil), r.members...)
}

func (r *Registry) Contains(addr string) bool {
    r.mu.Lock(); defer r.mu.Unlock()
    for _, m := range r.members {
        if m == addr { return true }
    }
    return false
}

func (r *Registry) Len() int {
    r.mu.Lock(); defer r.mu.Unlock()
    return len(r.members)
}
