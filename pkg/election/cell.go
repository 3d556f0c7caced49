package election

import "sync"

// Cell holds the current leader address, if any.
type Cell struct {
    mu     sync.Mutex
    leader string
    set    bool
}

func (c *Cell) Leader() (string, bool) {
    c.mu.Lock(); defer c.mu.Unlock()
    return c.leader, c.set
}

func (c *Cell) Set(addr string) {
    c.mu.Lock(); defer c.mu.Unlock()
    c.leader, c.set = addr, true
}

// Clear empties the cell and returns the previous leader.
func (c *Cell) Clear() (string, bool) {
    c.mu.Lock(); defer c.mu.Unlock()
    prev, ok := c.leader, c.set
    c.leader, c.set = "", false
    return prev, ok
}

// clearIf empties the cell only when it still holds addr.
func (c *Cell) clearIf(addr string) bool {
    c.mu.Lock(); defer c.mu.Unlock()
    if !c.set || c.leader != addr { return false }
    c.leader, c.set = "", false
    return true
}

// challenge installs addr when the cell is empty or addr sorts strictly
// after the current leader. The check and the write share one critical section.
func (c *Cell) challenge(addr string) bool {
    c.mu.Lock(); defer c.mu.Unlock()
    if c.set && !Outranks(addr, c.leader) { return false }
    c.leader, c.set = addr, true
    return true
}

// Outranks is the election order: plain lexicographic comparison of the
// address text, so "10.0.0.9:80" outranks "10.0.0.10:80".
func Outranks(a, b string) bool { return a > b }
