// Package discovery supplies gossip seed addresses to a starting node.
package discovery

import (
    "sort"
    "strings"
)

// Source returns the seed addresses to join. An empty result means the node
// starts a cluster of its own.
type Source interface {
    Seeds() []string
}

// SplitList splits comma-separated seeds, dropping blanks and duplicates while
// keeping first-seen order.
func SplitList(csv string) []string {
    var out []string
    seen := make(map[string]struct{})
    for _, p := range strings.Split(csv, ",") {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        if _, dup := seen[p]; dup { continue }
        seen[p] = struct{}{}
        out = append(out, p)
    }
    return out
}

// Sorted returns the unique seeds in lexical order.
func Sorted(seeds []string) []string {
    set := make(map[string]struct{}, len(seeds))
    for _, s := range seeds { set[s] = struct{}{} }
    out := make([]string, 0, len(set))
    for s := range set { out = append(out, s) }
    sort.Strings(out)
    return out
}
