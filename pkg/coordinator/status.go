package coordinator

import "github.com/amirimatin/kvcoord/pkg/membership"

// NodeStatus is a JSON-serializable snapshot of one node.
type NodeStatus struct {
    // Healthy is true while the node is started and serving clients.
    Healthy    bool                    `json:"healthy"`
    ClientAddr string                  `json:"clientAddr"`
    Leader     string                  `json:"leader,omitempty"`
    // Members is the registry in insertion order, duplicates included.
    Members    []string                `json:"members"`
    Keys       int                     `json:"keys"`
    Heartbeats uint64                  `json:"heartbeats"`
    // Lagged counts events the event loop missed because its queue overflowed.
    Lagged     uint64                  `json:"lagged"`
    Gossip     []membership.MemberInfo `json:"gossip,omitempty"`
    Warnings   []string                `json:"warnings,omitempty"`
}
