package coordinator

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/discovery"
    "github.com/amirimatin/kvcoord/pkg/heartbeat"
    "github.com/amirimatin/kvcoord/pkg/membership"
    "github.com/amirimatin/kvcoord/pkg/server"
    "github.com/amirimatin/kvcoord/pkg/transport"
)

// DefaultCompactAbove is the journal length that triggers compaction on Stop.
const DefaultCompactAbove = 10000

// Options carries runtime configuration and optional injected components.
// Instances are typically produced from bootstrap.Config.
type Options struct {
    // ClientAddr is the client protocol listen address (default 127.0.0.1:8080).
    ClientAddr string
    // Timeout bounds each client exchange; 0 disables it.
    Timeout time.Duration
    // BusCapacity is the per-subscriber queue length (default 1024).
    BusCapacity int
    // HeartbeatInterval defaults to 5s.
    HeartbeatInterval time.Duration

    // Membership enables gossip discovery of peers. Optional.
    Membership membership.Membership
    // Discovery supplies gossip seeds; ignored without Membership.
    Discovery discovery.Source
    // Management serves /status, /healthz and /metrics. Optional.
    Management transport.Server

    // DataDir enables the command journal when set.
    DataDir             string
    JournalNoSync       bool
    JournalCompactAbove int

    Logger *log.Logger
}

// Validate fills defaults and rejects nonsensical values. It performs no
// network activity.
func (o *Options) Validate() error {
    if o.Timeout < 0 { return errors.New("coordinator: negative Timeout") }
    if o.HeartbeatInterval < 0 { return errors.New("coordinator: negative HeartbeatInterval") }
    if o.BusCapacity < 0 { return errors.New("coordinator: negative BusCapacity") }
    if o.JournalCompactAbove < 0 { return errors.New("coordinator: negative JournalCompactAbove") }
    if o.ClientAddr == "" { o.ClientAddr = server.DefaultBind }
    if o.BusCapacity == 0 { o.BusCapacity = bus.DefaultCapacity }
    if o.HeartbeatInterval == 0 { o.HeartbeatInterval = heartbeat.DefaultInterval }
    if o.JournalCompactAbove == 0 { o.JournalCompactAbove = DefaultCompactAbove }
    if o.Logger == nil { o.Logger = log.Default() }
    return nil
}
