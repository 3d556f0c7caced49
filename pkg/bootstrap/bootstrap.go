// Package bootstrap assembles a coordinator.Node from flat configuration,
// choosing the discovery, gossip and management implementations.
package bootstrap

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/amirimatin/kvcoord/pkg/config"
    "github.com/amirimatin/kvcoord/pkg/coordinator"
    "github.com/amirimatin/kvcoord/pkg/discovery"
    dFile "github.com/amirimatin/kvcoord/pkg/discovery/file"
    dStatic "github.com/amirimatin/kvcoord/pkg/discovery/static"
    ml "github.com/amirimatin/kvcoord/pkg/membership/memberlist"
    "github.com/amirimatin/kvcoord/pkg/transport"
    mgmtgrpc "github.com/amirimatin/kvcoord/pkg/transport/grpc"
    httpjson "github.com/amirimatin/kvcoord/pkg/transport/httpjson"
)

// Config defines the inputs of a node. Zero values select defaults; gossip
// and the management API stay off until their bind addresses are set.
type Config struct {
    ClientAddr        string
    Timeout           time.Duration
    BusCapacity       int
    HeartbeatInterval time.Duration

    // Gossip (memberlist). MemBind enables it.
    NodeID  string
    MemBind string
    MemAdv  string

    // Seed discovery for gossip.
    DiscoveryKind string // "static" (default) or "file"
    SeedsCSV      string
    Seeds         []string
    FilePath      string
    FileEnv       string
    DiscRefresh   time.Duration

    // Management API (status/healthz/metrics).
    MgmtAddr  string
    MgmtProto string // "http" (default) or "grpc"

    // Journal; empty DataDir keeps the store in memory only.
    DataDir      string
    NoSync       bool
    CompactAbove int

    Logger *log.Logger
}

// FromFile maps a parsed configuration file onto Config.
func FromFile(f *config.File) Config {
    return Config{
        ClientAddr:        f.Node.ClientAddr,
        Timeout:           f.Node.Timeout,
        BusCapacity:       f.Node.BusCapacity,
        HeartbeatInterval: f.Heartbeat.Interval,
        NodeID:            f.Gossip.NodeID,
        MemBind:           f.Gossip.Bind,
        MemAdv:            f.Gossip.Advertise,
        DiscoveryKind:     f.Gossip.Discovery,
        Seeds:             f.Gossip.Seeds,
        FilePath:          f.Gossip.SeedsFile,
        FileEnv:           f.Gossip.SeedsEnv,
        MgmtAddr:          f.Management.Addr,
        MgmtProto:         f.Management.Proto,
        DataDir:           f.Storage.DataDir,
        NoSync:            f.Storage.NoSync,
        CompactAbove:      f.Storage.CompactAbove,
    }
}

func (cfg Config) discovery() discovery.Source {
    switch cfg.DiscoveryKind {
    case "file":
        return dFile.New(dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv, Refresh: cfg.DiscRefresh})
    default:
        return dStatic.New(append(dStatic.FromCSV(cfg.SeedsCSV).Seeds(), cfg.Seeds...)...)
    }
}

// Build assembles a node without starting it.
func Build(cfg Config) (*coordinator.Node, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    switch cfg.DiscoveryKind {
    case "", "static", "file":
    default:
        return nil, fmt.Errorf("bootstrap: unknown discovery %q", cfg.DiscoveryKind)
    }

    opts := coordinator.Options{
        ClientAddr:          cfg.ClientAddr,
        Timeout:             cfg.Timeout,
        BusCapacity:         cfg.BusCapacity,
        HeartbeatInterval:   cfg.HeartbeatInterval,
        DataDir:             cfg.DataDir,
        JournalNoSync:       cfg.NoSync,
        JournalCompactAbove: cfg.CompactAbove,
        Logger:              cfg.Logger,
    }

    if cfg.MemBind != "" {
        id := cfg.NodeID
        if id == "" { id = cfg.ClientAddr }
        mem, err := ml.New(ml.Options{
            NodeID:     id,
            Bind:       cfg.MemBind,
            Advertise:  cfg.MemAdv,
            ClientAddr: cfg.ClientAddr,
            Logger:     cfg.Logger,
        })
        if err != nil { return nil, err }
        opts.Membership = mem
        opts.Discovery = cfg.discovery()
    }

    if cfg.MgmtAddr != "" {
        var srv transport.Server
        switch cfg.MgmtProto {
        case "grpc":
            srv = mgmtgrpc.NewServer(cfg.MgmtAddr, cfg.Logger)
        case "", "http":
            srv = httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
        default:
            return nil, fmt.Errorf("bootstrap: unknown management protocol %q", cfg.MgmtProto)
        }
        opts.Management = srv
    }
    return coordinator.New(opts)
}

// Run builds and starts a node. The caller stops it.
func Run(ctx context.Context, cfg Config) (*coordinator.Node, error) {
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil { return nil, err }
    return n, nil
}

// StatusClient returns the management client matching proto.
func StatusClient(proto string, timeout time.Duration) (transport.Client, error) {
    switch proto {
    case "grpc":
        return mgmtgrpc.NewClient(timeout), nil
    case "", "http":
        return httpjson.NewClient(timeout), nil
    }
    return nil, fmt.Errorf("bootstrap: unknown management protocol %q", proto)
}
