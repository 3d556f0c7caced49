// Package cli provides the cobra commands of the kvcoord binary.
package cli

import (
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/kvcoord/pkg/bootstrap"
    "github.com/amirimatin/kvcoord/pkg/client"
    "github.com/amirimatin/kvcoord/pkg/config"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    tracing "github.com/amirimatin/kvcoord/pkg/observability/tracing"
)

// NewRootCmd returns the kvcoord command with all subcommands attached.
func NewRootCmd() *cobra.Command {
    root := &cobra.Command{
        Use:           "kvcoord",
        Short:         "Replicated key-value coordinator",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    AddAll(root)
    return root
}

// AddAll attaches run/status/get/put/del to root.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewGetCmd())
    root.AddCommand(NewPutCmd())
    root.AddCommand(NewDelCmd())
}

// NewRunCmd returns the "run" command that starts a node. Flags override
// values from --config.
func NewRunCmd() *cobra.Command {
    var (
        cfgPath, logLevel, logFormat string
        traceEnable                  bool
        cfg                          bootstrap.Config
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a node",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            eff := cfg
            if cfgPath != "" {
                f, err := config.Load(cfgPath)
                if err != nil { return err }
                eff = overlay(bootstrap.FromFile(f), cfg, cmd)
                if !cmd.Flags().Changed("log-level") && f.Log.Level != "" { logLevel = f.Log.Level }
                if !cmd.Flags().Changed("log-format") && f.Log.Format != "" { logFormat = f.Log.Format }
                if !cmd.Flags().Changed("trace") { traceEnable = traceEnable || f.Tracing.Enabled }
            }
            if eff.ClientAddr == "" { eff.ClientAddr = "127.0.0.1:8080" }
            if logLevel != "" { logutil.SetLevel(logutil.ParseLevel(logLevel)) }
            if logFormat == "json" { logutil.SetJSON(true) }
            eff.Logger = log.Default()

            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true, os.Stderr)
                if err != nil {
                    logutil.Warnf(eff.Logger, "tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            n, err := bootstrap.Run(ctx, eff)
            if err != nil { return err }
            fmt.Fprintf(cmd.OutOrStdout(), "kvcoord serving on %s. Press Ctrl+C to exit.\n", n.Addr())
            <-ctx.Done()
            sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
            defer scancel()
            return n.Stop(sctx)
        },
    }
    f := cmd.Flags()
    f.StringVar(&cfgPath, "config", "", "YAML config file (${ENV} references are expanded)")
    f.StringVar(&cfg.ClientAddr, "addr", "127.0.0.1:8080", "client protocol listen address")
    f.DurationVar(&cfg.Timeout, "timeout", 0, "per-connection read/write timeout (0 disables)")
    f.DurationVar(&cfg.HeartbeatInterval, "heartbeat", 5*time.Second, "heartbeat interval")
    f.IntVar(&cfg.BusCapacity, "bus-capacity", 1024, "per-subscriber event queue length")
    f.StringVar(&cfg.NodeID, "id", "", "gossip node name (defaults to --addr)")
    f.StringVar(&cfg.MemBind, "mem-bind", "", "gossip bind address (host:port); empty disables gossip")
    f.StringVar(&cfg.MemAdv, "mem-adv", "", "gossip advertise address (optional)")
    f.StringVar(&cfg.SeedsCSV, "join", "", "comma-separated gossip seeds, used by discovery=static")
    f.StringVar(&cfg.DiscoveryKind, "discovery", "static", "seed discovery: static|file")
    f.StringVar(&cfg.FilePath, "file-path", "", "path or glob of seed files (discovery=file)")
    f.StringVar(&cfg.FileEnv, "file-env", "", "env var with CSV seeds; overrides the file when set")
    f.DurationVar(&cfg.DiscRefresh, "disc-refresh", 5*time.Second, "seed file cache duration")
    f.StringVar(&cfg.MgmtAddr, "mgmt-addr", "", "management API address; empty disables it")
    f.StringVar(&cfg.MgmtProto, "mgmt-proto", "http", "management protocol: http|grpc")
    f.StringVar(&cfg.DataDir, "data", "", "journal directory; empty keeps data in memory only")
    f.BoolVar(&cfg.NoSync, "no-sync", false, "skip fsync on journal appends")
    f.IntVar(&cfg.CompactAbove, "compact-above", 10000, "compact the journal on shutdown above this many entries")
    f.StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
    f.StringVar(&logFormat, "log-format", "", "text|json")
    f.BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    return cmd
}

// overlay applies explicitly set flags on top of file values.
func overlay(base, flags bootstrap.Config, cmd *cobra.Command) bootstrap.Config {
    set := cmd.Flags().Changed
    if set("addr") { base.ClientAddr = flags.ClientAddr }
    if set("timeout") { base.Timeout = flags.Timeout }
    if set("heartbeat") { base.HeartbeatInterval = flags.HeartbeatInterval }
    if set("bus-capacity") { base.BusCapacity = flags.BusCapacity }
    if set("id") { base.NodeID = flags.NodeID }
    if set("mem-bind") { base.MemBind = flags.MemBind }
    if set("mem-adv") { base.MemAdv = flags.MemAdv }
    if set("join") { base.SeedsCSV, base.Seeds = flags.SeedsCSV, nil }
    if set("discovery") { base.DiscoveryKind = flags.DiscoveryKind }
    if set("file-path") { base.FilePath = flags.FilePath }
    if set("file-env") { base.FileEnv = flags.FileEnv }
    if set("disc-refresh") || base.DiscRefresh == 0 { base.DiscRefresh = flags.DiscRefresh }
    if set("mgmt-addr") { base.MgmtAddr = flags.MgmtAddr }
    if set("mgmt-proto") { base.MgmtProto = flags.MgmtProto }
    if set("data") { base.DataDir = flags.DataDir }
    if set("no-sync") { base.NoSync = flags.NoSync }
    if set("compact-above") { base.CompactAbove = flags.CompactAbove }
    return base
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var (
        addr, proto string
        timeout     time.Duration
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch node status as JSON from the management API",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            c, err := bootstrap.StatusClient(proto, timeout)
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            data, err := c.GetStatus(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = io.WriteString(out, "\n") }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "mgmt-addr", "127.0.0.1:17946", "management address of a node")
    cmd.Flags().StringVar(&proto, "mgmt-proto", "http", "management protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    return cmd
}

type kvFlags struct {
    addr    string
    timeout time.Duration
}

func (k *kvFlags) bind(cmd *cobra.Command) {
    cmd.Flags().StringVar(&k.addr, "addr", "127.0.0.1:8080", "client address of a node")
    cmd.Flags().DurationVar(&k.timeout, "timeout", 3*time.Second, "request timeout")
}

func (k *kvFlags) client() *client.Client { return client.New(k.addr, k.timeout) }

func NewGetCmd() *cobra.Command {
    var kf kvFlags
    cmd := &cobra.Command{
        Use:   "get <key>",
        Short: "Read a key",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            v, err := kf.client().Get(cmd.Context(), args[0])
            if errors.Is(err, client.ErrNotFound) {
                fmt.Fprintln(cmd.OutOrStdout(), "NOT FOUND")
                return err
            }
            if err != nil { return err }
            fmt.Fprintln(cmd.OutOrStdout(), v)
            return nil
        },
    }
    kf.bind(cmd)
    return cmd
}

func NewPutCmd() *cobra.Command {
    var kf kvFlags
    cmd := &cobra.Command{
        Use:   "put <key> <value>",
        Short: "Write a key",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := kf.client().Put(cmd.Context(), args[0], args[1]); err != nil { return err }
            fmt.Fprintln(cmd.OutOrStdout(), "OK")
            return nil
        },
    }
    kf.bind(cmd)
    return cmd
}

func NewDelCmd() *cobra.Command {
    var kf kvFlags
    cmd := &cobra.Command{
        Use:   "del <key>",
        Short: "Delete a key",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := kf.client().Delete(cmd.Context(), args[0]); err != nil { return err }
            fmt.Fprintln(cmd.OutOrStdout(), "OK")
            return nil
        },
    }
    kf.bind(cmd)
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
