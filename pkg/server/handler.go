package server

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "net"
    "time"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/kv"
    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
    "github.com/amirimatin/kvcoord/pkg/observability/tracing"
    "github.com/amirimatin/kvcoord/pkg/protocol"
)

// MaxRequestLine bounds a request line, terminator included. Longer input is
// answered with ERROR without being read any further.
const MaxRequestLine = 64 << 10

var errLineTooLong = errors.New("request line too long")

// Journal records locally originated mutations.
type Journal interface {
    Append(cmd kv.Command) error
}

// Handler answers exactly one request per connection.
type Handler struct {
    store   *kv.Store
    pub     bus.Publisher
    journal Journal
    timeout time.Duration
    logger  *log.Logger
}

func NewHandler(store *kv.Store, pub bus.Publisher, journal Journal, timeout time.Duration, logger *log.Logger) *Handler {
    if logger == nil { logger = log.Default() }
    return &Handler{store: store, pub: pub, journal: journal, timeout: timeout, logger: logger}
}

// Handle reads one line from conn, executes it and writes one response line.
// A malformed request is answered with ERROR and is not an error of Handle;
// only a failed read (nothing received) or a failed write is returned.
// The connection is left open for the caller to close.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) error {
    if h.timeout > 0 {
        _ = conn.SetDeadline(time.Now().Add(h.timeout))
    }
    line, err := bufio.NewReader(io.LimitReader(conn, MaxRequestLine+1)).ReadString('\n')
    if err != nil && !(errors.Is(err, io.EOF) && line != "") {
        return fmt.Errorf("read request: %w", err)
    }

    var req protocol.Request
    perr := errLineTooLong
    if len(line) <= MaxRequestLine {
        req, perr = protocol.Parse(line)
    }
    verb := req.Verb
    if perr != nil { verb = "invalid" }
    _, end := tracing.StartSpan(ctx, "client.request",
        attribute.String("verb", verb),
        attribute.String("peer", conn.RemoteAddr().String()))

    resp, result := h.dispatch(req, perr)
    obsmetrics.ClientRequests.WithLabelValues(verb, result).Inc()
    if _, err := io.WriteString(conn, resp); err != nil {
        err = fmt.Errorf("write response: %w", err)
        end(err)
        return err
    }
    end(nil)
    return nil
}

func (h *Handler) dispatch(req protocol.Request, perr error) (resp, result string) {
    if perr != nil {
        return protocol.RespError, "error"
    }
    cmd := req.Command
    if cmd.Op == kv.OpGet {
        v, ok := h.store.Get(cmd.Key)
        if !ok { return protocol.RespNotFound, "not_found" }
        return protocol.OKValue(v), "ok"
    }
    // journaled under the store lock so replay order matches apply order
    var record func(kv.Command) error
    if h.journal != nil { record = h.journal.Append }
    if err := h.store.ApplyWith(cmd, record); err != nil {
        logutil.Errorf(h.logger, "journal append %s: %v", cmd, err)
    }
    h.pub.Publish(bus.CommandEvent(cmd))
    return protocol.RespOK, "ok"
}
