// Package journal persists locally originated store mutations in a
// write-ahead log so a restarted node can rebuild its store. Replay relies on
// the store's idempotent apply; entries are never deduplicated.
package journal

import (
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "sync"

    "github.com/tidwall/wal"

    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/kv"
    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

var ErrClosed = errors.New("journal: closed")

type Options struct {
    // Dir holds the log segments; created when missing.
    Dir string
    // NoSync skips fsync after each append.
    NoSync bool
    Logger *log.Logger
}

type Journal struct {
    mu     sync.Mutex
    opts   Options
    log    *wal.Log
    last   uint64
    closed bool
}

func Open(opts Options) (*Journal, error) {
    if opts.Dir == "" { return nil, errors.New("journal: empty Dir") }
    if opts.Logger == nil { opts.Logger = log.Default() }
    j := &Journal{opts: opts}
    if err := j.open(); err != nil { return nil, err }
    return j, nil
}

func (j *Journal) open() error {
    if err := os.MkdirAll(j.opts.Dir, 0o750); err != nil {
        return fmt.Errorf("journal: mkdir %s: %w", j.opts.Dir, err)
    }
    wo := *wal.DefaultOptions
    wo.NoSync = j.opts.NoSync
    l, err := wal.Open(j.opts.Dir, &wo)
    if err != nil { return fmt.Errorf("journal: open: %w", err) }
    last, err := l.LastIndex()
    if err != nil {
        l.Close()
        return fmt.Errorf("journal: last index: %w", err)
    }
    j.log, j.last = l, last
    return nil
}

// Append records a mutating command. Get is ignored.
func (j *Journal) Append(cmd kv.Command) error {
    if !cmd.Mutates() { return nil }
    data, err := json.Marshal(cmd)
    if err != nil { return err }
    j.mu.Lock()
    defer j.mu.Unlock()
    if j.closed { return ErrClosed }
    if err := j.log.Write(j.last+1, data); err != nil {
        return fmt.Errorf("journal: write %d: %w", j.last+1, err)
    }
    j.last++
    obsmetrics.JournalAppends.Inc()
    return nil
}

// Replay feeds every recorded command, oldest first, to apply and returns how
// many were replayed. Entries are read under the journal lock and applied
// after it is released. Order is the order Append was called in, which the
// server keeps equal to the order mutations reached the store.
func (j *Journal) Replay(apply func(kv.Command) error) (int, error) {
    cmds, err := j.entries()
    if err != nil { return 0, err }
    for i, cmd := range cmds {
        if err := apply(cmd); err != nil { return i, err }
    }
    logutil.Infof(j.opts.Logger, "journal replayed %d commands from %s", len(cmds), j.opts.Dir)
    return len(cmds), nil
}

func (j *Journal) entries() ([]kv.Command, error) {
    j.mu.Lock()
    defer j.mu.Unlock()
    if j.closed { return nil, ErrClosed }
    if j.last == 0 { return nil, nil }
    first, err := j.log.FirstIndex()
    if err != nil { return nil, fmt.Errorf("journal: first index: %w", err) }
    if first > j.last { return nil, nil }
    out := make([]kv.Command, 0, j.last-first+1)
    for idx := first; idx <= j.last; idx++ {
        data, err := j.log.Read(idx)
        if err != nil { return nil, fmt.Errorf("journal: read %d: %w", idx, err) }
        var cmd kv.Command
        if err := json.Unmarshal(data, &cmd); err != nil {
            return nil, fmt.Errorf("journal: decode %d: %w", idx, err)
        }
        out = append(out, cmd)
    }
    return out, nil
}

// Len reports the number of retained entries.
func (j *Journal) Len() int {
    j.mu.Lock()
    defer j.mu.Unlock()
    if j.closed || j.last == 0 { return 0 }
    first, err := j.log.FirstIndex()
    if err != nil || first == 0 { return 0 }
    return int(j.last - first + 1)
}

// Compact rewrites the journal as the given live state (one Put per key) and
// drops everything that preceded it.
func (j *Journal) Compact(live []kv.Command) error {
    j.mu.Lock()
    defer j.mu.Unlock()
    if j.closed { return ErrClosed }
    if len(live) == 0 {
        // a wal cannot truncate to zero entries; start a fresh log instead
        if err := j.log.Close(); err != nil { return err }
        if err := os.RemoveAll(j.opts.Dir); err != nil { return fmt.Errorf("journal: reset: %w", err) }
        return j.open()
    }
    start := j.last + 1
    batch := new(wal.Batch)
    for i, cmd := range live {
        data, err := json.Marshal(cmd)
        if err != nil { return err }
        batch.Write(start+uint64(i), data)
    }
    if err := j.log.WriteBatch(batch); err != nil { return fmt.Errorf("journal: compact write: %w", err) }
    j.last = start + uint64(len(live)) - 1
    if err := j.log.TruncateFront(start); err != nil { return fmt.Errorf("journal: truncate: %w", err) }
    logutil.Infof(j.opts.Logger, "journal compacted to %d entries", len(live))
    return nil
}

func (j *Journal) Close() error {
    j.mu.Lock()
    defer j.mu.Unlock()
    if j.closed { return nil }
    j.closed = true
    return j.log.Close()
}
