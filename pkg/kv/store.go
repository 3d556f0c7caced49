package kv

import (
    "encoding/json"
    "fmt"
    "sort"
    "sync"

    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

// Store is the replicated key/value map. Every call holds the single exclusive
// lock for its whole duration, so no partial mutation is ever observable.
//
// Put and Delete are idempotent: commands reach the store twice (once from the
// originating connection, once more from the event loop) and the final state
// must not depend on that.
type Store struct {
    mu   sync.Mutex
    data map[string]string
}

func New() *Store { return &Store{data: make(map[string]string)} }

func (s *Store) Get(key string) (string, bool) {
    s.mu.Lock(); defer s.mu.Unlock()
    v, ok := s.data[key]
    return v, ok
}

// Put stores value under key, last writer wins.
func (s *Store) Put(key, value string) { _ = s.ApplyWith(Put(key, value), nil) }

// Delete removes key; absent keys are a no-op.
func (s *Store) Delete(key string) { _ = s.ApplyWith(Delete(key), nil) }

// ApplyWith performs a Put or Delete and, before releasing the lock, hands
// the command to record (when non-nil). Concurrent writers therefore reach
// record in the same order their mutations hit the map. The mutation stands
// even when record fails; its error is returned.
func (s *Store) ApplyWith(cmd Command, record func(Command) error) error {
    s.mu.Lock()
    switch cmd.Op {
    case OpPut:
        s.data[cmd.Key] = cmd.Value
    case OpDelete:
        delete(s.data, cmd.Key)
    default:
        s.mu.Unlock()
        return fmt.Errorf("kv: cannot apply op %q", cmd.Op)
    }
    var err error
    if record != nil { err = record(cmd) }
    n := len(s.data)
    s.mu.Unlock()
    obsmetrics.StoreKeys.Set(float64(n))
    return err
}

// Apply executes a replicated command. Get carries no mutation and is ignored.
func (s *Store) Apply(cmd Command) error {
    switch cmd.Op {
    case OpPut:
        s.Put(cmd.Key, cmd.Value)
    case OpDelete:
        s.Delete(cmd.Key)
    case OpGet:
    default:
        return fmt.Errorf("kv: unknown op %q", cmd.Op)
    }
    obsmetrics.StoreApplied.WithLabelValues(string(cmd.Op)).Inc()
    return nil
}

func (s *Store) Len() int {
    s.mu.Lock(); defer s.mu.Unlock()
    return len(s.data)
}

type entry struct {
    Key   string `json:"key"`
    Value string `json:"value"`
}

// Snapshot encodes the store as stable JSON (entries sorted by key).
func (s *Store) Snapshot() ([]byte, error) {
    s.mu.Lock()
    arr := make([]entry, 0, len(s.data))
    for k, v := range s.data { arr = append(arr, entry{Key: k, Value: v}) }
    s.mu.Unlock()
    sort.Slice(arr, func(i, j int) bool { return arr[i].Key < arr[j].Key })
    return json.Marshal(struct{
        Version int     `json:"version"`
        Entries []entry `json:"entries"`
    }{Version: 1, Entries: arr})
}

// Restore replaces the whole content with a Snapshot payload.
func (s *Store) Restore(buf []byte) error {
    var snapshot struct{
        Version int     `json:"version"`
        Entries []entry `json:"entries"`
    }
    if err := json.Unmarshal(buf, &snapshot); err != nil {
        return fmt.Errorf("kv: decode snapshot: %w", err)
    }
    if snapshot.Version != 1 {
        return fmt.Errorf("kv: unsupported snapshot version %d", snapshot.Version)
    }
    data := make(map[string]string, len(snapshot.Entries))
    for _, e := range snapshot.Entries { data[e.Key] = e.Value }
    s.mu.Lock()
    s.data = data
    s.mu.Unlock()
    obsmetrics.StoreKeys.Set(float64(len(data)))
    return nil
}

// Items returns the content as Put commands sorted by key.
func (s *Store) Items() []Command {
    s.mu.Lock()
    out := make([]Command, 0, len(s.data))
    for k, v := range s.data { out = append(out, Put(k, v)) }
    s.mu.Unlock()
    sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
    return out
}
