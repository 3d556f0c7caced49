package kv

import (
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestStore_LastWriteWins(t *testing.T) {
    s := New()
    s.Put("k", "v1")
    s.Put("k", "v2")

    v, ok := s.Get("k")
    require.True(t, ok)
    assert.Equal(t, "v2", v)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
    s := New()
    s.Put("k", "v")
    for i := 0; i < 3; i++ {
        s.Delete("k")
        _, ok := s.Get("k")
        assert.False(t, ok, "delete #%d", i+1)
    }
    // deleting a key that never existed is a no-op
    s.Delete("missing")
    assert.Equal(t, 0, s.Len())
}

func TestStore_ApplyTwiceEqualsOnce(t *testing.T) {
    once, twice := New(), New()
    cmds := []Command{Put("a", "1"), Put("b", "2"), Delete("a"), Put("c", "3")}
    for _, c := range cmds {
        require.NoError(t, once.Apply(c))
        require.NoError(t, twice.Apply(c))
        require.NoError(t, twice.Apply(c))
    }

    s1, err := once.Snapshot()
    require.NoError(t, err)
    s2, err := twice.Snapshot()
    require.NoError(t, err)
    assert.JSONEq(t, string(s1), string(s2))
}

func TestStore_ApplyGetIsNoop(t *testing.T) {
    s := New()
    require.NoError(t, s.Apply(Get("k")))
    assert.Equal(t, 0, s.Len())
}

func TestStore_ApplyUnknownOp(t *testing.T) {
    s := New()
    err := s.Apply(Command{Op: "merge", Key: "k"})
    require.Error(t, err)
    assert.Contains(t, err.Error(), "unknown op")
}

func TestStore_SnapshotRestore(t *testing.T) {
    s := New()
    s.Put("b", "2")
    s.Put("a", "1")

    snap, err := s.Snapshot()
    require.NoError(t, err)
    assert.JSONEq(t, `{"version":1,"entries":[{"key":"a","value":"1"},{"key":"b","value":"2"}]}`, string(snap))

    s2 := New()
    s2.Put("stale", "x")
    require.NoError(t, s2.Restore(snap))
    _, ok := s2.Get("stale")
    assert.False(t, ok)
    v, ok := s2.Get("b")
    require.True(t, ok)
    assert.Equal(t, "2", v)
}

func TestStore_RestoreRejectsBadInput(t *testing.T) {
    s := New()
    require.Error(t, s.Restore([]byte("not json")))
    require.Error(t, s.Restore([]byte(`{"version":7,"entries":[]}`)))
}

func TestStore_ConcurrentWriters(t *testing.T) {
    s := New()
    var wg sync.WaitGroup
    for i := 0; i < 16; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for j := 0; j < 100; j++ {
                s.Put("shared", "v")
                s.Get("shared")
            }
        }()
    }
    wg.Wait()
    assert.Equal(t, 1, s.Len())
}

func TestCommand_String(t *testing.T) {
    assert.Equal(t, "PUT a 1", Put("a", "1").String())
    assert.Equal(t, "GET a", Get("a").String())
    assert.Equal(t, "DEL a", Delete("a").String())
    assert.True(t, Put("a", "1").Mutates())
    assert.False(t, Get("a").Mutates())
}

func TestStore_Items(t *testing.T) {
    s := New()
    s.Put("b", "2")
    s.Put("a", "1")
    assert.Equal(t, []Command{Put("a", "1"), Put("b", "2")}, s.Items())
}

func TestStore_ApplyWithRecordsInApplyOrder(t *testing.T) {
    s := New()
    var (
        mu       sync.Mutex
        recorded []Command
    )
    record := func(c Command) error {
        mu.Lock()
        recorded = append(recorded, c)
        mu.Unlock()
        return nil
    }

    var wg sync.WaitGroup
    for i := 0; i < 32; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            cmd := Put("k", string(rune('a'+i%26)))
            if i%5 == 0 { cmd = Delete("k") }
            require.NoError(t, s.ApplyWith(cmd, record))
        }(i)
    }
    wg.Wait()

    // replaying the record must land on the live state
    replayed := New()
    for _, c := range recorded { require.NoError(t, replayed.Apply(c)) }
    want, err := s.Snapshot()
    require.NoError(t, err)
    got, err := replayed.Snapshot()
    require.NoError(t, err)
    assert.JSONEq(t, string(want), string(got))
}

func TestStore_ApplyWithRecordError(t *testing.T) {
    s := New()
    err := s.ApplyWith(Put("k", "v"), func(Command) error { return assert.AnError })
    assert.ErrorIs(t, err, assert.AnError)
    v, ok := s.Get("k")
    require.True(t, ok)
    assert.Equal(t, "v", v)

    assert.Error(t, s.ApplyWith(Get("k"), nil))
}
