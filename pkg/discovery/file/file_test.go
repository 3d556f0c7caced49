package file

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func write(t *testing.T, path, body string) {
    t.Helper()
    require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestSeeds_EnvOverridesFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "seeds.txt")
    write(t, path, "a:1\n")
    t.Setenv("KVCOORD_TEST_SEEDS", "y:8,x:9")

    s := New(Options{Path: path, Env: "KVCOORD_TEST_SEEDS"})
    assert.Equal(t, []string{"x:9", "y:8"}, s.Seeds())
}

func TestSeeds_FileRefresh(t *testing.T) {
    path := filepath.Join(t.TempDir(), "seeds.txt")
    write(t, path, "# seeds\nb:2\na:1, a:1\n")

    s := New(Options{Path: path, Refresh: 10 * time.Millisecond})
    assert.Equal(t, []string{"a:1", "b:2"}, s.Seeds())

    write(t, path, "b:2\nc:3\n")
    time.Sleep(15 * time.Millisecond)
    assert.Equal(t, []string{"b:2", "c:3"}, s.Seeds())
}

func TestSeeds_Glob(t *testing.T) {
    dir := t.TempDir()
    write(t, filepath.Join(dir, "a.txt"), "a:1\nb:2\n")
    write(t, filepath.Join(dir, "b.txt"), "b:2\nc:3\n")

    s := New(Options{Path: filepath.Join(dir, "*.txt")})
    assert.Equal(t, []string{"a:1", "b:2", "c:3"}, s.Seeds())
}

func TestSeeds_Missing(t *testing.T) {
    s := New(Options{Path: filepath.Join(t.TempDir(), "none")})
    assert.Empty(t, s.Seeds())
    assert.Empty(t, New(Options{}).Seeds())
}
