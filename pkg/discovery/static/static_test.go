package static

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestNew_CleansAndCopies(t *testing.T) {
    s := New(" a:1 ", "", "b:2", "a:1")
    got := s.Seeds()
    assert.Equal(t, []string{"a:1", "b:2"}, got)
    got[0] = "x"
    assert.Equal(t, "a:1", s.Seeds()[0])
}

func TestFromCSV(t *testing.T) {
    assert.Empty(t, FromCSV("").Seeds())
    assert.Equal(t, []string{"a:1", "b:2"}, FromCSV(",,a:1, ,b:2,").Seeds())
}
