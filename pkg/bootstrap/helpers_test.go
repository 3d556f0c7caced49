package bootstrap

import (
    "net"
    "testing"

    "github.com/stretchr/testify/require"
)

// freeAddr reserves a loopback port and releases it for the caller.
func freeAddr(t *testing.T) string {
    t.Helper()
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    addr := ln.Addr().String()
    require.NoError(t, ln.Close())
    return addr
}
