// Helper package for tests, must not be used in production code.
package net

import (
	"context"
	"net"
	"testing"

	"github.com/plgd-dev/coap-engine/udp"
	"github.com/plgd-dev/coap-engine/udp/server"
	"github.com/stretchr/testify/require"
)

// Loopback runs an engine on an ephemeral IPv4 loopback port until the test
// ends.
func Loopback(t testing.TB, opt ...server.Option) *udp.Engine {
	t.Helper()
	e, err := udp.Listen("udp4", "127.0.0.1:0", opt...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, e.Close())
	})
	return e
}

// Addr returns the UDP address the engine listens on.
func Addr(t testing.TB, e *udp.Engine) *net.UDPAddr {
	t.Helper()
	addr, ok := e.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	return addr
}
