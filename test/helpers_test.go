// File: test/helpers_test.go
package test

import (
	"testing"
	"time"

	"github.com/lguibr/harness/server"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// nextFeedEvent receives the next event from the feed, failing the test
// when none arrives within timeout.
func nextFeedEvent(t *testing.T, ws *websocket.Conn, timeout time.Duration) server.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(timeout)))
	defer ws.SetReadDeadline(time.Time{})

	var event server.Event
	require.NoError(t, websocket.JSON.Receive(ws, &event), "no feed event within %v", timeout)
	return event
}
