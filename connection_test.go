package pagi

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionIsIdleOrLongLivedForIdleHTTP(t *testing.T) {
	c := newConnection(&net.TCPConn{}, 0)
	assert.True(t, c.isIdleOrLongLived())
}

func TestConnectionIsNotIdleWhileRequestInFlight(t *testing.T) {
	c := newConnection(&net.TCPConn{}, 0)
	c.beginRequest()
	assert.False(t, c.isIdleOrLongLived())
	c.endRequest()
	assert.True(t, c.isIdleOrLongLived())
}

func TestConnectionWebSocketAlwaysLongLived(t *testing.T) {
	c := newConnection(&net.TCPConn{}, 0)
	c.setKind(connKindWebSocket)
	c.beginRequest()
	assert.True(t, c.isIdleOrLongLived(), "a long-lived connection closes immediately during drain regardless of in-flight state")
}
