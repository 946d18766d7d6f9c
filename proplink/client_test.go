package proplink

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestClientWaitConnectedNotOpenReturnsImmediately(t *testing.T) {
	c := &Client{stateChanged: newMonitor()}
	err := c.WaitConnected(context.Background())
	assert.Equal(t, err, ErrNotConnected)
}

func TestClientWaitConnectedUnblocksOnStateChange(t *testing.T) {
	c := &Client{stateChanged: newMonitor()}
	c.lifecycleMu.Lock()
	c.open = true
	c.lifecycleMu.Unlock()

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.reconnectMu.Lock()
		c.operating = true
		c.reconnectMu.Unlock()
		c.stateChanged.broadcast()
	}()

	err := c.WaitConnected(context.Background())
	assert.Equal(t, err, nil)
}

func TestClientWaitConnectedContextCanceled(t *testing.T) {
	c := &Client{stateChanged: newMonitor()}
	c.lifecycleMu.Lock()
	c.open = true
	c.lifecycleMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitConnected(ctx)
	assert.NotEqual(t, err, nil)
}
