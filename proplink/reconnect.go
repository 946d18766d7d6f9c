package proplink

import (
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/glog"
)

// beginReconnect drives the exponential-backoff reconnect controller.
// It is invoked from dealerLoop on a transport error and is idempotent
// against overlapping calls via reconnecting — only the first caller of
// a given broken epoch actually runs the loop.
func (c *Client) beginReconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.operating = false
	c.reconnectMu.Unlock()
	c.stateChanged.broadcast()

	glog.Infof("%s: connection lost, reconnecting", logTagClient)
	succeeded := c.runReconnectLoop()

	c.reconnectMu.Lock()
	c.reconnecting = false
	c.operating = succeeded
	c.reconnectMu.Unlock()
	c.stateChanged.broadcast()

	if succeeded {
		c.failOutstanding(ErrConnectionReset)
		glog.Infof("%s: reconnected", logTagClient)
		return
	}

	c.failOutstanding(ErrReconnectExhausted)
	c.lifecycleMu.Lock()
	c.open = false
	c.lifecycleMu.Unlock()
	c.stateChanged.broadcast()
	glog.Infof("%s: %s", logTagClient, errReconnectExhausted)
}

// runReconnectLoop steps through settings.ReconnectBackoff, capped at
// MaxReconnectAttempts. It returns false without attempting anything
// further once Close has signaled closing.
func (c *Client) runReconnectLoop() bool {
	for attempt := 0; attempt < c.settings.MaxReconnectAttempts; attempt++ {
		if c.closing.Load() {
			return false
		}
		time.Sleep(c.settings.backoffFor(attempt))
		if c.closing.Load() {
			return false
		}
		if err := c.reconnectSockets(); err != nil {
			glog.Infof("%s: reconnect attempt %d/%d failed: %s", logTagClient, attempt+1, c.settings.MaxReconnectAttempts, err)
			continue
		}
		return true
	}
	return false
}

// reconnectSockets closes the current dealer/subscriber sockets, dials
// fresh ones, and restarts their read loops on success. The control
// socket is left untouched — it is bound, not connected, and is not
// part of the broken transport.
func (c *Client) reconnectSockets() error {
	c.sockMu.Lock()
	if c.dealer != nil {
		c.dealer.Close()
	}
	if c.sub != nil {
		c.sub.Close()
	}
	c.sockMu.Unlock()

	dealer := zmq4.NewDealer(c.ctx)
	if err := dealer.Dial(c.settings.DealerEndpoint); err != nil {
		return fmt.Errorf("dial dealer: %w", err)
	}

	sub := zmq4.NewSub(c.ctx)
	if err := sub.Dial(c.settings.SubscriberEndpoint); err != nil {
		dealer.Close()
		return fmt.Errorf("dial subscriber: %w", err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		glog.Warningf("%s: subscribe-all failed on reconnected subscriber socket: %s", logTagClient, err)
	}

	c.sockMu.Lock()
	c.dealer, c.sub = dealer, sub
	c.sockMu.Unlock()
	c.sessionID = newSessionID()

	c.dealerWG.Add(1)
	go c.dealerLoop(dealer)
	c.subWG.Add(1)
	go c.subLoop(sub)

	return nil
}

// failOutstanding atomically drains the pending map and delivers err to
// every waiter, preserving per-entry delivery but making no ordering
// promise across different entries.
func (c *Client) failOutstanding(err error) {
	c.pendingMu.Lock()
	entries := c.pending
	c.pending = make(map[uint32]*pendingEntry)
	c.pendingMu.Unlock()

	for _, e := range entries {
		e := e
		if e.getCh != nil {
			e.getCh <- getResult{err: err}
		}
		if e.callback != nil {
			HandleError(func() {
				e.callback(false, err.Error(), err)
			})
		}
	}
}
