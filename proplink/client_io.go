package proplink

import (
	"errors"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/glog"

	"github.com/proplink/proplink/wire"
)

// dealerLoop is the sole reader of sock. It runs for the lifetime of
// one connect/reconnect epoch and returns when sock is closed, either
// deliberately (Close) or by a transport error — the two are told apart
// via c.closing. This is the client-side twin of the goroutine-per-
// socket adaptation documented for the server's routerReadLoop (see
// DESIGN.md): each socket owns a dedicated goroutine instead of one
// thread multiplexing a manual poll.
func (c *Client) dealerLoop(sock zmq4.Socket) {
	defer c.dealerWG.Done()
	for {
		msg, err := sock.Recv()
		if err != nil {
			if !c.closing.Load() {
				glog.Infof("%s: dealer transport error: %s", logTagClient, err)
				go c.beginReconnect()
			}
			return
		}
		c.onDealerReply(msg)
	}
}

// onDealerReply decodes one reply body, correlates it by command_id,
// and delivers it to whichever of the two pending-request families
// (blocking get, or Sync/Async mutate) registered that id. An unknown
// or already-delivered id is discarded.
func (c *Client) onDealerReply(msg zmq4.Msg) {
	if len(msg.Frames) == 0 {
		return
	}
	body := msg.Frames[len(msg.Frames)-1]

	frame, err := wire.DecodeFrame(body)
	if err != nil {
		glog.Warningf("%s: dropping malformed reply: %s", logTagClient, err)
		return
	}

	entry := c.takePending(frame.ID)
	if entry == nil {
		return
	}

	resp, decodeErr := wire.DecodeResponse(body, entry.forType)

	if entry.getCh != nil {
		entry.getCh <- getResult{resp: resp, err: decodeErr}
		return
	}
	if entry.callback != nil {
		var success bool
		var message string
		var cbErr error
		switch {
		case decodeErr != nil:
			success, message, cbErr = false, decodeErr.Error(), decodeErr
		case resp.IsError:
			success, message, cbErr = false, resp.Message, errors.New(resp.Message)
		default:
			success, message = true, resp.Message
		}
		HandleError(func() {
			entry.callback(success, message, cbErr)
		})
	}
}

// subLoop is the sole reader of sock. Transport errors here are
// logged, not escalated to the reconnect controller — losing a few
// notifications is an accepted cost; the socket is replaced the next
// time a dealer-triggered reconnect succeeds.
func (c *Client) subLoop(sock zmq4.Socket) {
	defer c.subWG.Done()
	for {
		msg, err := sock.Recv()
		if err != nil {
			if !c.closing.Load() {
				glog.Warningf("%s: subscriber transport error (ignored): %s", logTagClient, err)
			}
			return
		}
		if len(msg.Frames) == 0 {
			continue
		}
		rec, err := wire.DecodeVariableUpdate(msg.Frames[0])
		if err != nil {
			glog.Warningf("%s: dropping malformed notification: %s", logTagClient, err)
			continue
		}
		c.deliverNotification(rec)
	}
}

// deliverNotification applies the dedup rule: compare against
// last_delivered_value; if different, update it and invoke the
// callback; if equal, skip (and leave last_delivered_value as is —
// still "updated" in the sense that it was already current).
func (c *Client) deliverNotification(rec wire.VariableRecord) {
	c.callbacksMu.Lock()
	cb, hasCb := c.callbacks[rec.Name]
	last, hasLast := c.lastDelivered[rec.Name]
	duplicate := hasLast && last.Equal(rec.Value)
	if !duplicate {
		c.lastDelivered[rec.Name] = rec.Value
	}
	c.callbacksMu.Unlock()

	if hasCb && !duplicate {
		HandleError(func() {
			cb(rec.Value)
		})
	}
}

// controlLoop is the sole reader of sock. On the "STOP" wakeup it
// closes the data sockets, which is what unblocks dealerLoop/subLoop
// out of their own blocking Recv.
func (c *Client) controlLoop(sock zmq4.Socket) {
	defer c.controlWG.Done()
	for {
		msg, err := sock.Recv()
		if err != nil {
			return
		}
		if len(msg.Frames) > 0 && string(msg.Frames[0]) == wire.ControlStop {
			c.sockMu.RLock()
			dealer, sub := c.dealer, c.sub
			c.sockMu.RUnlock()
			if dealer != nil {
				dealer.Close()
			}
			if sub != nil {
				sub.Close()
			}
			return
		}
	}
}
