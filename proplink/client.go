package proplink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/glog"

	"github.com/proplink/proplink/wire"
)

// Mode selects how SetVariable/ExecuteTrigger deliver their outcome.
type Mode int

const (
	// Sync blocks the caller until the reply arrives (or the request
	// fails), then returns. If a callback was also given, it is invoked
	// before the call returns.
	Sync Mode = iota
	// Async returns immediately; the callback, if given, is invoked later
	// from the I/O loop when the reply arrives.
	Async
)

// getResult is the outcome delivered to a blocking GetVariable/
// GetAllVariables/GetAllTriggers call.
type getResult struct {
	resp wire.Response
	err  error
}

// pendingEntry correlates one in-flight command_id to its waiter.
// At most one of getCh/callback is set, depending on which of the two
// request families created it; an Async request made without a
// callback registers neither.
type pendingEntry struct {
	forType  wire.MsgType
	getCh    chan getResult
	callback ReplyCallback
}

// Client is a PropLink client: it owns a dealer (command), subscriber
// (notification), and pair (control) socket and a background I/O loop
// (client_io.go) that owns all three. Public methods may be called
// concurrently from any goroutine; they never touch a socket directly,
// only through sendCommand, which is itself safe for concurrent use via
// a dedicated send mutex.
type Client struct {
	settings *ClientSettings

	ctx    context.Context
	cancel context.CancelFunc

	lifecycleMu sync.Mutex
	open        bool
	closing     atomic.Bool

	sockMu  sync.RWMutex
	dealer  zmq4.Socket
	sub     zmq4.Socket
	control zmq4.Socket
	sessionID SessionID

	dealerSendMu sync.Mutex
	commandID    uint32

	pendingMu sync.Mutex
	pending   map[uint32]*pendingEntry

	callbacksMu   sync.Mutex
	callbacks     map[string]func(wire.Value)
	lastDelivered map[string]wire.Value

	dealerWG  sync.WaitGroup
	subWG     sync.WaitGroup
	controlWG sync.WaitGroup

	reconnectMu  sync.Mutex
	reconnecting bool
	operating    bool
	stateChanged *monitor
}

// NewClient constructs a Client. Call Open to connect.
func NewClient(settings *ClientSettings) *Client {
	if settings == nil {
		settings = DefaultClientSettings()
	}
	return &Client{
		settings:      settings,
		pending:       make(map[uint32]*pendingEntry),
		callbacks:     make(map[string]func(wire.Value)),
		lastDelivered: make(map[string]wire.Value),
		stateChanged:  newMonitor(),
	}
}

// Open connects the dealer and subscriber sockets and starts the
// background I/O loop. Idempotent: calling Open while already open
// returns nil without reconnecting.
func (c *Client) Open() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.open {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.closing.Store(false)

	control := zmq4.NewPair(c.ctx)
	if err := control.Listen(c.settings.ControlEndpoint); err != nil {
		c.cancel()
		return fmt.Errorf("proplink: bind client control endpoint %s: %w", c.settings.ControlEndpoint, err)
	}

	dealer := zmq4.NewDealer(c.ctx)
	if err := dealer.Dial(c.settings.DealerEndpoint); err != nil {
		control.Close()
		c.cancel()
		return fmt.Errorf("proplink: dial dealer endpoint %s: %w", c.settings.DealerEndpoint, err)
	}

	sub := zmq4.NewSub(c.ctx)
	if err := sub.Dial(c.settings.SubscriberEndpoint); err != nil {
		dealer.Close()
		control.Close()
		c.cancel()
		return fmt.Errorf("proplink: dial subscriber endpoint %s: %w", c.settings.SubscriberEndpoint, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		glog.Warningf("%s: subscribe-all failed on subscriber socket: %s", logTagClient, err)
	}

	c.sockMu.Lock()
	c.control, c.dealer, c.sub = control, dealer, sub
	c.sockMu.Unlock()

	c.sessionID = newSessionID()

	c.dealerWG.Add(1)
	go c.dealerLoop(dealer)
	c.subWG.Add(1)
	go c.subLoop(sub)
	c.controlWG.Add(1)
	go c.controlLoop(control)

	c.reconnectMu.Lock()
	c.operating = true
	c.reconnectMu.Unlock()
	c.stateChanged.broadcast()

	c.open = true
	glog.Infof("%s: opened session %s (dealer=%s sub=%s)", logTagClient, c.sessionID, c.settings.DealerEndpoint, c.settings.SubscriberEndpoint)
	return nil
}

// Connect is an alias for Open.
func (c *Client) Connect() error { return c.Open() }

// Close sends the control-channel wakeup, waits for the I/O loop to
// exit, fails every outstanding request with ErrNotConnected, and
// releases sockets. Idempotent.
func (c *Client) Close() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if !c.open {
		return
	}
	c.closing.Store(true)

	c.sendControlStop()
	c.controlWG.Wait()
	c.dealerWG.Wait()
	c.subWG.Wait()

	c.sockMu.Lock()
	if c.dealer != nil {
		c.dealer.Close()
	}
	if c.sub != nil {
		c.sub.Close()
	}
	if c.control != nil {
		c.control.Close()
	}
	c.sockMu.Unlock()

	c.cancel()
	c.failOutstanding(ErrNotConnected)

	c.reconnectMu.Lock()
	c.operating = false
	c.reconnectMu.Unlock()
	c.stateChanged.broadcast()

	c.open = false
	glog.Infof("%s: closed session %s", logTagClient, c.sessionID)
}

// Disconnect is an alias for Close.
func (c *Client) Disconnect() { c.Close() }

func (c *Client) sendControlStop() {
	c.sockMu.RLock()
	control := c.control
	c.sockMu.RUnlock()
	if control == nil {
		return
	}
	dialer := zmq4.NewPair(c.ctx)
	if err := dialer.Dial(c.settings.ControlEndpoint); err != nil {
		glog.Warningf("%s: failed to dial own control endpoint on close: %s", logTagClient, err)
		control.Close()
		return
	}
	defer dialer.Close()
	if err := dialer.Send(zmq4.NewMsg([]byte(wire.ControlStop))); err != nil {
		glog.Warningf("%s: failed to send control stop: %s", logTagClient, err)
	}
}

// IsOpen reports whether the client believes it is connected or
// reconnecting, as opposed to Closed or having permanently given up
// after exhausting its reconnect attempts.
func (c *Client) IsOpen() bool {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.open
}

func (c *Client) isOperating() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.operating
}

// WaitConnected blocks until the client is operating (connected or
// freshly reconnected), the client is permanently Closed, or ctx is
// done, whichever comes first. It is meant for callers — demo
// binaries, health checks — that want to pause until a connection is
// usable rather than racing GetVariable/SetVariable against an
// in-progress reconnect.
func (c *Client) WaitConnected(ctx context.Context) error {
	for {
		changed := c.stateChanged.notify()
		if c.isOperating() {
			return nil
		}
		c.lifecycleMu.Lock()
		open := c.open
		c.lifecycleMu.Unlock()
		if !open {
			return ErrNotConnected
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) nextCommandID() uint32 {
	return atomic.AddUint32(&c.commandID, 1)
}

func (c *Client) registerPending(id uint32, entry *pendingEntry) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending[id] = entry
}

func (c *Client) takePending(id uint32) *pendingEntry {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	e, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return e
}

func (c *Client) removePending(id uint32) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.pending, id)
}

// sendCommand encodes and sends cmd as a two-frame {empty, body} dealer
// message, serialized on dealerSendMu so concurrent public calls never
// interleave frames of two different commands.
func (c *Client) sendCommand(cmd wire.Command) error {
	body, err := wire.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	msg := zmq4.NewMsgFrom([]byte{}, body)

	c.sockMu.RLock()
	dealer := c.dealer
	c.sockMu.RUnlock()
	if dealer == nil {
		return ErrNotConnected
	}

	c.dealerSendMu.Lock()
	defer c.dealerSendMu.Unlock()
	return dealer.Send(msg)
}

// GetVariable returns the current value of name.
func (c *Client) GetVariable(name string) (wire.VariableRecord, error) {
	resp, err := c.doGet(wire.MsgGetVariable, name)
	if err != nil {
		return wire.VariableRecord{}, err
	}
	return resp.Variable, nil
}

// GetAllVariables returns a snapshot of every variable in the server's
// catalog.
func (c *Client) GetAllVariables() ([]wire.VariableRecord, error) {
	resp, err := c.doGet(wire.MsgGetAllVariables, "")
	if err != nil {
		return nil, err
	}
	return resp.Variables, nil
}

// GetAllTriggers returns a snapshot of every trigger name in the
// server's catalog.
func (c *Client) GetAllTriggers() ([]string, error) {
	resp, err := c.doGet(wire.MsgGetAllTriggers, "")
	if err != nil {
		return nil, err
	}
	return resp.TriggerNames, nil
}

func (c *Client) doGet(msgType wire.MsgType, name string) (wire.Response, error) {
	if !c.isOperating() {
		return wire.Response{}, ErrNotConnected
	}
	id := c.nextCommandID()
	ch := make(chan getResult, 1)
	c.registerPending(id, &pendingEntry{forType: msgType, getCh: ch})

	if err := c.sendCommand(wire.Command{Type: msgType, ID: id, Name: name}); err != nil {
		c.removePending(id)
		return wire.Response{}, err
	}

	result := <-ch
	if result.err != nil {
		return wire.Response{}, result.err
	}
	if result.resp.IsError {
		return wire.Response{}, errors.New(result.resp.Message)
	}
	return result.resp, nil
}

// SetVariable requests a variable write. In Sync
// mode it blocks until the reply (or a transport/reconnect failure) and
// also returns that outcome as an error; callback, if non-nil, is
// additionally invoked with the same outcome before the call returns.
// In Async mode it returns immediately once the request is sent;
// callback, if non-nil, is invoked later from the I/O loop.
func (c *Client) SetVariable(name string, value wire.Value, mode Mode, callback ReplyCallback) error {
	return c.doMutate(wire.MsgSetVariable, name, value, mode, callback)
}

// ExecuteTrigger requests a trigger invocation by name. See SetVariable
// for the Sync/Async contract.
func (c *Client) ExecuteTrigger(name string, mode Mode, callback ReplyCallback) error {
	return c.doMutate(wire.MsgExecuteTrigger, name, wire.Value{}, mode, callback)
}

func (c *Client) doMutate(msgType wire.MsgType, name string, value wire.Value, mode Mode, callback ReplyCallback) error {
	if !c.isOperating() {
		if callback != nil {
			HandleError(func() { callback(false, errNotConnected, ErrNotConnected) })
		}
		return ErrNotConnected
	}

	id := c.nextCommandID()

	if mode == Async {
		c.registerPending(id, &pendingEntry{forType: msgType, callback: callback})
		if err := c.sendCommand(wire.Command{Type: msgType, ID: id, Name: name, Value: value}); err != nil {
			c.removePending(id)
			if callback != nil {
				HandleError(func() { callback(false, err.Error(), err) })
			}
			return err
		}
		return nil
	}

	blockingCb, resultCh := newBlockingReply()
	composite := func(success bool, message string, err error) {
		defer blockingCb(success, message, err)
		if callback != nil {
			callback(success, message, err)
		}
	}
	c.registerPending(id, &pendingEntry{forType: msgType, callback: composite})

	if err := c.sendCommand(wire.Command{Type: msgType, ID: id, Name: name, Value: value}); err != nil {
		c.removePending(id)
		if callback != nil {
			HandleError(func() { callback(false, err.Error(), err) })
		}
		return err
	}

	result := <-resultCh
	if result.err != nil {
		return result.err
	}
	if !result.success {
		return errors.New(result.message)
	}
	return nil
}

// RegisterCallback installs (or replaces) the on-change callback
// invoked when a VariableUpdate for name arrives on the notification
// channel.
func (c *Client) RegisterCallback(name string, onChange func(wire.Value)) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks[name] = onChange
}
