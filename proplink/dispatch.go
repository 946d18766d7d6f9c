package proplink

import (
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/glog"

	"github.com/proplink/proplink/wire"
)

// routerBinding pairs a bound ROUTER socket with the mutex that
// serializes sends on it — router sockets require serialized sends,
// and the worker pool computes replies concurrently.
type routerBinding struct {
	sock   zmq4.Socket
	sendMu sync.Mutex
}

type workItem struct {
	binding  *routerBinding
	identity []byte
	body     []byte
}

// routerReadLoop reads {identity, empty, body} frames off b's socket and
// enqueues one workItem per request onto workCh. It returns when the
// socket is closed by Stop, which is how this dispatch-loop goroutine is
// woken: running one goroutine per ROUTER endpoint and unblocking Recv
// by closing the socket keeps each endpoint's read loop simple and
// independent (see DESIGN.md).
func (s *Server) routerReadLoop(b *routerBinding) {
	defer s.routerWG.Done()
	for {
		msg, err := b.sock.Recv()
		if err != nil {
			return
		}
		if len(msg.Frames) < 3 {
			glog.Warningf("%s: dropping malformed router frame (%d parts)", logTagServer, len(msg.Frames))
			continue
		}
		identity := msg.Frames[0]
		delimiter := msg.Frames[1]
		body := msg.Frames[2]
		if len(delimiter) != 0 {
			glog.Warningf("%s: dropping router frame with non-empty delimiter from %x", logTagServer, identity)
			continue
		}
		select {
		case s.workCh <- workItem{binding: b, identity: identity, body: body}:
		case <-s.ctx.Done():
			return
		}
	}
}

// worker drains workCh, computing and sending one reply per item. Many
// workers run concurrently; a slow on-change callback on one item never
// blocks the others.
func (s *Server) worker() {
	defer s.workerWG.Done()
	for item := range s.workCh {
		Trace("proplink.dispatch.handle", func() {
			s.handle(item)
		})
	}
}

func (s *Server) handle(item workItem) {
	cmd, err := wire.DecodeCommand(item.body)
	if err != nil {
		s.metrics.observeError("parse")
		s.reply(item, wire.EncodeErrorResponse(cmd.ID, err.Error()))
		return
	}
	s.metrics.observeRequest(cmd.Type.String())

	var body []byte
	switch cmd.Type {
	case wire.MsgGetVariable:
		body = s.handleGetVariable(cmd)
	case wire.MsgSetVariable:
		body = s.handleSetVariable(cmd)
	case wire.MsgGetAllVariables:
		body = s.handleGetAllVariables(cmd)
	case wire.MsgGetAllTriggers:
		body = s.handleGetAllTriggers(cmd)
	case wire.MsgExecuteTrigger:
		body = s.handleExecuteTrigger(cmd)
	default:
		body = wire.EncodeErrorResponse(cmd.ID, "unsupported command")
	}
	s.reply(item, body)
}

func (s *Server) reply(item workItem, body []byte) {
	msg := zmq4.NewMsgFrom(item.identity, []byte{}, body)
	item.binding.sendMu.Lock()
	defer item.binding.sendMu.Unlock()
	if err := item.binding.sock.Send(msg); err != nil {
		glog.Warningf("%s: failed to send reply to %x: %s", logTagServer, item.identity, err)
	}
}

// handleGetVariable looks up a single variable by name.
func (s *Server) handleGetVariable(cmd wire.Command) []byte {
	rec, ok := s.store.getVariable(cmd.Name)
	if !ok {
		s.metrics.observeError("not_found")
		return wire.EncodeErrorResponse(cmd.ID, errVariableNotFound(cmd.Name))
	}
	body, err := wire.EncodeSuccessResponse(wire.MsgGetVariable, cmd.ID, wire.Response{Variable: rec})
	if err != nil {
		return wire.EncodeErrorResponse(cmd.ID, err.Error())
	}
	return body
}

// handleGetAllVariables returns a snapshot of the whole variable catalog.
func (s *Server) handleGetAllVariables(cmd wire.Command) []byte {
	vars := s.store.getVariables()
	body, err := wire.EncodeSuccessResponse(wire.MsgGetAllVariables, cmd.ID, wire.Response{Variables: vars})
	if err != nil {
		return wire.EncodeErrorResponse(cmd.ID, err.Error())
	}
	return body
}

// handleGetAllTriggers returns the names of every registered trigger.
func (s *Server) handleGetAllTriggers(cmd wire.Command) []byte {
	names := s.store.getTriggerNames()
	body, err := wire.EncodeSuccessResponse(wire.MsgGetAllTriggers, cmd.ID, wire.Response{TriggerNames: names})
	if err != nil {
		return wire.EncodeErrorResponse(cmd.ID, err.Error())
	}
	return body
}

// handleSetVariable runs the ordered checks: not-found, read-only,
// type-mismatch, no-op, update. The on-change callback runs outside the
// store's lock via HandleError, so a panic in user code becomes an
// Error response instead of crashing the worker.
func (s *Server) handleSetVariable(cmd wire.Command) []byte {
	outcome := s.store.setVariableFromClient(cmd.Name, cmd.Value)

	switch {
	case outcome.notFound:
		s.metrics.observeError("not_found")
		return wire.EncodeErrorResponse(cmd.ID, errVariableNotFound(cmd.Name))
	case outcome.readOnly:
		s.metrics.observeError("read_only")
		return wire.EncodeErrorResponse(cmd.ID, errReadOnly(cmd.Name))
	case outcome.typeMismatch:
		s.metrics.observeError("type_mismatch")
		return wire.EncodeErrorResponse(cmd.ID, errTypeMismatch(cmd.Name, outcome.wantKind, outcome.gotKind))
	case !outcome.changed:
		// no-op: setting a variable to its current value
		body, _ := wire.EncodeSuccessResponse(wire.MsgSetVariable, cmd.ID, wire.Response{})
		return body
	}

	if outcome.onChange != nil {
		callbackFailed := false
		HandleError(func() {
			outcome.onChange(outcome.record.Value)
		}, func(err error) {
			callbackFailed = true
		})
		if callbackFailed {
			s.metrics.observeError("callback_exception")
			return wire.EncodeErrorResponse(cmd.ID, errCallbackException)
		}
	}

	body, _ := wire.EncodeSuccessResponse(wire.MsgSetVariable, cmd.ID, wire.Response{})
	return body
}

// handleExecuteTrigger invokes the on_fire callback registered for name.
func (s *Server) handleExecuteTrigger(cmd wire.Command) []byte {
	onFire, found := s.store.executeTrigger(cmd.Name)
	if !found {
		s.metrics.observeError("trigger_not_found")
		return wire.EncodeErrorResponse(cmd.ID, errTriggerNotFound(cmd.Name))
	}

	callbackFailed := false
	HandleError(func() {
		onFire()
	}, func(err error) {
		callbackFailed = true
	})
	if callbackFailed {
		s.metrics.observeError("callback_exception")
		return wire.EncodeErrorResponse(cmd.ID, errCallbackException)
	}

	body, _ := wire.EncodeSuccessResponse(wire.MsgExecuteTrigger, cmd.ID, wire.Response{})
	return body
}
