package proplink

import (
	"errors"
	"fmt"

	"github.com/proplink/proplink/wire"
)

// Fixed error-message formats. Clients and tests match on these
// strings, so they must not be reworded.

func errVariableNotFound(name string) string {
	return fmt.Sprintf("Variable not found: %s", name)
}

func errReadOnly(name string) string {
	return fmt.Sprintf("Variable %s is READ ONLY", name)
}

func errTypeMismatch(name string, want, got wire.Kind) string {
	return fmt.Sprintf("Type mismatch: variable %s is %s, got %s", name, want, got)
}

func errTriggerNotFound(name string) string {
	return fmt.Sprintf("Failed to execute trigger: %s", name)
}

const errCallbackException = "Exception occurred in server-side callback"
const errConnectionReset = "Connection reset during operation"
const errReconnectExhausted = "Failed to reconnect after maximum attempts"
const errNotConnected = "Not connected to server"

// ErrNotConnected is returned by client public calls made while the
// client is Closed.
var ErrNotConnected = errors.New(errNotConnected)

// ErrReconnectExhausted is delivered to outstanding requests when the
// reconnect controller gives up after its attempt cap.
var ErrReconnectExhausted = errors.New(errReconnectExhausted)

// ErrConnectionReset is delivered to requests that were outstanding at
// the moment a reconnect succeeded.
var ErrConnectionReset = errors.New(errConnectionReset)
