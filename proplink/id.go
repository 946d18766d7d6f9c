package proplink

import (
	"github.com/oklog/ulid/v2"
)

// SessionID tags one connect/reconnect epoch of a Client for logging and
// diagnostics. It never appears on the wire — the wire command_id is the
// fixed-width uint32 the wire package defines. SessionID is
// time-ordered (ULIDs sort by creation time), which makes log lines
// from the same reconnect cycle sort naturally.
type SessionID ulid.ULID

func newSessionID() SessionID {
	return SessionID(ulid.Make())
}

func (id SessionID) String() string {
	return ulid.ULID(id).String()
}
