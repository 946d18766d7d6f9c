package proplink

import (
	"runtime"
	"time"
)

// ServerSettings configures a Server. Construct with
// DefaultServerSettings() and override individual fields.
type ServerSettings struct {
	// RouterEndpoint is the primary (or only) command endpoint. Clients
	// connect their dealer socket here.
	RouterEndpoint string
	// ExternalRouterEndpoint, if non-empty, is a second command endpoint
	// segregating untrusted peers from RouterEndpoint, served by the same
	// worker pool and state store.
	ExternalRouterEndpoint string
	// PublisherEndpoint is where the notification fan-out socket binds.
	PublisherEndpoint string
	// ExternalPublisherEndpoint, if non-empty, mirrors notifications to a
	// second publisher bound alongside ExternalRouterEndpoint.
	ExternalPublisherEndpoint string
	// ControlEndpoint is the inproc pair endpoint used to wake the
	// dispatch loop out of its blocking poll on Stop.
	ControlEndpoint string

	// WorkerPoolSize is the number of workers computing replies
	// concurrently. Defaults to runtime.NumCPU(), mirroring the
	// original's std::thread::hardware_concurrency() default.
	WorkerPoolSize int

	// SocketTimeout is stored with the settings but is not applied to any
	// socket by this package: router sends and receives block
	// indefinitely whatever its value.
	SocketTimeout time.Duration
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		RouterEndpoint:    "tcp://127.0.0.1:5555",
		PublisherEndpoint: "tcp://127.0.0.1:5556",
		ControlEndpoint:   "inproc://proplink-server-control",
		WorkerPoolSize:    runtime.NumCPU(),
		SocketTimeout:     0,
	}
}

// ClientSettings configures a Client. Construct with
// DefaultClientSettings() and override individual fields.
type ClientSettings struct {
	// DealerEndpoint is the server's command endpoint to connect to.
	DealerEndpoint string
	// SubscriberEndpoint is the server's notification endpoint to
	// connect to.
	SubscriberEndpoint string
	// ControlEndpoint is the inproc pair endpoint used to wake the I/O
	// loop out of its blocking poll on Close.
	ControlEndpoint string

	// SocketTimeout is stored with the settings but is not applied to any
	// socket by this package: dealer sends and receives block
	// indefinitely whatever its value, so a stalled send or receive does
	// not by itself start a reconnect.
	SocketTimeout time.Duration

	// ReconnectBackoff is the delay schedule the reconnect controller
	// steps through; the last entry is reused (capped) once exhausted
	// within the attempt budget.
	ReconnectBackoff []time.Duration
	// MaxReconnectAttempts caps the number of reconnect attempts before
	// the controller gives up and fails outstanding requests.
	MaxReconnectAttempts int
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		DealerEndpoint:     "tcp://127.0.0.1:5555",
		SubscriberEndpoint: "tcp://127.0.0.1:5556",
		ControlEndpoint:    "inproc://proplink-client-control",
		SocketTimeout:      0,
		ReconnectBackoff: []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1600 * time.Millisecond,
		},
		MaxReconnectAttempts: 5,
	}
}

// backoffFor returns the delay for the (0-indexed) attempt, capped at
// 5000ms and at the last schedule entry.
func (s *ClientSettings) backoffFor(attempt int) time.Duration {
	const cap_ = 5000 * time.Millisecond
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(s.ReconnectBackoff) {
		attempt = len(s.ReconnectBackoff) - 1
	}
	d := s.ReconnectBackoff[attempt]
	if cap_ < d {
		return cap_
	}
	return d
}
