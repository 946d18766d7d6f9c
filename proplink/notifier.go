package proplink

import (
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/glog"

	"github.com/proplink/proplink/wire"
)

// notifier owns the server's publication socket(s). Sends are
// best-effort: a PUB socket drops frames to subscribers that can't keep
// up rather than blocking the caller. Occasional notification loss is
// an accepted cost of that design.
type notifier struct {
	mu       sync.Mutex
	sockets  []zmq4.Socket
	metrics  *Metrics
}

func newNotifier(metrics *Metrics) *notifier {
	return &notifier{metrics: metrics}
}

func (n *notifier) addSocket(sock zmq4.Socket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sockets = append(n.sockets, sock)
}

// Publish encodes rec as a VariableUpdate frame and sends it on every
// bound publisher socket. It never returns an error to the caller: a
// failed publish is logged and dropped, consistent with best-effort
// delivery.
func (n *notifier) Publish(rec wire.VariableRecord) {
	body := wire.EncodeVariableUpdate(rec)
	msg := zmq4.NewMsg(body)

	n.mu.Lock()
	sockets := make([]zmq4.Socket, len(n.sockets))
	copy(sockets, n.sockets)
	n.mu.Unlock()

	for _, sock := range sockets {
		if err := sock.Send(msg); err != nil {
			glog.Warningf("%s: dropped VariableUpdate for %q: %s", logTagServer, rec.Name, err)
			continue
		}
	}
	n.metrics.observeNotification()
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sock := range n.sockets {
		sock.Close()
	}
	n.sockets = nil
}
