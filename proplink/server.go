package proplink

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/glog"

	"github.com/proplink/proplink/wire"
)

// Server owns the authoritative variable/trigger catalog and serves
// client commands over a ROUTER socket (or two, to segregate an
// external endpoint), fanning out successful changes over a PUB socket.
// Its lifecycle runs Constructed -> (RegisterVariable/Trigger)* ->
// Start -> Running -> Stop -> Stopped.
type Server struct {
	settings *ServerSettings
	store    *store
	notifier *notifier
	metrics  *Metrics

	lifecycleMu sync.Mutex
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc

	routers   []*routerBinding
	control   zmq4.Socket
	workCh    chan workItem
	routerWG  sync.WaitGroup
	workerWG  sync.WaitGroup
	controlWG sync.WaitGroup
}

// NewServer constructs a Server. metrics may be nil to disable
// Prometheus observation.
func NewServer(settings *ServerSettings, metrics *Metrics) *Server {
	if settings == nil {
		settings = DefaultServerSettings()
	}
	return &Server{
		settings: settings,
		store:    newStore(),
		notifier: newNotifier(metrics),
		metrics:  metrics,
	}
}

// RegisterVariable inserts or replaces a variable in the catalog. May
// be called before or after Start. callback, if non-nil, is invoked
// only when a client (not the server) changes the variable.
func (s *Server) RegisterVariable(name string, value wire.Value, readOnly bool, onChange func(wire.Value)) {
	s.store.registerVariable(name, value, readOnly, onChange)
}

// RegisterTrigger inserts or replaces a trigger in the catalog.
func (s *Server) RegisterTrigger(name string, onFire func()) {
	s.store.registerTrigger(name, onFire)
}

// GetVariables returns a snapshot of every registered variable.
func (s *Server) GetVariables() []wire.VariableRecord {
	return s.store.getVariables()
}

// GetVariable returns the current value of name, or ok=false if it is
// not registered.
func (s *Server) GetVariable(name string) (wire.VariableRecord, bool) {
	return s.store.getVariable(name)
}

// SetVariable performs a server-side write. Read-only variables may be
// written this way; the on-change callback is never invoked for a
// server-originated write. A no-op write (new value equal to current)
// has no side effect. Writing an unknown name is logged and ignored; a
// write whose kind differs from the variable's kind is ignored.
func (s *Server) SetVariable(name string, value wire.Value) {
	outcome := s.store.setVariableFromServer(name, value)
	if outcome.notFound {
		glog.Infof("%s: SetVariable on unknown variable %q ignored", logTagServer, name)
	}
}

// Start binds the command, notification, and control sockets and
// launches the worker pool. Idempotent: calling Start while already
// Running returns nil without rebinding.
func (s *Server) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	control := zmq4.NewPair(s.ctx)
	if err := control.Listen(s.settings.ControlEndpoint); err != nil {
		s.cancel()
		return fmt.Errorf("proplink: bind control endpoint %s: %w", s.settings.ControlEndpoint, err)
	}
	s.control = control

	router, err := s.bindRouter(s.settings.RouterEndpoint)
	if err != nil {
		s.cancel()
		return err
	}
	s.routers = []*routerBinding{router}

	if s.settings.ExternalRouterEndpoint != "" {
		extRouter, err := s.bindRouter(s.settings.ExternalRouterEndpoint)
		if err != nil {
			s.cancel()
			return err
		}
		s.routers = append(s.routers, extRouter)
	}

	pub := zmq4.NewPub(s.ctx)
	if err := pub.Listen(s.settings.PublisherEndpoint); err != nil {
		s.cancel()
		return fmt.Errorf("proplink: bind publisher endpoint %s: %w", s.settings.PublisherEndpoint, err)
	}
	s.notifier.addSocket(pub)

	if s.settings.ExternalPublisherEndpoint != "" {
		extPub := zmq4.NewPub(s.ctx)
		if err := extPub.Listen(s.settings.ExternalPublisherEndpoint); err != nil {
			s.cancel()
			return fmt.Errorf("proplink: bind external publisher endpoint %s: %w", s.settings.ExternalPublisherEndpoint, err)
		}
		s.notifier.addSocket(extPub)
	}

	s.store.setPublisher(s.notifier)

	workers := s.settings.WorkerPoolSize
	if workers <= 0 {
		workers = 1
	}
	s.workCh = make(chan workItem, 256)
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}

	s.routerWG.Add(len(s.routers))
	for _, r := range s.routers {
		go s.routerReadLoop(r)
	}
	go func() {
		s.routerWG.Wait()
		close(s.workCh)
	}()

	s.controlWG.Add(1)
	go s.serverControlLoop()

	s.running = true
	glog.Infof("%s: started (router=%s pub=%s)", logTagServer, s.settings.RouterEndpoint, s.settings.PublisherEndpoint)
	return nil
}

func (s *Server) bindRouter(endpoint string) (*routerBinding, error) {
	sock := zmq4.NewRouter(s.ctx)
	if err := sock.Listen(endpoint); err != nil {
		return nil, fmt.Errorf("proplink: bind router endpoint %s: %w", endpoint, err)
	}
	return &routerBinding{sock: sock}, nil
}

// serverControlLoop waits for the STOP frame sent by Stop, then closes
// every router socket — that's what unblocks the router read goroutines
// still in Recv; once they exit, workCh is closed and the workers' range
// ends. The publisher sockets are closed later, by Stop.
func (s *Server) serverControlLoop() {
	defer s.controlWG.Done()
	for {
		msg, err := s.control.Recv()
		if err != nil {
			return
		}
		if len(msg.Frames) > 0 && string(msg.Frames[0]) == wire.ControlStop {
			for _, r := range s.routers {
				r.sock.Close()
			}
			return
		}
	}
}

// Stop drains in-flight work, closes every socket, and returns once the
// worker pool and dispatch goroutines have exited. Idempotent.
func (s *Server) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if !s.running {
		return
	}

	s.sendControlStop()

	s.controlWG.Wait()
	s.workerWG.Wait()

	s.notifier.close()
	s.control.Close()
	s.cancel()
	s.store.setPublisher(nil)

	s.running = false
	glog.Infof("%s: stopped", logTagServer)
}

func (s *Server) sendControlStop() {
	client := zmq4.NewPair(s.ctx)
	if err := client.Dial(s.settings.ControlEndpoint); err != nil {
		glog.Warningf("%s: failed to dial control endpoint on stop: %s", logTagServer, err)
		return
	}
	defer client.Close()
	if err := client.Send(zmq4.NewMsg([]byte(wire.ControlStop))); err != nil {
		glog.Warningf("%s: failed to send control stop: %s", logTagServer, err)
	}
}
