package proplink

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/proplink/proplink/wire"
)

// publisher is the narrow interface the store uses to emit VariableUpdate
// notifications. It is satisfied by *notifier. Keeping it as an
// interface lets tests substitute a recording fake without pulling in a
// socket.
type publisher interface {
	Publish(rec wire.VariableRecord)
}

type noopPublisher struct{}

func (noopPublisher) Publish(wire.VariableRecord) {}

// variableEntry is a catalog entry: name -> {value, read_only, on_change}.
type variableEntry struct {
	value    wire.Value
	readOnly bool
	onChange func(wire.Value)
}

// triggerEntry is a catalog entry: name -> on_fire callback.
type triggerEntry struct {
	onFire func()
}

// store is the server's two independently-mutexed catalogs: a variables
// map guarded by varMu and a triggers map guarded by trigMu. Catalog
// entries are created by RegisterVariable/RegisterTrigger and never
// removed at runtime.
type store struct {
	varMu sync.Mutex
	vars  map[string]*variableEntry

	trigMu   sync.Mutex
	triggers map[string]*triggerEntry

	pubMu sync.Mutex
	pub   publisher
}

func newStore() *store {
	return &store{
		vars:     make(map[string]*variableEntry),
		triggers: make(map[string]*triggerEntry),
		pub:      noopPublisher{},
	}
}

// setPublisher wires the notifier used once the server is Running.
// Setting it back to a noopPublisher on Stop makes a stopped server's
// mutations simply not publish, with no separate running check needed.
func (s *store) setPublisher(pub publisher) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if pub == nil {
		pub = noopPublisher{}
	}
	s.pub = pub
}

func (s *store) publish(rec wire.VariableRecord) {
	s.pubMu.Lock()
	pub := s.pub
	s.pubMu.Unlock()
	pub.Publish(rec)
}

// registerVariable inserts or replaces a catalog entry, latching the
// kind of the value for the lifetime of the entry. The callback is
// invoked only for client-originated changes, never for server writes.
func (s *store) registerVariable(name string, value wire.Value, readOnly bool, onChange func(wire.Value)) {
	s.varMu.Lock()
	defer s.varMu.Unlock()
	s.vars[name] = &variableEntry{value: value, readOnly: readOnly, onChange: onChange}
}

// registerTrigger inserts or replaces a trigger catalog entry.
func (s *store) registerTrigger(name string, onFire func()) {
	s.trigMu.Lock()
	defer s.trigMu.Unlock()
	s.triggers[name] = &triggerEntry{onFire: onFire}
}

// getVariables returns a snapshot copy of name -> record.
func (s *store) getVariables() []wire.VariableRecord {
	s.varMu.Lock()
	defer s.varMu.Unlock()
	names := maps.Keys(s.vars)
	out := make([]wire.VariableRecord, 0, len(names))
	for _, name := range names {
		e := s.vars[name]
		out = append(out, wire.VariableRecord{Name: name, Value: e.value, ReadOnly: e.readOnly})
	}
	return out
}

// getVariable returns the record for name, or ok=false if absent.
func (s *store) getVariable(name string) (wire.VariableRecord, bool) {
	s.varMu.Lock()
	defer s.varMu.Unlock()
	e, ok := s.vars[name]
	if !ok {
		return wire.VariableRecord{}, false
	}
	return wire.VariableRecord{Name: name, Value: e.value, ReadOnly: e.readOnly}, true
}

// getTriggerNames returns a snapshot copy of registered trigger names.
func (s *store) getTriggerNames() []string {
	s.trigMu.Lock()
	defer s.trigMu.Unlock()
	return maps.Keys(s.triggers)
}

// clientSetOutcome is the result of a client-originated SetVariable,
// computed by a fixed sequence of checks: not-found, read-only,
// type-mismatch, no-op, then update.
type clientSetOutcome struct {
	notFound     bool
	readOnly     bool
	typeMismatch bool
	wantKind     wire.Kind
	gotKind      wire.Kind
	changed      bool
	record       wire.VariableRecord
	onChange     func(wire.Value)
}

// setVariableFromClient applies the ordered checks: not-found,
// read-only, type-mismatch, no-op, then update. On an accepted change
// the notification is published synchronously while still holding the
// lock, which gives per-variable notifications a well-defined order:
// every call to publish for this store passes through this same mutex.
// The caller is responsible for invoking the returned onChange callback
// (if any) outside the lock via HandleError.
func (s *store) setVariableFromClient(name string, value wire.Value) clientSetOutcome {
	s.varMu.Lock()
	defer s.varMu.Unlock()

	e, ok := s.vars[name]
	if !ok {
		return clientSetOutcome{notFound: true}
	}
	if e.readOnly {
		return clientSetOutcome{readOnly: true}
	}
	if e.value.Kind() != value.Kind() {
		return clientSetOutcome{typeMismatch: true, wantKind: e.value.Kind(), gotKind: value.Kind()}
	}
	if e.value.Equal(value) {
		return clientSetOutcome{
			changed: false,
			record:  wire.VariableRecord{Name: name, Value: e.value, ReadOnly: e.readOnly},
		}
	}

	e.value = value
	rec := wire.VariableRecord{Name: name, Value: e.value, ReadOnly: e.readOnly}
	s.publish(rec)

	return clientSetOutcome{changed: true, record: rec, onChange: e.onChange}
}

// serverSetOutcome is the result of a server-originated SetVariable:
// unknown names and no-op writes are reported so the caller can
// log/skip, never treated as errors.
type serverSetOutcome struct {
	notFound bool
	changed  bool
	record   wire.VariableRecord
}

// setVariableFromServer applies a server-side write: if the name is
// unknown it is reported so the caller can log and return; if value
// equals the stored value there is no side effect (no-op suppression);
// a value whose kind differs from the stored one is not written and is
// reported as unchanged, keeping the registered kind;
// read-only has no effect here — the server may always write. The
// on-change callback is never invoked for a server-originated write.
func (s *store) setVariableFromServer(name string, value wire.Value) serverSetOutcome {
	s.varMu.Lock()
	defer s.varMu.Unlock()

	e, ok := s.vars[name]
	if !ok {
		return serverSetOutcome{notFound: true}
	}
	if e.value.Kind() != value.Kind() || e.value.Equal(value) {
		return serverSetOutcome{changed: false, record: wire.VariableRecord{Name: name, Value: e.value, ReadOnly: e.readOnly}}
	}

	e.value = value
	rec := wire.VariableRecord{Name: name, Value: e.value, ReadOnly: e.readOnly}
	s.publish(rec)

	return serverSetOutcome{changed: true, record: rec}
}

// executeTrigger looks up and captures the callback under the trigger
// lock, then the caller invokes it outside the lock. found=false means
// the trigger name is unregistered.
func (s *store) executeTrigger(name string) (onFire func(), found bool) {
	s.trigMu.Lock()
	defer s.trigMu.Unlock()
	e, ok := s.triggers[name]
	if !ok {
		return nil, false
	}
	return e.onFire, true
}
