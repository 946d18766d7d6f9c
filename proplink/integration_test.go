package proplink

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/proplink/proplink/wire"
)

// newTestEndpoints returns a set of inproc endpoints unique to one test,
// avoiding collisions between tests that run the full Server/Client
// stack. The transport is opaque to the codec, so inproc keeps these
// tests fast and deterministic.
func newTestEndpoints(tag string) (router, pub, serverControl, clientControl string) {
	return "inproc://" + tag + "-router",
		"inproc://" + tag + "-pub",
		"inproc://" + tag + "-server-control",
		"inproc://" + tag + "-client-control"
}

func startTestServer(t *testing.T, tag string) (*Server, string, string) {
	router, pub, serverControl, _ := newTestEndpoints(tag)
	settings := DefaultServerSettings()
	settings.RouterEndpoint = router
	settings.PublisherEndpoint = pub
	settings.ControlEndpoint = serverControl

	server := NewServer(settings, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %s", err)
	}
	t.Cleanup(server.Stop)
	return server, router, pub
}

func startTestClient(t *testing.T, tag, router, pub string) *Client {
	_, _, _, clientControl := newTestEndpoints(tag)
	settings := DefaultClientSettings()
	settings.DealerEndpoint = router
	settings.SubscriberEndpoint = pub
	settings.ControlEndpoint = clientControl

	client := NewClient(settings)
	if err := client.Open(); err != nil {
		t.Fatalf("client open: %s", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestEndToEndSeededScenario1(t *testing.T) {
	server, router, pub := startTestServer(t, "scenario1")
	server.RegisterVariable("exposure", wire.FloatValue(100.0), false, nil)

	watcher := startTestClient(t, "scenario1-watch", router, pub)
	var mu sync.Mutex
	var seen []wire.Value
	watcher.RegisterCallback("exposure", func(v wire.Value) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	time.Sleep(50 * time.Millisecond) // let the SUB socket's subscription propagate

	client := startTestClient(t, "scenario1-client", router, pub)

	vars, err := client.GetAllVariables()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(vars), 1)
	f, _ := vars[0].Value.Float()
	assert.Equal(t, f, 100.0)

	err = client.SetVariable("exposure", wire.FloatValue(150.0), Sync, nil)
	assert.Equal(t, err, nil)

	rec, err := client.GetVariable("exposure")
	assert.Equal(t, err, nil)
	f, _ = rec.Value.Float()
	assert.Equal(t, f, 150.0)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for VariableUpdate notification")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(seen), 1)
	got, _ := seen[0].Float()
	assert.Equal(t, got, 150.0)
}

func TestEndToEndSeededScenario2ReadOnly(t *testing.T) {
	server, router, pub := startTestServer(t, "scenario2")
	server.RegisterVariable("connected", wire.BoolValue(true), true, nil)

	client := startTestClient(t, "scenario2-client", router, pub)

	err := client.SetVariable("connected", wire.BoolValue(false), Sync, nil)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, err.Error(), "Variable connected is READ ONLY")

	server.SetVariable("connected", wire.BoolValue(false))
	rec, err := client.GetVariable("connected")
	assert.Equal(t, err, nil)
	b, _ := rec.Value.Bool()
	assert.Equal(t, b, false)
}

func TestEndToEndSeededScenario3TypeMismatch(t *testing.T) {
	server, router, pub := startTestServer(t, "scenario3")
	server.RegisterVariable("fps", wire.IntValue(30), false, nil)

	client := startTestClient(t, "scenario3-client", router, pub)

	err := client.SetVariable("fps", wire.StringValue("high"), Sync, nil)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, err.Error(), "Type mismatch: variable fps is int64, got string")

	rec, _ := client.GetVariable("fps")
	v, _ := rec.Value.Int()
	assert.Equal(t, v, int64(30))
}

func TestEndToEndSeededScenario4Triggers(t *testing.T) {
	server, router, pub := startTestServer(t, "scenario4")
	var mu sync.Mutex
	count := 0
	server.RegisterTrigger("capture", func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	client := startTestClient(t, "scenario4-client", router, pub)

	for i := 0; i < 5; i++ {
		err := client.ExecuteTrigger("capture", Sync, nil)
		assert.Equal(t, err, nil)
	}
	mu.Lock()
	assert.Equal(t, count, 5)
	mu.Unlock()

	err := client.ExecuteTrigger("missing", Sync, nil)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, err.Error(), "Failed to execute trigger: missing")
}

func TestEndToEndAsyncSetVariable(t *testing.T) {
	server, router, pub := startTestServer(t, "async")
	server.RegisterVariable("fps", wire.IntValue(30), false, nil)

	client := startTestClient(t, "async-client", router, pub)

	done := make(chan struct{}, 1)
	var gotSuccess bool
	err := client.SetVariable("fps", wire.IntValue(60), Async, func(success bool, message string, cbErr error) {
		gotSuccess = success
		done <- struct{}{}
	})
	assert.Equal(t, err, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async callback never invoked")
	}
	assert.Equal(t, gotSuccess, true)
}

func TestEndToEndConcurrentClientsSlowCallbackDoesNotBlockOthers(t *testing.T) {
	server, router, pub := startTestServer(t, "isolation")
	server.RegisterVariable("slow", wire.IntValue(0), false, func(wire.Value) {
		time.Sleep(200 * time.Millisecond)
	})
	server.RegisterVariable("fast", wire.IntValue(0), false, nil)

	slowClient := startTestClient(t, "isolation-slow", router, pub)
	fastClient := startTestClient(t, "isolation-fast", router, pub)

	slowDone := make(chan struct{})
	go func() {
		slowClient.SetVariable("slow", wire.IntValue(1), Sync, nil)
		close(slowDone)
	}()
	time.Sleep(20 * time.Millisecond) // let the slow request start being handled

	start := time.Now()
	err := fastClient.SetVariable("fast", wire.IntValue(1), Sync, nil)
	elapsed := time.Since(start)
	assert.Equal(t, err, nil)
	if elapsed > 150*time.Millisecond {
		t.Fatalf("fast request took %s, appears head-of-line blocked behind the slow callback", elapsed)
	}

	<-slowDone
}

func TestEndToEndSeededScenario5ReconnectExhaustion(t *testing.T) {
	router, pub, serverControl, clientControl := newTestEndpoints("scenario5")

	serverSettings := DefaultServerSettings()
	serverSettings.RouterEndpoint = router
	serverSettings.PublisherEndpoint = pub
	serverSettings.ControlEndpoint = serverControl
	server := NewServer(serverSettings, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %s", err)
	}

	clientSettings := DefaultClientSettings()
	clientSettings.DealerEndpoint = router
	clientSettings.SubscriberEndpoint = pub
	clientSettings.ControlEndpoint = clientControl
	clientSettings.ReconnectBackoff = []time.Duration{
		time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond,
	}
	clientSettings.MaxReconnectAttempts = 5

	client := NewClient(clientSettings)
	if err := client.Open(); err != nil {
		t.Fatalf("client open: %s", err)
	}
	defer client.Close()

	// Register a pending entry to stand in for the outstanding
	// GetVariable/SetVariable the scenario issues right before the
	// server dies, so we can observe exactly how it is resolved.
	id := client.nextCommandID()
	done := make(chan struct{}, 1)
	var gotSuccess bool
	var gotMessage string
	client.registerPending(id, &pendingEntry{
		forType: wire.MsgSetVariable,
		callback: func(success bool, message string, err error) {
			gotSuccess = success
			gotMessage = message
			done <- struct{}{}
		},
	})

	server.Stop() // the router endpoint is unbound; every dial the reconnect loop attempts now fails

	// Break the dealer socket dealerLoop is blocked reading, the same way
	// a real transport failure would surface: Recv returns an error,
	// dealerLoop sees c.closing is false, and kicks off beginReconnect.
	client.sockMu.RLock()
	dealer := client.dealer
	client.sockMu.RUnlock()
	dealer.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect-exhausted callback never invoked")
	}
	assert.Equal(t, gotSuccess, false)
	assert.Equal(t, gotMessage, errReconnectExhausted)
	assert.Equal(t, client.IsOpen(), false)
}

func TestEndToEndSeededScenario6ConcurrencyStress(t *testing.T) {
	server, router, pub := startTestServer(t, "scenario6")
	server.RegisterVariable("counter", wire.IntValue(0), false, nil)

	watcher := startTestClient(t, "scenario6-watch", router, pub)
	var notifyMu sync.Mutex
	notifyCount := 0
	watcher.RegisterCallback("counter", func(wire.Value) {
		notifyMu.Lock()
		notifyCount++
		notifyMu.Unlock()
	})
	time.Sleep(50 * time.Millisecond) // let the SUB socket's subscription propagate

	const numClients = 3
	const perClient = 100

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errCount int
	for i := 0; i < numClients; i++ {
		client := startTestClient(t, fmt.Sprintf("scenario6-client%d", i), router, pub)
		wg.Add(1)
		go func(client *Client, base int) {
			defer wg.Done()
			for j := 0; j < perClient; j++ {
				// Every call across every client writes a globally unique
				// value (1..numClients*perClient), so none of the 300
				// writes can ever collide with the current stored value
				// and get suppressed as a no-op.
				v := int64(base*perClient + j + 1)
				if err := client.SetVariable("counter", wire.IntValue(v), Sync, nil); err != nil {
					errMu.Lock()
					errCount++
					errMu.Unlock()
				}
			}
		}(client, i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent SetVariable calls did not complete within 10s")
	}

	assert.Equal(t, errCount, 0)

	const wantNotifications = numClients * perClient
	deadline := time.After(2 * time.Second)
	for {
		notifyMu.Lock()
		n := notifyCount
		notifyMu.Unlock()
		if n >= wantNotifications {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("observed %d of %d notifications", n, wantNotifications)
		case <-time.After(10 * time.Millisecond):
		}
	}

	notifyMu.Lock()
	defer notifyMu.Unlock()
	assert.Equal(t, notifyCount, wantNotifications)
}
