package events

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/google/uuid"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func connectTestBus(t *testing.T, trackReads bool) *Bus {
	t.Helper()
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return New(nc, trackReads, zap.NewNop())
}

func TestBus_Emit_DeliversToSubscriber(t *testing.T) {
	bus := connectTestBus(t, false)
	userID := uuid.New()

	received := make(chan Event, 1)
	_, err := bus.Subscribe("forgetful.activity.>", func(e Event) {
		received <- e
	})
	require.NoError(t, err)

	bus.Emit(Event{EntityType: "memory", EntityID: 1, Action: Created, UserID: userID})

	select {
	case e := <-received:
		assert.Equal(t, Created, e.Action)
		assert.Equal(t, int64(1), e.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_Emit_DropsReadEventsWhenTrackingDisabled(t *testing.T) {
	bus := connectTestBus(t, false)
	userID := uuid.New()

	received := make(chan Event, 1)
	_, err := bus.Subscribe("forgetful.activity.>", func(e Event) {
		received <- e
	})
	require.NoError(t, err)

	bus.Emit(Event{EntityType: "memory", EntityID: 1, Action: Read, UserID: userID})
	bus.Emit(Event{EntityType: "memory", EntityID: 2, Action: Created, UserID: userID})

	select {
	case e := <-received:
		assert.Equal(t, Created, e.Action)
		assert.Equal(t, int64(2), e.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_Emit_DeliversReadEventsWhenTrackingEnabled(t *testing.T) {
	bus := connectTestBus(t, true)
	userID := uuid.New()

	received := make(chan Event, 1)
	_, err := bus.Subscribe("forgetful.activity.>", func(e Event) {
		received <- e
	})
	require.NoError(t, err)

	bus.Emit(Event{EntityType: "memory", EntityID: 1, Action: Read, UserID: userID})

	select {
	case e := <-received:
		assert.Equal(t, Read, e.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
