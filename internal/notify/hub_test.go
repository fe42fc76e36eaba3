package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"
)

func TestHubBroadcastsToClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, primitive.NewObjectID())
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var hello Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, EventConnected, hello.Type)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Publish(Event{Type: EventLowStock, Message: "Soap is low", Data: map[string]int{"stock_quantity": 2}})

	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventLowStock, got.Type)
	assert.Equal(t, "Soap is low", got.Message)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	srv.Close()
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < 100; i++ {
		hub.Publish(Event{Type: EventSaleCreated})
	}

	var nilHub *Hub
	nilHub.Publish(Event{Type: EventSaleCreated})
}

func TestSameHost(t *testing.T) {
	assert.True(t, sameHost("http://pos.local:8080", "pos.local:8080"))
	assert.False(t, sameHost("http://evil.example", "pos.local:8080"))
	assert.False(t, sameHost("::", "pos.local"))
}
