package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
)

type gatewayEnv struct {
	server *httptest.Server
	hub    *Hub
	bus    *bus.MemoryEventBus
	tokens *auth.TokenManager
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(logger.Default())
	t.Cleanup(hub.Close)

	memBus := bus.NewMemoryEventBus(logger.Default())
	t.Cleanup(memBus.Close)

	forwarder := NewForwarder(memBus, hub, logger.Default())
	_, err := forwarder.Start()
	require.NoError(t, err)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	router := gin.New()
	RegisterRoutes(router, hub, tokens, logger.Default())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayEnv{server: server, hub: hub, bus: memBus, tokens: tokens}
}

func (e *gatewayEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	token, err := e.tokens.Mint(userID, userID+"@example.com")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Registration happens after the handshake; wait for the hub to see us.
	require.Eventually(t, func() bool { return e.hub.ClientCount() > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) *Notification {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var n Notification
	require.NoError(t, json.Unmarshal(data, &n))
	return &n
}

func TestPushDeliversOwnEvents(t *testing.T) {
	env := newGatewayEnv(t)
	conn := env.dial(t, "user-1")

	payload := (&events.TaskCompletedPayload{
		TaskID:      "task-1",
		Title:       "water plants",
		Recurrence:  "none",
		CompletedAt: time.Now().UTC(),
	}).ToMap()
	event := bus.NewEvent(events.TaskCompleted, events.SourceAPI, "user-1", payload)
	require.NoError(t, env.bus.Publish(context.Background(), events.TopicTaskEvents, event))

	n := readNotification(t, conn)
	assert.Equal(t, events.TopicTaskEvents, n.Topic)
	assert.Equal(t, events.TaskCompleted, n.EventType)
	assert.Equal(t, event.ID, n.EventID)
	assert.Equal(t, "water plants", n.Payload["title"])
}

func TestPushScopedToOwner(t *testing.T) {
	env := newGatewayEnv(t)
	conn := env.dial(t, "user-1")
	ctx := context.Background()

	foreign := bus.NewEvent(events.ReminderDue, events.SourceScheduler, "user-2", map[string]any{"taskId": "t2"})
	require.NoError(t, env.bus.Publish(ctx, events.TopicReminders, foreign))

	mine := bus.NewEvent(events.ReminderDue, events.SourceScheduler, "user-1", map[string]any{"taskId": "t1"})
	require.NoError(t, env.bus.Publish(ctx, events.TopicReminders, mine))

	// The first frame is ours; the foreign event was never queued.
	n := readNotification(t, conn)
	assert.Equal(t, mine.ID, n.EventID)
}

func TestUpgradeRequiresToken(t *testing.T) {
	env := newGatewayEnv(t)

	resp, err := http.Get(env.server.URL + "/ws")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
