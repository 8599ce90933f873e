package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/ErkamTaha/smart-factory/common/mqtt"
	"github.com/ErkamTaha/smart-factory/internal/acl"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/repository"
	"github.com/ErkamTaha/smart-factory/internal/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBroker 测试用BrokerConn：连接即成功，忽略broker侧行为
type stubBroker struct {
	mu       sync.Mutex
	opts     *mqtt.ClientOptions
	handlers map[string]mqtt.MessageHandler
}

func (b *stubBroker) Connect() error {
	b.mu.Lock()
	onConnect := b.opts.OnConnect
	b.mu.Unlock()
	if onConnect != nil {
		onConnect()
	}
	return nil
}

func (b *stubBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return nil
}

func (b *stubBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *stubBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	return nil
}

func (b *stubBroker) Disconnect()       {}
func (b *stubBroker) IsConnected() bool { return true }

func setupWSServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	ctx := context.Background()

	accountsRepo := repository.NewMemoryAccountsRepository()
	rolesRepo := repository.NewMemoryRolesRepository()
	auditRepo := repository.NewMemoryAuditRepository()
	engine := acl.NewEngine(accountsRepo, rolesRepo, auditRepo, "deny", 5*time.Minute, zap.NewNop())

	require.NoError(t, rolesRepo.PutRole(ctx, &domain.Role{
		Name: "operator",
		Permissions: []domain.Permission{
			{
				Pattern: "sf/sensors/#",
				Allow:   []domain.Action{domain.ActionSubscribe, domain.ActionPublish},
			},
		},
	}))
	require.NoError(t, engine.AddAccount(ctx, "alice", "", []string{"operator"}, nil))

	dialer := func(opts *mqtt.ClientOptions) session.BrokerConn {
		return &stubBroker{opts: opts, handlers: map[string]mqtt.MessageHandler{}}
	}
	registry := session.NewRegistry(engine, nil, session.ProxyConfig{
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "sf",
		DefaultQoS:  1,
	}, dialer, zap.NewNop())
	t.Cleanup(registry.CloseAll)

	router := NewRouter(zap.NewNop())
	router.Handle("/ws", NewWSHandler(registry, zap.NewNop()).HandleWS)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, registry
}

func dialWS(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilType 读取消息直到出现指定type（mqtt_status等事件与命令响应交错到达）
func readUntilType(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)

		var event map[string]any
		require.NoError(t, json.Unmarshal(msg, &event))
		if event["type"] == eventType {
			return event
		}
		require.True(t, time.Now().Before(deadline), "no %s before deadline", eventType)
	}
}

func writeCommand(t *testing.T, conn *websocket.Conn, cmd map[string]any) {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWS_ConnectAndPing(t *testing.T) {
	server, registry := setupWSServer(t)
	conn := dialWS(t, server, "alice")

	welcome := readUntilType(t, conn, "connection_status")
	assert.Equal(t, "connected", welcome["status"])
	assert.Equal(t, "alice", welcome["user_id"])
	assert.Equal(t, 1, registry.Count())

	writeCommand(t, conn, map[string]any{"type": "ping"})
	readUntilType(t, conn, "pong")
}

func TestWS_SubscribeAndPublishFlow(t *testing.T) {
	server, registry := setupWSServer(t)
	conn := dialWS(t, server, "alice")
	readUntilType(t, conn, "connection_status")

	writeCommand(t, conn, map[string]any{"type": "subscribe", "topic": "sf/sensors/room1/temp"})
	result := readUntilType(t, conn, "subscription_ack")
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "sf/sensors/room1/temp", result["topic"])

	proxy, ok := registry.GetSession("alice")
	require.True(t, ok)
	assert.Contains(t, proxy.Info().Subscriptions, "sf/sensors/room1/temp")

	// 发布结果经publish_ack事件回传
	writeCommand(t, conn, map[string]any{
		"type":    "publish",
		"topic":   "sf/sensors/room1/temp",
		"payload": map[string]any{"value": 25},
	})
	ack := readUntilType(t, conn, "publish_ack")
	assert.Equal(t, "success", ack["status"])
}

func TestWS_SubscribeDenied(t *testing.T) {
	server, _ := setupWSServer(t)
	conn := dialWS(t, server, "alice")
	readUntilType(t, conn, "connection_status")

	writeCommand(t, conn, map[string]any{"type": "subscribe", "topic": "sf/admin/commands"})
	result := readUntilType(t, conn, "subscription_ack")
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "Permission denied by ACL", result["reason"])
}

func TestWS_InvalidJSON(t *testing.T) {
	server, _ := setupWSServer(t)
	conn := dialWS(t, server, "alice")
	readUntilType(t, conn, "connection_status")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errEvent := readUntilType(t, conn, "error")
	assert.Equal(t, "Invalid JSON", errEvent["message"])
}

func TestWS_DisconnectTearsDownSession(t *testing.T) {
	server, registry := setupWSServer(t)
	conn := dialWS(t, server, "alice")
	readUntilType(t, conn, "connection_status")
	require.Equal(t, 1, registry.Count())

	conn.Close()
	assert.Eventually(t, func() bool {
		return registry.Count() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWS_MissingUserID(t *testing.T) {
	server, _ := setupWSServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
