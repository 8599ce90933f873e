package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

// wsSink WebSocket连接的Sink实现
// gorilla的写不允许并发，命令响应和会话事件共用同一把写锁
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSink) Send(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

func (s *wsSink) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// clientCommand 前端经WebSocket发来的指令
type clientCommand struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	QoS     *byte           `json:"qos"`
	Retain  bool            `json:"retain"`
}

// WSHandler WebSocket入口：一条连接对应一个用户会话
type WSHandler struct {
	registry *session.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler 创建WebSocket Handler
func NewWSHandler(registry *session.Registry, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 部署在私网网关之后，网关负责来源校验
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWS 升级连接、建立会话并进入指令循环
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user_id is required"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	proxy, err := h.registry.CreateSession(r.Context(), userID, sink)
	if err != nil {
		h.logger.Error("failed to create session",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		_ = sink.sendJSON(map[string]string{
			"type":    "error",
			"message": "Failed to establish MQTT session",
		})
		return
	}

	_ = sink.sendJSON(map[string]string{
		"type":    "connection_status",
		"status":  "connected",
		"user_id": userID,
	})

	h.logger.Info("websocket client connected", zap.String("user_id", userID))
	h.commandLoop(r, userID, proxy, sink, conn)

	// 只拆除仍属于本连接的会话：用户可能已在新连接上重建会话
	if current, ok := h.registry.GetSession(userID); ok && current == proxy {
		h.registry.RemoveSession(userID)
	}
	h.logger.Info("websocket client disconnected", zap.String("user_id", userID))
}

func (h *WSHandler) commandLoop(r *http.Request, userID string, proxy *session.Proxy, sink *wsSink, conn *websocket.Conn) {
	ctx := r.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			_ = sink.sendJSON(map[string]string{
				"type":    "error",
				"message": "Invalid JSON",
			})
			continue
		}

		switch cmd.Type {
		case "ping":
			_ = sink.sendJSON(map[string]string{"type": "pong"})
		case "subscribe":
			result := proxy.Subscribe(ctx, cmd.Topic, cmd.QoS)
			_ = sink.sendJSON(map[string]any{
				"type":          "subscription_ack",
				"topic":         result.Topic,
				"success":       result.Success,
				"reason":        result.Reason,
				"qos":           result.QoS,
				"subscriptions": proxy.Info().Subscriptions,
			})
		case "unsubscribe":
			result := proxy.Unsubscribe(ctx, cmd.Topic)
			_ = sink.sendJSON(map[string]any{
				"type":          "unsubscription_ack",
				"topic":         result.Topic,
				"success":       result.Success,
				"reason":        result.Reason,
				"subscriptions": proxy.Info().Subscriptions,
			})
		case "publish":
			// 结果经会话事件流以publish_ack回传
			proxy.Publish(ctx, cmd.Topic, cmd.Payload, cmd.QoS, cmd.Retain)
		default:
			_ = sink.sendJSON(map[string]string{
				"type":    "error",
				"message": "Unknown command type",
			})
		}
	}
}
