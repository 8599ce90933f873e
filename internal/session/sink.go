package session

// Sink 会话的投递通道（WebSocket等）
// Send 必须只在拥有该通道的goroutine中调用；broker回调产生的事件
// 经由会话内部channel交接后，由单个消费goroutine统一投递。
// Send 失败驱动会话清理，不做重试。
type Sink interface {
	Send(message []byte) error
}

// 投递事件的JSON形态（与前端协议对齐）

// SensorDataEvent 转发给订阅方的broker消息
type SensorDataEvent struct {
	Type      string `json:"type"` // "sensor_data"
	Topic     string `json:"topic"`
	Data      any    `json:"data"`
	QoS       byte   `json:"qos"`
	Retain    bool   `json:"retain"`
	Timestamp string `json:"timestamp"`
}

// PublishAckEvent 发布操作的确认事件
type PublishAckEvent struct {
	Type      string `json:"type"` // "publish_ack"
	Topic     string `json:"topic"`
	Status    string `json:"status"` // "success" / "error"
	Reason    string `json:"reason,omitempty"`
	QoS       byte   `json:"qos"`
	Retain    bool   `json:"retain"`
	Timestamp string `json:"timestamp"`
}

// PermissionRevokedEvent 订阅权限被撤销的通知
type PermissionRevokedEvent struct {
	Type    string `json:"type"` // "permission_revoked"
	Topic   string `json:"topic"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// MQTTStatusEvent broker连接状态变化通知
type MQTTStatusEvent struct {
	Type      string `json:"type"` // "mqtt_status"
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
