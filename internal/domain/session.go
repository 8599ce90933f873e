package domain

import "time"

// SessionState 会话状态机
// Connecting → Connected ⇄ Disconnected → Closed（终态）
type SessionState string

const (
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
	SessionClosed       SessionState = "closed"
)

// SessionInfo 会话快照（用于 listActiveSessions）
type SessionInfo struct {
	UserID         string       `json:"user_id"`
	ClientID       string       `json:"client_id"`
	State          SessionState `json:"state"`
	Subscriptions  []string     `json:"subscribed_topics"`
	QoS            byte         `json:"qos"`
	Broker         string       `json:"broker"`
	ConnectedAt    time.Time    `json:"connected_at"`
	DisconnectedAt *time.Time   `json:"disconnected_at,omitempty"`
}
