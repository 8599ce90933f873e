package domain

import "time"

// Action MQTT操作类型
type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionPublish   Action = "publish"
)

// Permission 单条权限规则
// Pattern 支持 MQTT 通配符（+ / #）和 ${username} / ${user_id} 占位符
type Permission struct {
	Pattern string   `json:"pattern"`
	Allow   []Action `json:"allow"`
	Deny    []Action `json:"deny"`
}

// Allows 判断规则是否显式允许该操作
func (p Permission) Allows(action Action) bool {
	for _, a := range p.Allow {
		if a == action {
			return true
		}
	}
	return false
}

// Denies 判断规则是否显式拒绝该操作
func (p Permission) Denies(action Action) bool {
	for _, a := range p.Deny {
		if a == action {
			return true
		}
	}
	return false
}

// Role 角色（权限规则按定义顺序评估）
type Role struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// Account ACL账号
// Roles 按分配顺序保存，评估顺序：角色规则（按分配顺序）→ 自定义规则（按插入顺序）
type Account struct {
	Username          string       `json:"username"`
	Email             string       `json:"email,omitempty"`
	Roles             []string     `json:"roles"`
	CustomPermissions []Permission `json:"custom_permissions"`
	IsActive          bool         `json:"is_active"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	LastLogin         *time.Time   `json:"last_login,omitempty"`
}

// AuditEntry 权限检查审计记录
type AuditEntry struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`   // 固定为 "permission_check"
	Resource  string    `json:"resource"` // "<action>:<topic>"
	Result    string    `json:"result"`   // allowed / denied / error
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
