package domain

import "time"

// LimitConfig 传感器限值配置
// 每个传感器可有多个命名限值配置，任意时刻最多一个 Selected
type LimitConfig struct {
	Name     string  `json:"name"`
	Upper    float64 `json:"upper_limit"`
	Lower    float64 `json:"lower_limit"`
	Unit     string  `json:"unit"`
	Selected bool    `json:"is_selected"`
}

// Sensor 传感器定义
type Sensor struct {
	SensorID  string        `json:"sensor_id"`
	Pattern   string        `json:"pattern"` // 数据上报主题模式
	Type      string        `json:"sensor_type"`
	IsActive  bool          `json:"is_active"`
	Limits    []LimitConfig `json:"limits"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SelectedLimit 返回当前选中的限值配置，没有则返回nil
func (s *Sensor) SelectedLimit() *LimitConfig {
	for i := range s.Limits {
		if s.Limits[i].Selected {
			return &s.Limits[i]
		}
	}
	return nil
}

// AlertKind 报警类型（超上限/超下限）
type AlertKind string

const (
	AlertKindNone  AlertKind = ""
	AlertKindUpper AlertKind = "upper"
	AlertKindLower AlertKind = "lower"
)

// Alert 阈值报警记录
// 由评估器创建，运维人员resolve终结，不自动删除
type Alert struct {
	AlertID        string     `json:"alert_id"`
	SensorID       string     `json:"sensor_id"`
	Kind           AlertKind  `json:"alert_type"`
	TriggeredValue float64    `json:"triggered_value"`
	LimitValue     float64    `json:"limit_value"`
	Unit           string     `json:"unit"`
	Message        string     `json:"message"`
	Topic          string     `json:"mqtt_topic,omitempty"`
	IsResolved     bool       `json:"is_resolved"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
