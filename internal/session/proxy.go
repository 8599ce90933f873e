package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/ErkamTaha/smart-factory/common/mqtt"
	"github.com/ErkamTaha/smart-factory/internal/acl"
	"github.com/ErkamTaha/smart-factory/internal/alert"
	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProxyConfig 会话代理配置
type ProxyConfig struct {
	Broker      string
	Username    string // broker凭证（由外部凭证下发流程保证可用）
	Password    string
	TopicPrefix string // 状态主题前缀，如 "sf"
	DefaultQoS  byte
}

// OpResult 订阅/发布操作结果
// Success=false 且 Reason 为业务原因（如已订阅）时不是错误
type OpResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Topic   string `json:"topic"`
	QoS     byte   `json:"qos"`
}

// sensorReading 发布payload中的可识别读数
type sensorReading struct {
	SensorID string   `json:"sensor_id"`
	Value    *float64 `json:"value"`
	Unit     *string  `json:"unit"`
}

// Proxy 单个用户会话的broker连接代理
//
// 每个操作先过ACL；发布路径上识别到传感器读数时调用阈值评估器；
// broker回调产生的事件经内部channel交接，由单个pump goroutine投递到Sink。
// broker回调绝不直接调用Sink.Send。
type Proxy struct {
	userID   string
	clientID string

	engine    *acl.Engine
	evaluator *alert.Evaluator
	sink      Sink
	cfg       ProxyConfig
	logger    *zap.Logger

	conn BrokerConn

	mu             sync.Mutex
	state          domain.SessionState
	subscriptions  map[string]byte // topic -> qos
	connectedAt    time.Time
	disconnectedAt *time.Time

	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewProxy 创建会话代理（不连接broker，调用Connect建立）
// 遗嘱在这里登记：broker在连接异常断开后代为发布retained离线状态
func NewProxy(
	userID string,
	sink Sink,
	engine *acl.Engine,
	evaluator *alert.Evaluator,
	cfg ProxyConfig,
	dialer BrokerDialer,
	logger *zap.Logger,
) *Proxy {
	p := &Proxy{
		userID:        userID,
		clientID:      fmt.Sprintf("sf_user_%s_%s", userID, uuid.New().String()[:8]),
		engine:        engine,
		evaluator:     evaluator,
		sink:          sink,
		cfg:           cfg,
		logger:        logger,
		state:         domain.SessionConnecting,
		subscriptions: map[string]byte{},
		events:        make(chan []byte, 256),
		done:          make(chan struct{}),
	}

	p.conn = dialer(&mqtt.ClientOptions{
		Broker:   cfg.Broker,
		ClientID: p.clientID,
		Username: cfg.Username,
		Password: cfg.Password,
		Will: &mqtt.WillMessage{
			Topic:    p.statusTopic(),
			Payload:  p.statusPayload("offline", "unexpected_disconnect"),
			QoS:      1,
			Retained: true,
		},
		OnConnect:        p.onBrokerConnect,
		OnConnectionLost: p.onBrokerLost,
	})

	return p
}

// UserID 会话所属用户
func (p *Proxy) UserID() string {
	return p.userID
}

// Connect 连接broker并启动事件投递goroutine
func (p *Proxy) Connect() error {
	go p.pump()

	if err := p.conn.Connect(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Subscribe 订阅主题（先过ACL）
// 已订阅的主题返回非错误的"Already subscribed"结果
func (p *Proxy) Subscribe(ctx context.Context, topic string, qos *byte) OpResult {
	if !p.engine.CanSubscribe(ctx, p.userID, topic) {
		p.logger.Warn("subscription denied by ACL",
			zap.String("user_id", p.userID),
			zap.String("topic", topic),
		)
		return OpResult{Success: false, Reason: "Permission denied by ACL", Topic: topic}
	}

	subQoS := p.cfg.DefaultQoS
	if qos != nil {
		subQoS = *qos
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.SessionClosed {
		return OpResult{Success: false, Reason: "Session closed", Topic: topic}
	}
	if _, tracked := p.subscriptions[topic]; tracked {
		return OpResult{Success: false, Reason: "Already subscribed", Topic: topic}
	}

	if err := p.conn.Subscribe(topic, subQoS, p.onMessage); err != nil {
		p.logger.Error("broker subscribe failed",
			zap.String("user_id", p.userID),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return OpResult{Success: false, Reason: "Broker subscribe failed", Topic: topic}
	}

	p.subscriptions[topic] = subQoS
	p.logger.Info("subscribed",
		zap.String("user_id", p.userID),
		zap.String("topic", topic),
		zap.Uint8("qos", subQoS),
	)
	return OpResult{Success: true, Topic: topic, QoS: subQoS}
}

// Unsubscribe 取消订阅（无需权限）
func (p *Proxy) Unsubscribe(ctx context.Context, topic string) OpResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, tracked := p.subscriptions[topic]; !tracked {
		return OpResult{Success: false, Reason: "Not subscribed", Topic: topic}
	}

	delete(p.subscriptions, topic)
	if err := p.conn.Unsubscribe(topic); err != nil {
		p.logger.Error("broker unsubscribe failed",
			zap.String("user_id", p.userID),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}

	p.logger.Info("unsubscribed",
		zap.String("user_id", p.userID),
		zap.String("topic", topic),
	)
	return OpResult{Success: true, Topic: topic}
}

// Publish 发布消息（先过ACL）
// payload中识别到数值读数时调用阈值评估器，评估失败不影响发布；
// 无论成败都向Sink投递publish_ack
func (p *Proxy) Publish(ctx context.Context, topic string, payload []byte, qos *byte, retain bool) OpResult {
	pubQoS := p.cfg.DefaultQoS
	if qos != nil {
		pubQoS = *qos
	}

	if !p.engine.CanPublish(ctx, p.userID, topic) {
		p.logger.Warn("publish denied by ACL",
			zap.String("user_id", p.userID),
			zap.String("topic", topic),
		)
		p.emit(PublishAckEvent{
			Type:      "publish_ack",
			Topic:     topic,
			Status:    "error",
			Reason:    "Permission denied by ACL",
			QoS:       pubQoS,
			Retain:    retain,
			Timestamp: now(),
		})
		return OpResult{Success: false, Reason: "Permission denied by ACL", Topic: topic}
	}

	p.checkReading(ctx, topic, payload)

	if err := p.conn.Publish(topic, pubQoS, retain, payload); err != nil {
		p.logger.Error("broker publish failed",
			zap.String("user_id", p.userID),
			zap.String("topic", topic),
			zap.Error(err),
		)
		p.emit(PublishAckEvent{
			Type:      "publish_ack",
			Topic:     topic,
			Status:    "error",
			Reason:    "Broker publish failed",
			QoS:       pubQoS,
			Retain:    retain,
			Timestamp: now(),
		})
		return OpResult{Success: false, Reason: "Broker publish failed", Topic: topic}
	}

	p.emit(PublishAckEvent{
		Type:      "publish_ack",
		Topic:     topic,
		Status:    "success",
		QoS:       pubQoS,
		Retain:    retain,
		Timestamp: now(),
	})
	return OpResult{Success: true, Topic: topic, QoS: pubQoS}
}

// Revalidate 重新校验所有已订阅主题的权限，撤销已失权的订阅
// 策略变更和重连进入Connected时走同一逻辑
func (p *Proxy) Revalidate(ctx context.Context, resubscribe bool) {
	p.mu.Lock()
	topics := make(map[string]byte, len(p.subscriptions))
	for topic, qos := range p.subscriptions {
		topics[topic] = qos
	}
	p.mu.Unlock()

	for topic, qos := range topics {
		if p.engine.CanSubscribe(ctx, p.userID, topic) {
			if resubscribe {
				if err := p.conn.Subscribe(topic, qos, p.onMessage); err != nil {
					p.logger.Error("failed to resubscribe",
						zap.String("user_id", p.userID),
						zap.String("topic", topic),
						zap.Error(err),
					)
				}
			}
			continue
		}

		p.revokeSubscription(topic)
	}
}

// Close 优雅关闭会话：发布retained离线状态、取消全部订阅、释放连接
// 幂等，可与进行中的操作并发调用
func (p *Proxy) Close() {
	p.closeOnce.Do(func() {
		// 顺序重要：先覆盖遗嘱状态，再断开
		p.publishStatus("offline", "graceful_disconnect")

		p.mu.Lock()
		topics := make([]string, 0, len(p.subscriptions))
		for topic := range p.subscriptions {
			topics = append(topics, topic)
		}
		p.subscriptions = map[string]byte{}
		p.state = domain.SessionClosed
		p.mu.Unlock()

		if len(topics) > 0 {
			if err := p.conn.Unsubscribe(topics...); err != nil {
				p.logger.Debug("unsubscribe on close failed", zap.Error(err))
			}
		}
		p.conn.Disconnect()
		close(p.done)

		p.logger.Info("session closed",
			zap.String("user_id", p.userID),
			zap.String("client_id", p.clientID),
		)
	})
}

// Info 会话快照
func (p *Proxy) Info() domain.SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	topics := make([]string, 0, len(p.subscriptions))
	for topic := range p.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	info := domain.SessionInfo{
		UserID:        p.userID,
		ClientID:      p.clientID,
		State:         p.state,
		Subscriptions: topics,
		QoS:           p.cfg.DefaultQoS,
		Broker:        p.cfg.Broker,
		ConnectedAt:   p.connectedAt,
	}
	if p.disconnectedAt != nil {
		t := *p.disconnectedAt
		info.DisconnectedAt = &t
	}
	return info
}

// onBrokerConnect broker握手成功（含自动重连）
// 已关闭的会话直接忽略：重连竞态下不得覆盖优雅下线的retained状态
// 顺序重要：先发布retained在线状态覆盖遗嘱，再恢复订阅
func (p *Proxy) onBrokerConnect() {
	p.mu.Lock()
	if p.state == domain.SessionClosed {
		p.mu.Unlock()
		return
	}
	p.state = domain.SessionConnected
	p.connectedAt = time.Now().UTC()
	p.disconnectedAt = nil
	p.mu.Unlock()

	p.publishStatus("online", "")

	p.logger.Info("broker connected",
		zap.String("user_id", p.userID),
		zap.String("client_id", p.clientID),
	)

	// 重连期间策略可能已变化：重新校验并恢复仍被允许的订阅
	p.Revalidate(context.Background(), true)

	p.emit(MQTTStatusEvent{
		Type:      "mqtt_status",
		Status:    "connected",
		Message:   "Your MQTT session is connected",
		Timestamp: now(),
	})
}

// onBrokerLost broker连接丢失（订阅集保留，等待重连）
func (p *Proxy) onBrokerLost(err error) {
	p.mu.Lock()
	if p.state == domain.SessionClosed {
		p.mu.Unlock()
		return
	}
	p.state = domain.SessionDisconnected
	t := time.Now().UTC()
	p.disconnectedAt = &t
	p.mu.Unlock()

	p.logger.Warn("broker connection lost",
		zap.String("user_id", p.userID),
		zap.Error(err),
	)

	p.emit(MQTTStatusEvent{
		Type:      "mqtt_status",
		Status:    "disconnected",
		Message:   "MQTT connection lost",
		Timestamp: now(),
	})
}

// onMessage broker消息到达（paho的网络goroutine）
// 每条消息重新校验订阅权限：策略可能在订阅之后变化
func (p *Proxy) onMessage(topic string, payload []byte, qos byte, retained bool) {
	p.mu.Lock()
	_, tracked := p.subscriptions[topic]
	p.mu.Unlock()
	if !tracked {
		return
	}

	if !p.engine.CanSubscribe(context.Background(), p.userID, topic) {
		p.logger.Warn("message received but permission revoked",
			zap.String("user_id", p.userID),
			zap.String("topic", topic),
		)
		p.revokeSubscription(topic)
		return
	}

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		data = string(payload)
	}

	p.emit(SensorDataEvent{
		Type:      "sensor_data",
		Topic:     topic,
		Data:      data,
		QoS:       qos,
		Retain:    retained,
		Timestamp: now(),
	})
}

// revokeSubscription 撤销单个订阅并通知Sink（恰好一条permission_revoked）
func (p *Proxy) revokeSubscription(topic string) {
	p.mu.Lock()
	_, tracked := p.subscriptions[topic]
	if tracked {
		delete(p.subscriptions, topic)
	}
	p.mu.Unlock()
	if !tracked {
		return
	}

	if err := p.conn.Unsubscribe(topic); err != nil {
		p.logger.Debug("unsubscribe on revoke failed", zap.Error(err))
	}

	p.logger.Warn("subscription permission revoked",
		zap.String("user_id", p.userID),
		zap.String("topic", topic),
	)

	p.emit(PermissionRevokedEvent{
		Type:    "permission_revoked",
		Topic:   topic,
		Action:  "subscribe",
		Message: "Your subscription permission was revoked",
	})
}

// checkReading 识别payload中的数值读数并调用阈值评估器
// 评估侧的任何问题只记日志，不影响发布
func (p *Proxy) checkReading(ctx context.Context, topic string, payload []byte) {
	if p.evaluator == nil {
		return
	}

	var reading sensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return
	}
	if reading.Value == nil || reading.Unit == nil {
		return
	}

	sensorID := reading.SensorID
	if sensorID == "" {
		sensorID = lastTopicSegment(topic)
	}
	if sensorID == "" {
		return
	}

	triggered, kind := p.evaluator.Evaluate(ctx, sensorID, *reading.Value, *reading.Unit)
	if triggered {
		p.logger.Warn("sensor reading violated limits",
			zap.String("user_id", p.userID),
			zap.String("sensor_id", sensorID),
			zap.String("alert_type", string(kind)),
			zap.Float64("value", *reading.Value),
		)
	}
}

// pump 单个消费goroutine：内部channel → Sink
// Sink发送失败驱动会话清理，不重试
func (p *Proxy) pump() {
	for {
		select {
		case msg := <-p.events:
			if err := p.sink.Send(msg); err != nil {
				p.logger.Warn("sink send failed, closing session",
					zap.String("user_id", p.userID),
					zap.Error(err),
				)
				go p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// emit 序列化事件并交接到投递channel（非阻塞，channel满时丢弃）
func (p *Proxy) emit(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal sink event", zap.Error(err))
		return
	}

	select {
	case <-p.done:
	case p.events <- data:
	default:
		p.logger.Warn("sink event channel full, dropping event",
			zap.String("user_id", p.userID),
		)
	}
}

// publishStatus 发布retained的用户状态（online/offline）
func (p *Proxy) publishStatus(status, reason string) {
	if err := p.conn.Publish(p.statusTopic(), 1, true, p.statusPayload(status, reason)); err != nil {
		p.logger.Error("failed to publish status",
			zap.String("user_id", p.userID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func (p *Proxy) statusTopic() string {
	return fmt.Sprintf("%s/users/%s/status", p.cfg.TopicPrefix, p.userID)
}

func (p *Proxy) statusPayload(status, reason string) []byte {
	payload := map[string]string{
		"user_id":   p.userID,
		"status":    status,
		"timestamp": now(),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	data, _ := json.Marshal(payload)
	return data
}

func lastTopicSegment(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
