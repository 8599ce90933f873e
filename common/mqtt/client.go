package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte, qos byte, retained bool)

// WillMessage 遗嘱消息（LWT）配置
// 客户端异常断开时由broker代为发布
type WillMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ClientOptions 单个MQTT连接的配置
type ClientOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// 遗嘱消息（可选，必须在连接前设置）
	Will *WillMessage

	// 连接状态回调（在paho的网络goroutine中执行）
	OnConnect        func()
	OnConnectionLost func(err error)

	// 超时配置（零值使用默认）
	ConnectTimeout time.Duration // 默认 10s
	OpTimeout      time.Duration // 发布/订阅等操作超时，默认 5s
}

// Client MQTT客户端封装（单连接）
type Client struct {
	client    mqtt.Client
	opTimeout time.Duration
}

// NewClient 创建MQTT客户端（不建立连接，调用Connect建立）
func NewClient(opts *ClientOptions) *Client {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}
	opTimeout := opts.OpTimeout
	if opTimeout == 0 {
		opTimeout = 5 * time.Second
	}

	pahoOpts := mqtt.NewClientOptions()
	pahoOpts.AddBroker(opts.Broker)
	pahoOpts.SetClientID(opts.ClientID)
	pahoOpts.SetConnectTimeout(connectTimeout)
	pahoOpts.SetAutoReconnect(true)
	pahoOpts.SetCleanSession(true)

	if opts.Username != "" {
		pahoOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		pahoOpts.SetPassword(opts.Password)
	}

	// 遗嘱必须在连接握手时登记
	if opts.Will != nil {
		pahoOpts.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}

	if opts.OnConnect != nil {
		onConnect := opts.OnConnect
		pahoOpts.SetOnConnectHandler(func(_ mqtt.Client) {
			onConnect()
		})
	}
	if opts.OnConnectionLost != nil {
		onLost := opts.OnConnectionLost
		pahoOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		})
	}

	return &Client{
		client:    mqtt.NewClient(pahoOpts),
		opTimeout: opTimeout,
	}
}

// Connect 连接MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.opTimeout * 3) {
		return fmt.Errorf("timed out connecting to MQTT broker")
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Subscribe 订阅主题
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload(), msg.Qos(), msg.Retained())
	})
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("timed out subscribing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("timed out unsubscribing")
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250) // 250ms等待时间
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
