package session

import (
	mqtt "github.com/ErkamTaha/smart-factory/common/mqtt"
)

// BrokerConn 单个会话占用的broker连接
// common/mqtt.Client 是生产实现，测试注入fake
type BrokerConn interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
	IsConnected() bool
}

// BrokerDialer 按连接配置创建BrokerConn（遗嘱和状态回调必须在创建时给定）
type BrokerDialer func(opts *mqtt.ClientOptions) BrokerConn

// PahoDialer 生产环境的BrokerDialer
func PahoDialer(opts *mqtt.ClientOptions) BrokerConn {
	return mqtt.NewClient(opts)
}
