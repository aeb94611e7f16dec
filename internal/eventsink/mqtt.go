package eventsink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSink publishes each message to its per-camera topic.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// ConnectMQTT connects to broker, which may omit the tcp:// scheme. The
// client reconnects on its own after the first connection succeeds.
func ConnectMQTT(broker, clientID, prefix string, log *zap.Logger) (*MQTTSink, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connected", zap.String("broker", broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.String("broker", broker), zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return &MQTTSink{client: client, prefix: strings.Trim(prefix, "/"), qos: 1}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Send(ctx context.Context, msg model.Message, payload []byte) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected")
	}
	token := s.client.Publish(Topic(s.prefix, msg), s.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
