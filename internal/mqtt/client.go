// Package mqtt wraps the paho client for light commands and device events.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler receives a message's topic and payload
type Handler func(topic string, payload []byte)

// Options configures the client
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Client is a reconnecting MQTT client. Subscriptions are re-established
// after every reconnect.
type Client struct {
	client paho.Client
	qos    byte
	broker string

	mu   sync.Mutex
	subs map[string]Handler
}

// NewClient builds a client. The client id gets a random suffix so two
// instances never kick each other off the broker.
func NewClient(opts Options) *Client {
	c := &Client{
		qos:    opts.QoS,
		broker: opts.Broker,
		subs:   make(map[string]Handler),
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "circadiand"
	}
	clientID = clientID + "-" + uuid.NewString()[:8]

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}

	po.OnConnect = func(pc paho.Client) {
		log.Info().Str("broker", opts.Broker).Str("client_id", clientID).Msg("Connected to MQTT broker")
		c.resubscribe(pc)
	}
	po.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}
	po.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		log.Info().Msg("MQTT reconnecting")
	}

	c.client = paho.NewClient(po)
	return c
}

// Connect waits for the first connection or ctx
func (c *Client) Connect(ctx context.Context) error {
	log.Info().Str("broker", c.broker).Msg("Connecting to MQTT broker")

	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to connect to MQTT broker: %w", ctx.Err())
	}
}

// Close disconnects with a short grace period
func (c *Client) Close() {
	log.Info().Msg("Disconnecting from MQTT broker")
	c.client.Disconnect(250)
}

// Publish sends payload to topic, not retained
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.qos, false, payload)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	log.Debug().Str("topic", topic).Int("size", len(payload)).Msg("Published MQTT message")
	return nil
}

// Subscribe registers handler for topic and subscribes now if connected
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	token := c.client.Subscribe(topic, c.qos, wrap(handler))
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	log.Info().Str("topic", topic).Msg("Subscribed to MQTT topic")
	return nil
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, h := range c.subs {
		token := pc.Subscribe(topic, c.qos, wrap(h))
		go func(topic string) {
			token.Wait()
			if err := token.Error(); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("Failed to resubscribe")
			}
		}(topic)
	}
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
