package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/banksoal/apiserver/config"
	"github.com/banksoal/apiserver/internal/logger"
	"google.golang.org/api/option"
)

// PubSubClient delivers purge events over Google Cloud Pub/Sub. Each channel
// maps to a topic with a single pull subscription named channel+suffix.
type PubSubClient struct {
	client   *pubsub.Client
	settings config.PubSubConfig

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:   client,
		settings: cfg,
		topics:   make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends a message to the channel's topic and waits for the server id.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// Subscribe pulls from the channel's subscription until ctx is done. A
// handler error nacks the message so Pub/Sub redelivers it after backoff.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	name := subscriptionName(channel, p.settings.SubscriptionSuffix)
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		sub, err = p.client.CreateSubscription(ctx, name, subscriptionConfig(topic, p.settings))
		if err != nil {
			return err
		}
	}
	if p.settings.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = p.settings.MaxOutstanding
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, fromPubSub(msg)); err != nil {
			logger.Warn().Err(err).Str("subscription", name).Str("message_id", msg.ID).Int("attempt", deliveryAttempt(msg)).Msg("purge message failed")
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending publishes and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	p.topics[name] = topic
	return topic, nil
}

func subscriptionName(channel, suffix string) string {
	return channel + suffix
}

func subscriptionConfig(topic *pubsub.Topic, cfg config.PubSubConfig) pubsub.SubscriptionConfig {
	sc := pubsub.SubscriptionConfig{Topic: topic}
	if cfg.AckDeadline > 0 {
		sc.AckDeadline = cfg.AckDeadline
	}
	if cfg.MinBackoff > 0 || cfg.MaxBackoff > 0 {
		policy := &pubsub.RetryPolicy{}
		if cfg.MinBackoff > 0 {
			policy.MinimumBackoff = cfg.MinBackoff
		}
		if cfg.MaxBackoff > 0 {
			policy.MaximumBackoff = cfg.MaxBackoff
		}
		sc.RetryPolicy = policy
	}
	return sc
}

func fromPubSub(msg *pubsub.Message) Message {
	return Message{
		ID:         msg.ID,
		Data:       msg.Data,
		Attributes: msg.Attributes,
	}
}

// deliveryAttempt is zero unless the subscription has a dead letter policy.
func deliveryAttempt(msg *pubsub.Message) int {
	if msg.DeliveryAttempt == nil {
		return 0
	}
	return *msg.DeliveryAttempt
}
