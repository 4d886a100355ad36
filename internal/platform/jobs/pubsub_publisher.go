package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/kaimono-app/api/internal/services"
)

// PubSubClassificationPublisher publishes item classification jobs to a Pub/Sub topic.
type PubSubClassificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubClassificationPublisher constructs a Pub/Sub backed classification job publisher.
func NewPubSubClassificationPublisher(topic *pubsub.Topic) (*PubSubClassificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub classification publisher: topic is required")
	}
	return &PubSubClassificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishClassificationJob enqueues a classification job message on the configured topic.
func (p *PubSubClassificationPublisher) PublishClassificationJob(ctx context.Context, message services.ClassificationJobMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub classification publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal classification job: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "itemId", message.ItemID)
	setAttr(attrs, "jan", message.JAN)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish classification job: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
