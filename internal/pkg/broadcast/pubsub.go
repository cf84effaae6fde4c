package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Publisher fans a message out to every subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, attributes map[string]string, payload interface{}) (string, error)
}

type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub connects to topicID. An empty credentialsJSON uses Application
// Default Credentials.
func NewPubSub(ctx context.Context, projectID, topicID, credentialsJSON string) (*PubSub, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub topic is required")
	}

	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	slog.Info("Pub/Sub publisher ready", "project_id", projectID, "topic", topicID)
	return &PubSub{client: client, topic: client.Topic(topicID)}, nil
}

// Publish waits for the server-assigned message ID.
func (p *PubSub) Publish(ctx context.Context, attributes map[string]string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal broadcast payload: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish broadcast: %w", err)
	}
	return id, nil
}

func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
