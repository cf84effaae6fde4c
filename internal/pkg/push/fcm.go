package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"
)

// Sender delivers a push notification to a topic.
type Sender interface {
	Send(ctx context.Context, topic, title, body string, data map[string]string) error
}

// UserTopic is the FCM topic a user's devices subscribe to.
func UserTopic(userID string) string {
	return "user-" + userID
}

type FCM struct {
	client *messaging.Client
}

// NewFCM initializes Firebase Cloud Messaging. An empty credentialsFile uses
// Application Default Credentials.
func NewFCM(ctx context.Context, projectID, credentialsFile string) (*FCM, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase messaging: %w", err)
	}

	slog.Info("Firebase messaging ready", "project_id", projectID)
	return &FCM{client: client}, nil
}

func (f *FCM) Send(ctx context.Context, topic, title, body string, data map[string]string) error {
	id, err := f.client.Send(ctx, &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("send push to %s: %w", topic, err)
	}
	slog.Debug("Push sent", "topic", topic, "message_id", id)
	return nil
}
