package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender delivers push alerts to devices subscribed to a Firebase Cloud
// Messaging topic.
type FCMSender struct {
	client *messaging.Client
	topic  string
}

// NewFCMSender initializes a Firebase app from the given service-account
// credentials file and returns a sender publishing to topic.
func NewFCMSender(ctx context.Context, credentialsPath, topic string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("fcm: initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging client: %w", err)
	}

	return &FCMSender{client: client, topic: topic}, nil
}

// Send publishes a push notification to the configured topic.
func (f *FCMSender) Send(ctx context.Context, title, message string) error {
	msg := &messaging.Message{
		Topic: f.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  message,
		},
	}

	if _, err := f.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm: send to topic %s: %w", f.topic, err)
	}
	return nil
}

// Name returns the sender identifier.
func (f *FCMSender) Name() string {
	return "fcm"
}
