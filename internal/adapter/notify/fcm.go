package notify

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// messenger is the part of *messaging.Client the sink needs.
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSink implements ports.NotificationSink over Firebase Cloud Messaging.
type FCMSink struct {
	client messenger
	log    zerolog.Logger
}

// NewFCMSink initialises a Firebase app from a service account file.
func NewFCMSink(ctx context.Context, credentialsFile string, log zerolog.Logger) (*FCMSink, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return &FCMSink{client: client, log: log}, nil
}

// Send pushes one notification to a device.
func (s *FCMSink) Send(ctx context.Context, deviceToken string, n domain.Notification) error {
	msg := buildMessage(deviceToken, n)
	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	s.log.Debug().
		Str("recipient_id", n.RecipientID.String()).
		Str("template", n.Template).
		Str("message_id", id).
		Msg("push sent")
	return nil
}

func buildMessage(token string, n domain.Notification) *messaging.Message {
	title, body := render(n)
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data["type"] = n.Template

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
