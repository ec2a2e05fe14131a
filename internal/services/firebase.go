package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/dinewithlocals/backend/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Pusher sends a push notification to one device token.
type Pusher interface {
	Push(ctx context.Context, token string, payload PushPayload) error
}

// PushPayload represents the notification data
type PushPayload struct {
	Title string
	Body  string
	Data  map[string]string
}

// FirebasePusher sends through Firebase Cloud Messaging.
type FirebasePusher struct {
	client *messaging.Client
}

// NewFirebasePusher initializes the Admin SDK. It returns nil, nil when no
// service account is configured.
func NewFirebasePusher(ctx context.Context, serviceAccountPath string) (*FirebasePusher, error) {
	if serviceAccountPath == "" {
		logger.Log.Warn("FIREBASE_SERVICE_ACCOUNT_PATH not set, push notifications disabled")
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	logger.Log.Info("Firebase Cloud Messaging initialized")
	return &FirebasePusher{client: client}, nil
}

func (p *FirebasePusher) Push(ctx context.Context, token string, payload PushPayload) error {
	badge := 1
	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data:  payload.Data,
		Token: token,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:    "dwl_default",
				Sound:        "default",
				DefaultSound: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:          "default",
					Badge:          &badge,
					MutableContent: true,
				},
			},
		},
	}

	response, err := p.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	logger.Log.Debug("Push sent", zap.String("response", response))
	return nil
}

// IsStaleToken reports whether FCM rejected the token as no longer valid.
func IsStaleToken(err error) bool {
	return messaging.IsUnregistered(err)
}
