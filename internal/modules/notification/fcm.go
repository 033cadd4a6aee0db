// README: Firebase Cloud Messaging sender; each user subscribes their devices to topic user_<id>.
package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"hyperlocal/internal/logger"
	"hyperlocal/internal/types"
)

// MessagingClient is the subset of *messaging.Client used here.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMSender struct {
	client MessagingClient
}

func NewFCMSender(client MessagingClient) *FCMSender {
	return &FCMSender{client: client}
}

func UserTopic(userID types.ID) string {
	return "user_" + string(userID)
}

func (s *FCMSender) Send(ctx context.Context, n Notification) error {
	msg, err := fcmMessage(n)
	if err != nil {
		return err
	}
	messageID, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to %s: %w", msg.Topic, err)
	}
	logger.Debug("fcm sent", zap.String("notification_id", string(n.ID)), zap.String("message_id", messageID))
	return nil
}

func fcmMessage(n Notification) (*messaging.Message, error) {
	data, err := EncodeData(n.Data)
	if err != nil {
		return nil, err
	}
	return &messaging.Message{
		Topic: UserTopic(n.UserID),
		Data: map[string]string{
			"notification_id": string(n.ID),
			"type":            string(n.Type()),
			"payload":         string(data),
		},
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}, nil
}
