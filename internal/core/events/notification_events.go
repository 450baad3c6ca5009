package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeNotificationCreated = "notification.created"
)

// NotificationCreatedEvent announces a persisted inbox entry so live
// connections of the recipient can be pushed the rendered message.
type NotificationCreatedEvent struct {
	BaseEvent
	RecipientID    int64       `json:"recipient_id"`
	NotificationID int64       `json:"notification_id"`
	Body           interface{} `json:"body"`
}

func NewNotificationCreatedEvent(recipientID, notificationID int64, body interface{}) *NotificationCreatedEvent {
	return &NotificationCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeNotificationCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"recipient_id":    recipientID,
				"notification_id": notificationID,
			},
		},
		RecipientID:    recipientID,
		NotificationID: notificationID,
		Body:           body,
	}
}
