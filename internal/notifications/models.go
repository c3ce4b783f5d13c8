package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification is the unit of user-facing messaging. Delivery is always
// best-effort: a failed send is logged and never propagated into the
// operation that triggered it.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotification builds a notification with a fresh id and timestamp
func NewNotification(userID uuid.UUID, title, content, url string) Notification {
	return Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
}

// ToJSON serializes the notification for the wire
func (n Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// GetPartitionKey returns the Kafka partition key; per-user ordering is
// enough for notification delivery.
func (n Notification) GetPartitionKey() string {
	return n.UserID.String()
}
