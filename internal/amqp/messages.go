package amqp

import (
	"encoding/json"
	"time"

	"teambudget/internal/core"
)

// ChangeMessage announces that a collection changed. It carries no payload;
// consumers re-read the store.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	Op         string    `json:"op"`
	ID         string    `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewChangeMessage(ev core.ChangeEvent) *ChangeMessage {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ChangeMessage{
		Collection: ev.Collection,
		Op:         ev.Op,
		ID:         ev.ID,
		Timestamp:  ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NotificationMessage is a newly surfaced notification, published for toast
// style subscribers.
type NotificationMessage struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Date        string    `json:"date"`
	Category    string    `json:"category,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	EventDate   string    `json:"event_date,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewNotificationMessage(n core.Notification) *NotificationMessage {
	return &NotificationMessage{
		ID:          n.ID,
		Kind:        string(n.Kind),
		Severity:    string(n.Severity),
		Message:     n.Message,
		Date:        n.Date.String(),
		Category:    n.Subject.Category,
		AmountCents: n.Subject.Amount.Cents,
		EventDate:   n.Subject.Date.String(),
		Timestamp:   time.Now(),
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
