package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrMalformedMessage marks a body that can never be processed.
var ErrMalformedMessage = errors.New("malformed message")

// BillReminderMessage asks the notify worker to send one user's digest.
// The worker reloads the user and bills, so the message carries only the id.
type BillReminderMessage struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBillReminderMessage creates a reminder message for userID.
func NewBillReminderMessage(userID string) *BillReminderMessage {
	return &BillReminderMessage{
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BillReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BillReminderMessageFromJSON decodes and validates a message body.
func BillReminderMessageFromJSON(data []byte) (*BillReminderMessage, error) {
	var msg BillReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrMalformedMessage, err)
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return nil, errors.Join(ErrMalformedMessage, errors.New("userId is required"))
	}
	return &msg, nil
}
