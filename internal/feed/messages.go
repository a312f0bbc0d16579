package feed

import (
	"encoding/json"
	"time"
)

// ChangeMessage announces that a user's ledger changed at the source.
// It deliberately carries no record data: consumers re-read the complete
// snapshot from storage, so a lost or reordered message can never leave a
// partially applied state behind.
type ChangeMessage struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(userID string) *ChangeMessage {
	return &ChangeMessage{
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

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
