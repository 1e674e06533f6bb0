package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidRaw is returned when a pre-encoded payload is not valid JSON.
var ErrInvalidRaw = errors.New("raw payload is not valid JSON")

// Outbound message types.
const (
	TypeText = "text"
	TypeFile = "file"
)

// OutboundMessage is a frame sent to the chat socket.
type OutboundMessage struct {
	ID          string `json:"id"`
	MessageType string `json:"message_type"`
	Message     string `json:"message"`
	Sender      string `json:"sender"`
	FileURL     string `json:"file_url,omitempty"`
}

// NewTextMessage builds a text message from sender.
func NewTextMessage(sender, text string) *OutboundMessage {
	return &OutboundMessage{
		ID:          uuid.NewString(),
		MessageType: TypeText,
		Message:     text,
		Sender:      sender,
	}
}

// NewFileMessage builds a message referencing an uploaded file, with an optional caption.
func NewFileMessage(sender, fileURL, caption string) *OutboundMessage {
	return &OutboundMessage{
		ID:          uuid.NewString(),
		MessageType: TypeFile,
		Message:     caption,
		Sender:      sender,
		FileURL:     fileURL,
	}
}

// Encode serializes any payload into a text frame.
func Encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		if !json.Valid(p) {
			return nil, ErrInvalidRaw
		}

		return p, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, ErrInvalidRaw
		}

		return p, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	return data, nil
}
