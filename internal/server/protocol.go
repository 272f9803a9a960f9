// Package server defines the wire contract: named events with JSON payloads
// exchanged over the WebSocket connection.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Inbound event names (client to server).
const (
	evJoin           = "join"
	evSendMessage    = "sendMessage"
	evSendEncrypted  = "sendEncryptedMessage"
	evVoiceMessage   = "voiceMessage"
	evEditMessage    = "editMessage"
	evDeleteMessage  = "deleteMessage"
	evAddReaction    = "addReaction"
	evRemoveReaction = "removeReaction"
	evMarkAsRead     = "markAsRead"
	evTyping         = "typing"
)

// Outbound event names (server to client).
const (
	evUserList           = "userList"
	evMessageHistory     = "messageHistory"
	evMessage            = "message"
	evMessageEdited      = "messageEdited"
	evMessageDeleted     = "messageDeleted"
	evReactionUpdated    = "reactionUpdated"
	evReadReceiptUpdated = "readReceiptUpdated"
	evTypingStatus       = "typingStatus"
	evAuthError          = "authentication_error"
)

// frame is the envelope for every event in either direction.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	Username string `json:"username" validate:"required,min=1,max=32"`
}

type sendMessagePayload struct {
	Text string `json:"text" validate:"required"`
}

type sendEncryptedPayload struct {
	Recipient       string `json:"recipient" validate:"required"`
	Ciphertext      string `json:"encryptedMessage" validate:"required"`
	SenderPublicKey string `json:"senderPublicKey" validate:"required"`
}

type voiceMessagePayload struct {
	AudioURL string `json:"audioUrl" validate:"required,max=2048"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId" validate:"required"`
	NewText   string `json:"newText" validate:"required"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

type reactionPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	Reaction  string `json:"reaction" validate:"required,max=16"`
}

type markAsReadPayload struct {
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,required"`
}

// Outbound payload shapes that are not a bare Message or string slice.
type messageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

type reactionUpdatedPayload struct {
	MessageID string      `json:"messageId"`
	Reactions interface{} `json:"reactions"`
}

type readReceiptPayload struct {
	MessageID string   `json:"messageId"`
	ReadBy    []string `json:"readBy"`
}

type typingStatusPayload struct {
	Users []string `json:"users"`
}

type authErrorPayload struct {
	Error string `json:"error"`
}

var validate = validator.New()

// decodePayload unmarshals an event payload and checks its validation tags.
// Invalid shapes are reported as one error so the caller can drop the event.
func decodePayload(data json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}

// encodeFrame marshals a named event with its payload into the bytes written
// to the socket. Payload marshaling of internal types cannot fail; an error
// here indicates a programming bug and is surfaced to the caller to log.
func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(frame{Event: event, Data: data})
}
