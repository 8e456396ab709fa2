package ghl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MessageResult identifies a sent message.
type MessageResult struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// SendMessage sends a WhatsApp message to the contact through the GHL
// conversations API.
func (c *Client) SendMessage(ctx context.Context, contactID, text string) (MessageResult, error) {
	if strings.TrimSpace(contactID) == "" {
		return MessageResult{}, errors.New("ghl: contact id is required")
	}
	if strings.TrimSpace(text) == "" {
		return MessageResult{}, errors.New("ghl: message text is required")
	}
	body := map[string]any{
		"type":      "WhatsApp",
		"contactId": contactID,
		"message":   text,
	}
	var out MessageResult
	if err := c.invoke(ctx, "conversations.send", http.MethodPost, "/conversations/messages", nil, body, &out); err != nil {
		return MessageResult{}, fmt.Errorf("ghl: send message: %w", err)
	}
	return out, nil
}
