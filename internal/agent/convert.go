package agent

import (
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"chatrelay/internal/models"
)

// ErrUnknownMessageShape marks a journal message that maps to no
// displayable chat entry.
var ErrUnknownMessageShape = errors.New("unrecognized message shape")

// ToChatEntry converts one agent-protocol message into a display entry.
// Only user text and assistant text have a display form; anything else
// (tool calls, empty parts, foreign roles) is rejected rather than
// silently defaulted.
func ToChatEntry(m *schema.Message) (models.ChatMessage, error) {
	if m == nil {
		return models.ChatMessage{}, fmt.Errorf("%w: nil message", ErrUnknownMessageShape)
	}
	switch {
	case m.Role == schema.User && m.Content != "" && len(m.ToolCalls) == 0:
		return models.ChatMessage{Role: models.RoleUser, Content: m.Content, ContentType: models.ContentText}, nil
	case m.Role == schema.Assistant && m.Content != "" && len(m.ToolCalls) == 0:
		return models.ChatMessage{Role: models.RoleAssistant, Content: m.Content, ContentType: models.ContentText}, nil
	default:
		return models.ChatMessage{}, fmt.Errorf("%w: role %q", ErrUnknownMessageShape, m.Role)
	}
}

// ToChatEntries converts a full journal replay into display entries.
func ToChatEntries(batches [][]byte) ([]models.ChatMessage, error) {
	history, err := DecodeHistory(batches)
	if err != nil {
		return nil, err
	}
	entries := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		entry, err := ToChatEntry(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
