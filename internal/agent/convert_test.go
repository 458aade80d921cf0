package agent

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"

	"chatrelay/internal/models"
)

func TestEncodeDecodeTurnRoundTrip(t *testing.T) {
	batch, err := EncodeTurn("what is the capital of France?", "Paris.")
	if err != nil {
		t.Fatalf("EncodeTurn: %v", err)
	}

	history, err := DecodeHistory([][]byte{batch})
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != schema.User || history[0].Content != "what is the capital of France?" {
		t.Errorf("unexpected first message: %+v", history[0])
	}
	if history[1].Role != schema.Assistant || history[1].Content != "Paris." {
		t.Errorf("unexpected second message: %+v", history[1])
	}
}

func TestDecodeHistoryPreservesBatchOrder(t *testing.T) {
	first, _ := EncodeTurn("one", "1")
	second, _ := EncodeTurn("two", "2")

	history, err := DecodeHistory([][]byte{first, second})
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	want := []string{"one", "1", "two", "2"}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(history))
	}
	for i, content := range want {
		if history[i].Content != content {
			t.Errorf("message %d: got %q, want %q", i, history[i].Content, content)
		}
	}
}

func TestDecodeHistoryRejectsMalformedBatch(t *testing.T) {
	if _, err := DecodeHistory([][]byte{[]byte("not json")}); err == nil {
		t.Fatal("expected error for malformed batch")
	}
}

func TestToChatEntryVariants(t *testing.T) {
	tests := []struct {
		name     string
		msg      *schema.Message
		wantRole models.Role
		wantErr  bool
	}{
		{
			name:     "user text",
			msg:      schema.UserMessage("hello"),
			wantRole: models.RoleUser,
		},
		{
			name:     "assistant text",
			msg:      schema.AssistantMessage("hi there", nil),
			wantRole: models.RoleAssistant,
		},
		{
			name:    "nil message",
			msg:     nil,
			wantErr: true,
		},
		{
			name:    "system message",
			msg:     schema.SystemMessage("be helpful"),
			wantErr: true,
		},
		{
			name:    "empty user text",
			msg:     schema.UserMessage(""),
			wantErr: true,
		},
		{
			name: "assistant tool call",
			msg: schema.AssistantMessage("", []schema.ToolCall{
				{ID: "call-1", Function: schema.FunctionCall{Name: "web_search"}},
			}),
			wantErr: true,
		},
		{
			name: "tool response",
			msg:  schema.ToolMessage("result payload", "call-1"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ToChatEntry(tt.msg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrUnknownMessageShape) {
					t.Fatalf("expected ErrUnknownMessageShape, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToChatEntry: %v", err)
			}
			if entry.Role != tt.wantRole {
				t.Errorf("role: got %q, want %q", entry.Role, tt.wantRole)
			}
			if entry.ContentType != models.ContentText {
				t.Errorf("content type: got %q, want %q", entry.ContentType, models.ContentText)
			}
		})
	}
}

func TestToChatEntriesRejectsBatchWithUnknownShape(t *testing.T) {
	mixed, err := json.Marshal([]*schema.Message{
		schema.UserMessage("check the weather"),
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call-7", Function: schema.FunctionCall{Name: "query_weather"}},
		}),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, err := ToChatEntries([][]byte{mixed}); !errors.Is(err, ErrUnknownMessageShape) {
		t.Fatalf("expected ErrUnknownMessageShape, got %v", err)
	}
}

func TestToChatEntriesHappyPath(t *testing.T) {
	first, _ := EncodeTurn("hello", "hi, how can I help?")
	second, _ := EncodeTurn("tell me a joke", "why did the gopher cross the road?")

	entries, err := ToChatEntries([][]byte{first, second})
	if err != nil {
		t.Fatalf("ToChatEntries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	wantRoles := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant}
	for i, role := range wantRoles {
		if entries[i].Role != role {
			t.Errorf("entry %d role: got %q, want %q", i, entries[i].Role, role)
		}
	}
}
