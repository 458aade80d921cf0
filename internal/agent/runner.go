// Package agent wraps the language-model runtime behind a small contract
// the orchestrator can drive: run a prompt against replayed history, either
// all at once or as a stream of cumulative text snapshots, and hand back
// the turn's new messages serialized for the raw journal.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Runner is the external agent collaborator.
type Runner interface {
	// Run executes one turn and returns the final result.
	Run(ctx context.Context, prompt string, history [][]byte) (*TurnResult, error)
	// RunStream executes one turn, invoking snapshot with the cumulative
	// text so far after every chunk. The snapshot sequence is finite and
	// single-pass; a snapshot error aborts the turn.
	RunStream(ctx context.Context, prompt string, history [][]byte, snapshot func(string) error) (*TurnResult, error)
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	// Output is the assistant's full response text.
	Output string
	// NewMessages is the turn's serialized message batch for the journal.
	NewMessages []byte
}

// DecodeHistory flattens the journal's serialized batches back into the
// agent-protocol messages they contain, preserving insertion order.
func DecodeHistory(batches [][]byte) ([]*schema.Message, error) {
	var history []*schema.Message
	for i, batch := range batches {
		var msgs []*schema.Message
		if err := json.Unmarshal(batch, &msgs); err != nil {
			return nil, fmt.Errorf("decode journal batch %d: %w", i, err)
		}
		history = append(history, msgs...)
	}
	return history, nil
}

// EncodeTurn serializes a completed turn's new messages as one journal
// batch: the user prompt followed by the assistant response.
func EncodeTurn(prompt, output string) ([]byte, error) {
	batch := []*schema.Message{
		schema.UserMessage(prompt),
		schema.AssistantMessage(output, nil),
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode turn: %w", err)
	}
	return data, nil
}
