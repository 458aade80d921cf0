// Package chat drives a conversation turn end to end: replay history,
// stream the agent's cumulative output as newline-delimited JSON frames,
// and persist the finished turn through the store in a fixed order.
package chat

import "time"

// Frame is one newline-delimited JSON protocol frame. Exactly one of the
// optional fields is populated depending on Type.
type Frame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	URL       string `json:"url,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
}

const (
	frameStart   = "start"
	frameContent = "content"
	frameEnd     = "end"
	frameError   = "error"
)

func startFrame(at time.Time) Frame {
	return Frame{Type: frameStart, Timestamp: at.UTC().Format(time.RFC3339)}
}

func webStartFrame(url string) Frame {
	return Frame{Type: frameStart, URL: url}
}

func contentFrame(text string) Frame {
	return Frame{Type: frameContent, Content: text}
}

func endFrame(at time.Time) Frame {
	return Frame{Type: frameEnd, Timestamp: at.UTC().Format(time.RFC3339)}
}

func bareEndFrame() Frame {
	return Frame{Type: frameEnd}
}

func errorFrame(message string) Frame {
	return Frame{Type: frameError, Message: message}
}

// Sink receives protocol frames in emission order. An Emit error means the
// client is unreachable; the orchestrator stops emitting but still commits.
type Sink interface {
	Emit(Frame) error
}

// frameWriter serializes emissions and latches the first Emit failure so a
// dead client never interrupts the turn.
type frameWriter struct {
	sink Sink
	err  error
}

func (fw *frameWriter) emit(f Frame) {
	if fw.err != nil {
		return
	}
	fw.err = fw.sink.Emit(f)
}
