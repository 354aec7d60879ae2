package models

import "time"

// Role represents the role of a conversation participant.
type Role string

const (
	// RoleSystem is the role of the instruction turn that prefixes every chat request. It is never stored in a
	// Transcript.
	RoleSystem Role = "system"
	// RoleUser represents a user turn.
	RoleUser Role = "user"
	// RoleAssistant represents a completed model response.
	RoleAssistant Role = "assistant"
)

// Turn is a single entry of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Transcript is the ordered conversation history of one chat session. Insertion order is the only meaningful
// order; a Transcript only ever grows by appending completed turns.
type Transcript []Turn

// Clone returns a copy of the transcript that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	c := make(Transcript, len(t))
	copy(c, t)
	return c
}

// Model describes a model installed on the upstream server.
type Model struct {
	Name       string
	ModifiedAt time.Time
	Size       int64
}

// StreamingState is the lifecycle state of an output being streamed into a surface.
type StreamingState string

const (
	StreamingStateLoading   StreamingState = "loading"
	StreamingStateStreaming StreamingState = "streaming"
	StreamingStateEnded     StreamingState = "ended"
	StreamingStateFailed    StreamingState = "failed"
)
