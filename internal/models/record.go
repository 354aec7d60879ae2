package models

// RecordKind tells which response shape a stream carries.
type RecordKind int

const (
	// RecordKindCompletion is the shape of a single-prompt completion stream.
	RecordKindCompletion RecordKind = iota
	// RecordKindChat is the shape of a multi-turn chat stream.
	RecordKindChat
)

func (k RecordKind) String() string {
	switch k {
	case RecordKindCompletion:
		return "completion"
	case RecordKindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Record is one decoded line of an upstream stream. Kind selects which of the text fields is meaningful:
// ResponseText for completion records, MessageRole and MessageText for chat records. The text is a delta,
// never a cumulative value.
type Record struct {
	Kind RecordKind

	// ResponseText would be filled if Kind is RecordKindCompletion.
	ResponseText string

	// MessageRole would be filled if Kind is RecordKindChat.
	MessageRole string
	// MessageText would be filled if Kind is RecordKindChat.
	MessageText string

	// IsFinal mirrors the upstream "done" flag. It is informational only; the end of the stream is what
	// terminates a response.
	IsFinal bool
}
