package supervisor

import "github.com/whytchat/core/pkg/brain"

// EventType discriminates the three event kinds the Supervisor emits to
// the UI via the opaque emit sink.
type EventType string

const (
	EventThinkingStep  EventType = "thinking_step"
	EventBrainAnalysis EventType = "brain_analysis"
	EventChatToken     EventType = "chat_token"
)

// Event is the interface every emitted event satisfies; Type lets an
// emit sink dispatch without a type switch.
type Event interface {
	Type() EventType
}

// ThinkingStep is a human-readable progress narration.
type ThinkingStep struct {
	Message string
}

func (ThinkingStep) Type() EventType { return EventThinkingStep }

// NewThinkingStep constructs a ThinkingStep event.
func NewThinkingStep(message string) ThinkingStep {
	return ThinkingStep{Message: message}
}

// BrainAnalysis carries the Brain's full ContextPacket for a turn.
type BrainAnalysis struct {
	Packet brain.ContextPacket
}

func (BrainAnalysis) Type() EventType { return EventBrainAnalysis }

// NewBrainAnalysis constructs a BrainAnalysis event.
func NewBrainAnalysis(packet brain.ContextPacket) BrainAnalysis {
	return BrainAnalysis{Packet: packet}
}

// ChatToken is one streamed token from the model.
type ChatToken struct {
	Token string
}

func (ChatToken) Type() EventType { return EventChatToken }

// NewChatToken constructs a ChatToken event.
func NewChatToken(token string) ChatToken {
	return ChatToken{Token: token}
}

// Sink is the opaque emit channel a caller supplies for one turn. It is
// bounded; a slow consumer slows token emission, which in turn slows LLM
// reads, since tokens are forwarded synchronously within the stream loop.
type Sink chan<- Event
