package chat

// Event names carried by both the SSE and the websocket transports.
const (
	EventStart   = "start"
	EventDelta   = "delta"
	EventMessage = "message"
	EventHandoff = "handoff"
	EventEnd     = "end"
	EventError   = "error"
)

// Event is one frame of a streamed exchange.
type Event struct {
	Event     string   `json:"event"`
	MessageID string   `json:"messageId,omitempty"`
	Content   string   `json:"content,omitempty"`
	Handoff   *Handoff `json:"handoff,omitempty"`
	Finished  bool     `json:"finished,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Handoff summarizes whether the reply routed the user to a human agent.
type Handoff struct {
	Label      string  `json:"label"`
	Suggested  bool    `json:"suggested"`
	Confidence float32 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}
