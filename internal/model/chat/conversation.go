package chat

// GreetingID is the id of the assistant message every conversation starts with.
const GreetingID = "welcome"

// DefaultGreeting is shown before the user has typed anything.
const DefaultGreeting = "Hi there! I'm your AI assistant. How can I help you today?"

// Greeting builds the seed message of a conversation.
func Greeting(content string) Message {
	if content == "" {
		content = DefaultGreeting
	}
	return Message{ID: GreetingID, Role: RoleAssistant, Content: content}
}

// Request is the body accepted by the chat proxy endpoint.
type Request struct {
	Messages []Message `json:"messages"`
}
