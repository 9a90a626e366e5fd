package domain

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used for the turn
// history and the text-generation integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
