package chat

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one conversation turn as sent by the browser. It lives for a single request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
