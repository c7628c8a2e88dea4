package models

// Role tags a turn with the speaker that produced it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is a single message inside a dialog history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
