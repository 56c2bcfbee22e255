package models

import "time"

// Notebook groups an ordered collection of sources with a chat history.
type Notebook struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ColorIndex  int       `json:"color_index"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// InlineImage is an image sent alongside a prompt.
type InlineImage struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// Message is one turn of a notebook conversation.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Images    []InlineImage `json:"images,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Artifact is generated studio output (briefing doc, FAQ, study guide, timeline).
type Artifact struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
