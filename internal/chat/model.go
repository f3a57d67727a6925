package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation sent by the browser.
type Turn struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Request is the body of POST /chat.
type Request struct {
	ThreadID    string `json:"threadId" validate:"max=256"`
	MailContext string `json:"mailContext" validate:"max=200000"`
	Messages    []Turn `json:"messages" validate:"required,min=1,max=100,dive"`
}

// lastUserTurn returns the newest user message, if any.
func (r *Request) lastUserTurn() (Turn, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i], true
		}
	}
	return Turn{}, false
}

// Message is a persisted chat message.
type Message struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	ThreadID  string    `json:"-"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}

func systemPrompt(mailContext string) string {
	return fmt.Sprintf(`You are a helpful AI assistant embedded in an email client app. Use the following context about the email thread to answer the user's questions. Be concise and direct in your responses.

START CONTEXT BLOCK
%s
END OF CONTEXT BLOCK`, mailContext)
}
