package domain

import "time"

type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
	PlanElite   Plan = "elite"
)

// Restricted reports whether the plan is subject to message quotas and
// content policy. Only the lowest tier is.
func (p Plan) Restricted() bool {
	return p == PlanBasic
}

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindMedia MessageKind = "media"
)

type MediaFile struct {
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
	Size         int64  `json:"size"`
}

type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	Media      []MediaFile `json:"media,omitempty"`
	IsRead     bool        `json:"is_read"`
	ReadAt     *time.Time  `json:"read_at,omitempty"`
	IsEdited   bool        `json:"is_edited"`
	EditedAt   *time.Time  `json:"edited_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Valid checks the content invariant enforced before a message is accepted:
// text messages need non-empty content, media messages need at least one
// attachment or non-empty content.
func (m Message) Valid() bool {
	switch m.Kind {
	case MessageKindText:
		return m.Content != ""
	case MessageKindMedia:
		return len(m.Media) > 0 || m.Content != ""
	default:
		return false
	}
}

type ChatUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Plan  Plan   `json:"plan"`
}

type Conversation struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	LastMessage Message `json:"last_message"`
}

// PolicyContext is the per-send admission input: the sender's plan and how
// many messages the sender has already sent to this receiver.
type PolicyContext struct {
	Plan      Plan
	SentCount int64
}
