package store

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation mirrors a remote conversation record.
type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Pinned    bool   `json:"pinned"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Message mirrors a remote message record. Once saved (remote or queued)
// a message is immutable; edits create new messages.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// QueuedStatus is the delivery state of a queued message.
type QueuedStatus string

const (
	// StatusPending marks an entry awaiting delivery.
	StatusPending QueuedStatus = "pending"
	// StatusProcessing marks an entry with a delivery attempt in flight.
	StatusProcessing QueuedStatus = "processing"
	// StatusFailed marks an entry that exhausted its retry budget. It is
	// never retried automatically.
	StatusFailed QueuedStatus = "failed"
)

// QueuedMessage is a transient shadow of a not-yet-persisted Message. Its
// ID doubles as the temporary message id shown to the UI until the server
// assigns one.
type QueuedMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	Timestamp      int64        `json:"timestamp"`
	RetryCount     int          `json:"retry_count"`
	Status         QueuedStatus `json:"status"`
	Error          string       `json:"error,omitempty"`
}
