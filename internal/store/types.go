package store

// Chat represents a cached chat row. PeerID is the other participant; the
// engine guarantees at most one visible chat per peer after deduplication.
type Chat struct {
	ChatID             string
	PeerID             string
	PeerName           string
	PeerAvatarURL      string
	IsPinned           bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents a cached message. MsgID is either a server-assigned id
// or a temporary optimistic id (reserved prefix). Status is local-only:
// "sending", "sent", "failed" for own messages, empty once confirmed.
type Message struct {
	ID          int64
	ChatID      string
	MsgID       string
	SenderID    string
	SenderName  string
	Body        string
	MessageType string
	MediaURL    string
	FromMe      bool
	IsRead      bool
	Status      string
	Timestamp   int64
}

// FriendEdge is a directed friendship edge as stored by the backend.
type FriendEdge struct {
	UserID   string
	FriendID string
	Status   string // pending, accepted, declined, blocked
}

// Story represents a cached story. Stories expire 24h after creation and are
// purged by the sweeper once ExpiresAt has passed.
type Story struct {
	StoryID      string
	UserID       string
	MediaURL     string
	MediaType    string
	Caption      string
	LikeCount    int
	CommentCount int
	CreatedAt    int64
	ExpiresAt    int64
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	Body         string
	MessageType  string
	MediaURL     string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}

// ProfileUpdate is a targeted peer-profile change delivered by the change
// feed; it is merged into cached chats without a full refetch.
type ProfileUpdate struct {
	UserID    string
	Username  string
	AvatarURL string
}
