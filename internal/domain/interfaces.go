package domain

import (
	"context"
	"time"
)

// NewMessageHandler receives normalized messages while listening live.
type NewMessageHandler func(ctx context.Context, msg *RawMessage) error

// TelegramClient defines the capabilities the pipeline needs from the
// platform client. Any adapter exposing them is substitutable; the core
// never touches platform types directly.
type TelegramClient interface {
	// Connect establishes the session, authenticating interactively when
	// no stored session exists. The context bounds the whole handshake.
	Connect(ctx context.Context) error

	// Disconnect tears the session down; the context bounds the graceful
	// shutdown window.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether a live session is established.
	IsConnected() bool

	// FetchDialogs lists all groups visible to the account, normalized.
	FetchDialogs(ctx context.Context) ([]Group, error)

	// IterMessages returns up to limit messages with IDs strictly greater
	// than minID, ordered oldest to newest. minID 0 starts from the
	// beginning of the group's history.
	IterMessages(ctx context.Context, group *Group, minID int64, limit int) ([]RawMessage, error)

	// IterParticipants lists the group's members, normalized to users.
	IterParticipants(ctx context.Context, group *Group) ([]User, error)

	// ResolveGroup fetches the full definition of a group by platform ID.
	ResolveGroup(ctx context.Context, groupID int64) (*Group, error)

	// ResolveUser fetches the full definition of a user by platform ID.
	ResolveUser(ctx context.Context, userID int64) (*User, error)

	// DownloadAvatar fetches the group's current profile photo, returning
	// the image bytes and a storage file name. Callers should check
	// AvatarPhotoID first; a peer without a photo yields an error.
	DownloadAvatar(ctx context.Context, group *Group) ([]byte, string, error)

	// DownloadAttachment fetches the attachment bytes to destPath and
	// returns the final path, which may carry a different extension once
	// the concrete format is known.
	DownloadAttachment(ctx context.Context, att *Attachment, destPath string) (string, error)

	// OnNewMessage registers the live-listen handler. Must be called
	// before RunUntilCancelled.
	OnNewMessage(h NewMessageHandler)

	// CatchUp replays events missed since the last disconnect.
	CatchUp(ctx context.Context) error

	// RunUntilCancelled blocks on the event subscription until the
	// context is cancelled, then detaches the handler.
	RunUntilCancelled(ctx context.Context) error
}

// GroupStore persists group records, upserted by platform ID.
type GroupStore interface {
	Upsert(ctx context.Context, g *Group) error
	Get(ctx context.Context, id int64) (*Group, error)
	ByUsername(ctx context.Context, username string) (*Group, error)
	All(ctx context.Context) ([]Group, error)
}

// UserStore persists user records, upserted by platform ID.
type UserStore interface {
	Upsert(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
}

// MessageStore persists append-only message rows.
type MessageStore interface {
	// Insert adds the row; a duplicate (ID, GroupID) is a silent no-op.
	// The bool reports whether a new row was actually written.
	Insert(ctx context.Context, m *Message) (bool, error)

	// MaxID returns the highest persisted message ID for the group, or 0.
	MaxID(ctx context.Context, groupID int64) (int64, error)

	// ForGroup loads the group's messages newer than since, ordered by
	// timestamp ascending or descending.
	ForGroup(ctx context.Context, groupID int64, since time.Time, ascending bool) ([]Message, error)

	// Count returns the number of persisted rows for the group.
	Count(ctx context.Context, groupID int64) (int64, error)

	// DeleteOlderThan removes rows older than cutoff and returns the
	// removed rows so callers can release their media.
	DeleteOlderThan(ctx context.Context, groupID int64, cutoff time.Time) ([]Message, error)
}

// MediaStore persists media rows in per-group shard stores, so each
// group's retention can be managed independently.
type MediaStore interface {
	Insert(ctx context.Context, m *Media) (int64, error)
	Get(ctx context.Context, groupID, id int64) (*Media, error)
	Delete(ctx context.Context, groupID, id int64) error
	Count(ctx context.Context, groupID int64) (int64, error)
	Close() error
}

// StateStore holds path-keyed blobs with optional TTL.
type StateStore interface {
	Put(ctx context.Context, path, value string, ttl time.Duration) error
	Get(ctx context.Context, path string) (string, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// PayloadKind distinguishes finder-rule matches from operational signals.
type PayloadKind int

const (
	PayloadMatch PayloadKind = iota
	PayloadKeepalive
	PayloadInit
	PayloadShutdown
	PayloadNewGroup
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadMatch:
		return "match"
	case PayloadKeepalive:
		return "keepalive"
	case PayloadInit:
		return "init"
	case PayloadShutdown:
		return "shutdown"
	case PayloadNewGroup:
		return "new_group"
	default:
		return "unknown"
	}
}

// SinkPayload is the unit handed to export/notification sinks.
type SinkPayload struct {
	Kind    PayloadKind
	RuleID  string
	Source  string
	Message *Message
	Group   *Group
	Sender  *User
	Note    string
	At      time.Time
}

// Sink is one export/notification destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, p *SinkPayload) error
	Close(ctx context.Context) error
}
