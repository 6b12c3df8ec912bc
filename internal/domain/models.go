package domain

import "time"

// GroupKind identifies the platform constructor behind a group record.
type GroupKind string

const (
	GroupKindChannel GroupKind = "channel"
	GroupKindChat    GroupKind = "chat"
	GroupKindUser    GroupKind = "user"
)

// SenderTypeUser is the sender tag set on messages whose sender resolved
// to a user principal. Messages posted by the channel itself carry no tag.
const SenderTypeUser = "user"

// Group represents a channel, chat or direct-message peer.
// Upserted by platform ID: created on first sighting during a dialog scrape
// or lazily while listening, mutated on rescrape.
type Group struct {
	ID                int64     `gorm:"primaryKey;autoIncrement:false"`
	AccessHash        int64     `gorm:"not null;default:0"`
	Kind              GroupKind `gorm:"size:16;not null"`
	Title             string    `gorm:"size:255"`
	Username          string    `gorm:"size:255;index"`
	Fake              bool      `gorm:"not null;default:false"`
	Restricted        bool      `gorm:"not null;default:false"`
	Scam              bool      `gorm:"not null;default:false"`
	Verified          bool      `gorm:"not null;default:false"`
	Gigagroup         bool      `gorm:"not null;default:false"`
	HasGeo            bool      `gorm:"not null;default:false"`
	ParticipantsCount int       `gorm:"not null;default:0"`
	Avatar            []byte
	AvatarName        string `gorm:"size:255"`
	// AvatarPhotoID is the platform photo id behind Avatar, captured at
	// scrape time so unchanged avatars are not re-downloaded.
	AvatarPhotoID int64  `gorm:"-"`
	AccountPhone  string `gorm:"size:32"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Group) TableName() string {
	return "groups"
}

// User represents a user principal referenced by messages.
// Created lazily when a message references an unknown sender.
type User struct {
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Bot        bool   `gorm:"not null;default:false"`
	Fake       bool   `gorm:"not null;default:false"`
	Scam       bool   `gorm:"not null;default:false"`
	Verified   bool   `gorm:"not null;default:false"`
	Self       bool   `gorm:"not null;default:false"`
	FirstName  string `gorm:"size:255"`
	LastName   string `gorm:"size:255"`
	Username   string `gorm:"size:255;index"`
	Phone      string `gorm:"size:32"`
	Avatar     []byte
	AvatarName string `gorm:"size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (User) TableName() string {
	return "users"
}

// DisplayName renders a human-readable identity for report output.
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return ""
	}
}

// Message is an append-only message row. Platform message IDs are only
// unique within a group, hence the composite primary key. Re-inserting an
// existing (ID, GroupID) pair is a silent no-op.
type Message struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false"`
	GroupID     int64     `gorm:"primaryKey;autoIncrement:false;index"`
	Date        time.Time `gorm:"not null;index"`
	Text        string
	RawText     string
	MediaID     *int64
	FromID      *int64
	SenderType  string `gorm:"size:16"`
	IsReply     bool   `gorm:"not null;default:false"`
	ReplyToID   *int64
	RecipientID *int64
	CreatedAt   time.Time
}

func (Message) TableName() string {
	return "messages"
}

// Media is one classified attachment. Rows live in the owning group's
// shard store and are immutable after insert.
type Media struct {
	ID       int64  `gorm:"primaryKey"`
	GroupID  int64  `gorm:"not null;index"`
	NativeID int64  `gorm:"not null"`
	FileName string `gorm:"size:512"`
	Ext      string `gorm:"size:32"`
	Width    *int
	Height   *int
	Date     time.Time
	MimeType string `gorm:"size:128"`
	Size     int64  `gorm:"not null;default:0"`
	// Title carries the document title, or "<lat>|<long>" for geo points.
	Title     string `gorm:"size:512"`
	OcrText   string
	CreatedAt time.Time
}

func (Media) TableName() string {
	return "media"
}

// IsGeo reports whether the row describes a geo point rather than a file.
func (m *Media) IsGeo() bool {
	return m.MimeType == "application/geo"
}

// IsImage reports whether the stored file renders as an inline image.
func (m *Media) IsImage() bool {
	switch m.MimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

// StateEntry is an arbitrary path-keyed blob with optional expiry,
// used for session checkpoints and short-lived caches.
type StateEntry struct {
	Path      string `gorm:"primaryKey;size:255"`
	Value     string
	CreatedAt time.Time
	ExpiresAt *time.Time `gorm:"index"`
}

func (StateEntry) TableName() string {
	return "state_entries"
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e *StateEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
