package domain

import "time"

// AttachmentKind is the tagged variant over inbound attachment payloads.
// The client adapter assigns a kind at the ingestion boundary; nothing
// downstream inspects platform constructors.
type AttachmentKind int

const (
	AttachmentNone AttachmentKind = iota
	AttachmentPhoto
	AttachmentDocument
	AttachmentSticker
	AttachmentVideo
	AttachmentVoice
	AttachmentGeo
	AttachmentContact
	AttachmentUnknown
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentNone:
		return "none"
	case AttachmentPhoto:
		return "photo"
	case AttachmentDocument:
		return "document"
	case AttachmentSticker:
		return "sticker"
	case AttachmentVideo:
		return "video"
	case AttachmentVoice:
		return "voice"
	case AttachmentGeo:
		return "geo"
	case AttachmentContact:
		return "contact"
	default:
		return "unknown"
	}
}

// Attachment is the normalized view of a message's media payload.
// Ref is an opaque handle the client adapter understands when asked to
// download the underlying bytes.
type Attachment struct {
	Kind     AttachmentKind
	NativeID int64
	FileName string
	Ext      string
	MimeType string
	Size     int64
	Width    int
	Height   int
	Lat      float64
	Long     float64
	Title    string
	Date     time.Time
	Ref      any
}

// RawMessage is the normalized inbound message shape produced by the
// client adapter. Entity unions (Channel/Chat/User peers) never cross
// this boundary.
type RawMessage struct {
	ID           int64
	GroupID      int64
	Date         time.Time
	Text         string
	RawText      string
	FromID       *int64
	SenderIsUser bool
	SenderIsBot  bool
	IsReply      bool
	ReplyToID    *int64
	RecipientID  *int64
	Service      bool
	Attachment   *Attachment
}
