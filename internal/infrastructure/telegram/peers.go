package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"gramwatch/internal/domain"
)

// peerID flattens a tg.PeerClass to the bare platform ID.
func peerID(p tg.PeerClass) int64 {
	switch v := p.(type) {
	case *tg.PeerChannel:
		return v.ChannelID
	case *tg.PeerChat:
		return v.ChatID
	case *tg.PeerUser:
		return v.UserID
	}
	return 0
}

// groupFromChat normalizes a channel or basic chat to a Group record.
func groupFromChat(chat tg.ChatClass, accountPhone string) *domain.Group {
	switch v := chat.(type) {
	case *tg.Channel:
		return &domain.Group{
			ID:                v.ID,
			AccessHash:        v.AccessHash,
			Kind:              domain.GroupKindChannel,
			Title:             v.Title,
			Username:          v.Username,
			Fake:              v.Fake,
			Restricted:        v.Restricted,
			Scam:              v.Scam,
			Verified:          v.Verified,
			Gigagroup:         v.Gigagroup,
			HasGeo:            v.HasGeo,
			ParticipantsCount: v.ParticipantsCount,
			AvatarPhotoID:     chatPhotoID(v.Photo),
			AccountPhone:      accountPhone,
		}
	case *tg.Chat:
		return &domain.Group{
			ID:                v.ID,
			Kind:              domain.GroupKindChat,
			Title:             v.Title,
			ParticipantsCount: v.ParticipantsCount,
			AvatarPhotoID:     chatPhotoID(v.Photo),
			AccountPhone:      accountPhone,
		}
	}
	return nil
}

func chatPhotoID(photo tg.ChatPhotoClass) int64 {
	if p, ok := photo.(*tg.ChatPhoto); ok {
		return p.PhotoID
	}
	return 0
}

func userPhotoID(photo tg.UserProfilePhotoClass) int64 {
	if p, ok := photo.(*tg.UserProfilePhoto); ok {
		return p.PhotoID
	}
	return 0
}

// groupFromUser normalizes a direct-message peer to a Group record, so
// one-on-one dialogs flow through the same persistence path as chats.
func groupFromUser(u *tg.User, accountPhone string) *domain.Group {
	title := u.FirstName
	if u.LastName != "" {
		title += " " + u.LastName
	}
	return &domain.Group{
		ID:            u.ID,
		AccessHash:    u.AccessHash,
		Kind:          domain.GroupKindUser,
		Title:         title,
		Username:      u.Username,
		Fake:          u.Fake,
		Scam:          u.Scam,
		Verified:      u.Verified,
		AvatarPhotoID: userPhotoID(u.Photo),
		AccountPhone:  accountPhone,
	}
}

// userFromTG normalizes a platform user.
func userFromTG(u *tg.User) *domain.User {
	return &domain.User{
		ID:        u.ID,
		Bot:       u.Bot,
		Fake:      u.Fake,
		Scam:      u.Scam,
		Verified:  u.Verified,
		Self:      u.Self,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Phone:     u.Phone,
	}
}

// inputPeer rebuilds the platform peer from a stored group record.
func inputPeer(g *domain.Group) tg.InputPeerClass {
	switch g.Kind {
	case domain.GroupKindChannel:
		return &tg.InputPeerChannel{ChannelID: g.ID, AccessHash: g.AccessHash}
	case domain.GroupKindChat:
		return &tg.InputPeerChat{ChatID: g.ID}
	case domain.GroupKindUser:
		return &tg.InputPeerUser{UserID: g.ID, AccessHash: g.AccessHash}
	}
	return &tg.InputPeerEmpty{}
}

// rawFromMessage normalizes one history or update message. users lets the
// sender's bot flag travel with the message; entries may be nil.
// Service messages come out with Service set and no payload.
func rawFromMessage(groupID int64, msg tg.MessageClass, users map[int64]*tg.User) *domain.RawMessage {
	switch m := msg.(type) {
	case *tg.Message:
		raw := &domain.RawMessage{
			ID:      int64(m.ID),
			GroupID: groupID,
			Date:    time.Unix(int64(m.Date), 0).UTC(),
			Text:    renderText(m.Message, m.Entities),
			RawText: m.Message,
		}

		if from, ok := m.GetFromID(); ok {
			if pu, ok := from.(*tg.PeerUser); ok {
				id := pu.UserID
				raw.FromID = &id
				raw.SenderIsUser = true
				if u, ok := users[id]; ok {
					raw.SenderIsBot = u.Bot
				}
			}
		}

		if peer, ok := m.PeerID.(*tg.PeerUser); ok {
			id := peer.UserID
			raw.RecipientID = &id
		}

		if reply, ok := m.GetReplyTo(); ok {
			raw.IsReply = true
			if h, ok := reply.(*tg.MessageReplyHeader); ok {
				id := int64(h.ReplyToMsgID)
				raw.ReplyToID = &id
			}
		}

		if media, ok := m.GetMedia(); ok {
			raw.Attachment = classifyMedia(media, raw.Date)
		}

		return raw

	case *tg.MessageService:
		return &domain.RawMessage{
			ID:      int64(m.ID),
			GroupID: groupID,
			Date:    time.Unix(int64(m.Date), 0).UTC(),
			Service: true,
		}
	}
	return nil
}

// classifyMedia assigns the attachment kind and captures the download
// handle. Unknown constructors come out as AttachmentUnknown so the
// pipeline can record them without downloading.
func classifyMedia(media tg.MessageMediaClass, date time.Time) *domain.Attachment {
	switch v := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := v.Photo.(*tg.Photo)
		if !ok {
			return &domain.Attachment{Kind: domain.AttachmentUnknown, Date: date}
		}
		att := &domain.Attachment{
			Kind:     domain.AttachmentPhoto,
			NativeID: photo.ID,
			Ext:      ".jpg",
			MimeType: "image/jpeg",
			Date:     date,
		}
		thumb := ""
		for _, s := range photo.Sizes {
			switch size := s.(type) {
			case *tg.PhotoSize:
				if int64(size.Size) >= att.Size {
					att.Size = int64(size.Size)
					att.Width = size.W
					att.Height = size.H
					thumb = size.Type
				}
			case *tg.PhotoSizeProgressive:
				max := 0
				for _, n := range size.Sizes {
					if n > max {
						max = n
					}
				}
				if int64(max) >= att.Size {
					att.Size = int64(max)
					att.Width = size.W
					att.Height = size.H
					thumb = size.Type
				}
			}
		}
		att.Ref = &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		}
		return att

	case *tg.MessageMediaDocument:
		doc, ok := v.Document.(*tg.Document)
		if !ok {
			return &domain.Attachment{Kind: domain.AttachmentUnknown, Date: date}
		}
		att := &domain.Attachment{
			Kind:     domain.AttachmentDocument,
			NativeID: doc.ID,
			MimeType: doc.MimeType,
			Size:     doc.Size,
			Date:     date,
			Ref: &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}
		for _, a := range doc.Attributes {
			switch attr := a.(type) {
			case *tg.DocumentAttributeFilename:
				att.FileName = attr.FileName
			case *tg.DocumentAttributeImageSize:
				att.Width = attr.W
				att.Height = attr.H
			case *tg.DocumentAttributeVideo:
				att.Kind = domain.AttachmentVideo
				att.Width = attr.W
				att.Height = attr.H
			case *tg.DocumentAttributeAudio:
				if attr.Voice {
					att.Kind = domain.AttachmentVoice
				}
			case *tg.DocumentAttributeSticker:
				att.Kind = domain.AttachmentSticker
				att.Title = attr.Alt
			}
		}
		return att

	case *tg.MessageMediaGeo:
		point, ok := v.Geo.(*tg.GeoPoint)
		if !ok {
			return &domain.Attachment{Kind: domain.AttachmentUnknown, Date: date}
		}
		return &domain.Attachment{
			Kind: domain.AttachmentGeo,
			Lat:  point.Lat,
			Long: point.Long,
			Date: date,
		}

	case *tg.MessageMediaContact:
		title := v.FirstName
		if v.LastName != "" {
			title += " " + v.LastName
		}
		return &domain.Attachment{
			Kind:  domain.AttachmentContact,
			Title: title + " " + v.PhoneNumber,
			Date:  date,
		}
	}

	return &domain.Attachment{Kind: domain.AttachmentUnknown, Date: date}
}
