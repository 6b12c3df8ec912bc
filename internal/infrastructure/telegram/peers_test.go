package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramwatch/internal/domain"
)

func TestGroupFromChat_Channel(t *testing.T) {
	g := groupFromChat(&tg.Channel{
		ID:                2001,
		AccessHash:        777,
		Title:             "Signal Watch",
		Username:          "signalwatch",
		Verified:          true,
		ParticipantsCount: 1500,
		Photo:             &tg.ChatPhoto{PhotoID: 424242},
	}, "+15550001111")

	require.NotNil(t, g)
	assert.Equal(t, int64(2001), g.ID)
	assert.Equal(t, int64(777), g.AccessHash)
	assert.Equal(t, domain.GroupKindChannel, g.Kind)
	assert.Equal(t, "Signal Watch", g.Title)
	assert.True(t, g.Verified)
	assert.Equal(t, 1500, g.ParticipantsCount)
	assert.Equal(t, int64(424242), g.AvatarPhotoID)
	assert.Equal(t, "+15550001111", g.AccountPhone)
}

func TestGroupFromChat_BasicChat(t *testing.T) {
	g := groupFromChat(&tg.Chat{ID: 42, Title: "ops", ParticipantsCount: 7}, "+1")

	require.NotNil(t, g)
	assert.Equal(t, domain.GroupKindChat, g.Kind)
	assert.Equal(t, int64(0), g.AccessHash)
}

func TestGroupFromUser(t *testing.T) {
	g := groupFromUser(&tg.User{
		ID:         9,
		AccessHash: 3,
		FirstName:  "Ada",
		LastName:   "L",
		Username:   "ada",
	}, "+1")

	assert.Equal(t, domain.GroupKindUser, g.Kind)
	assert.Equal(t, "Ada L", g.Title)
	assert.Equal(t, "ada", g.Username)
}

func TestRawFromMessage_SenderAndReply(t *testing.T) {
	msg := &tg.Message{
		ID:      100,
		Date:    int(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix()),
		Message: "hello",
		PeerID:  &tg.PeerChannel{ChannelID: 2001},
	}
	msg.SetFromID(&tg.PeerUser{UserID: 55})
	msg.SetReplyTo(&tg.MessageReplyHeader{ReplyToMsgID: 90})

	users := map[int64]*tg.User{55: {ID: 55, Bot: true}}
	raw := rawFromMessage(2001, msg, users)

	require.NotNil(t, raw)
	assert.Equal(t, int64(100), raw.ID)
	assert.Equal(t, int64(2001), raw.GroupID)
	require.NotNil(t, raw.FromID)
	assert.Equal(t, int64(55), *raw.FromID)
	assert.True(t, raw.SenderIsUser)
	assert.True(t, raw.SenderIsBot)
	assert.True(t, raw.IsReply)
	require.NotNil(t, raw.ReplyToID)
	assert.Equal(t, int64(90), *raw.ReplyToID)
	assert.False(t, raw.Service)
}

func TestRawFromMessage_Service(t *testing.T) {
	raw := rawFromMessage(1, &tg.MessageService{ID: 7, Date: 1000}, nil)

	require.NotNil(t, raw)
	assert.True(t, raw.Service)
	assert.Empty(t, raw.Text)
	assert.Nil(t, raw.Attachment)
}

func TestClassifyMedia_Photo(t *testing.T) {
	now := time.Now().UTC()
	att := classifyMedia(&tg.MessageMediaPhoto{
		Photo: &tg.Photo{
			ID:         333,
			AccessHash: 11,
			Sizes: []tg.PhotoSizeClass{
				&tg.PhotoSize{Type: "m", W: 320, H: 240, Size: 2000},
				&tg.PhotoSize{Type: "x", W: 1280, H: 960, Size: 90000},
			},
		},
	}, now)

	require.NotNil(t, att)
	assert.Equal(t, domain.AttachmentPhoto, att.Kind)
	assert.Equal(t, int64(333), att.NativeID)
	assert.Equal(t, ".jpg", att.Ext)
	assert.Equal(t, int64(90000), att.Size)
	assert.Equal(t, 1280, att.Width)

	loc, ok := att.Ref.(*tg.InputPhotoFileLocation)
	require.True(t, ok)
	assert.Equal(t, "x", loc.ThumbSize)
}

func TestClassifyMedia_DocumentKinds(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name  string
		attrs []tg.DocumentAttributeClass
		mime  string
		want  domain.AttachmentKind
	}{
		{"plain document", []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: "dump.pdf"}}, "application/pdf", domain.AttachmentDocument},
		{"video", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{W: 640, H: 480}}, "video/mp4", domain.AttachmentVideo},
		{"voice note", []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true}}, "audio/ogg", domain.AttachmentVoice},
		{"sticker", []tg.DocumentAttributeClass{&tg.DocumentAttributeSticker{Alt: ":)"}}, "image/webp", domain.AttachmentSticker},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			att := classifyMedia(&tg.MessageMediaDocument{
				Document: &tg.Document{ID: 1, MimeType: tc.mime, Size: 10, Attributes: tc.attrs},
			}, now)
			require.NotNil(t, att)
			assert.Equal(t, tc.want, att.Kind)
		})
	}
}

func TestClassifyMedia_Geo(t *testing.T) {
	att := classifyMedia(&tg.MessageMediaGeo{
		Geo: &tg.GeoPoint{Lat: 59.93, Long: 30.31},
	}, time.Now())

	require.NotNil(t, att)
	assert.Equal(t, domain.AttachmentGeo, att.Kind)
	assert.InDelta(t, 59.93, att.Lat, 0.001)
	assert.InDelta(t, 30.31, att.Long, 0.001)
}

func TestClassifyMedia_Contact(t *testing.T) {
	att := classifyMedia(&tg.MessageMediaContact{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		PhoneNumber: "+4400000000",
	}, time.Now())

	require.NotNil(t, att)
	assert.Equal(t, domain.AttachmentContact, att.Kind)
	assert.Equal(t, "Ada Lovelace +4400000000", att.Title)
}

func TestClassifyMedia_Unknown(t *testing.T) {
	att := classifyMedia(&tg.MessageMediaDice{Value: 4}, time.Now())

	require.NotNil(t, att)
	assert.Equal(t, domain.AttachmentUnknown, att.Kind)
}

func TestRenderText(t *testing.T) {
	t.Run("no entities", func(t *testing.T) {
		assert.Equal(t, "plain", renderText("plain", nil))
	})

	t.Run("bold", func(t *testing.T) {
		got := renderText("alert now", []tg.MessageEntityClass{
			&tg.MessageEntityBold{Offset: 0, Length: 5},
		})
		assert.Equal(t, "**alert** now", got)
	})

	t.Run("text url", func(t *testing.T) {
		got := renderText("see here", []tg.MessageEntityClass{
			&tg.MessageEntityTextURL{Offset: 4, Length: 4, URL: "https://example.org"},
		})
		assert.Equal(t, "see [here](https://example.org)", got)
	})

	t.Run("out of range entity ignored", func(t *testing.T) {
		got := renderText("ok", []tg.MessageEntityClass{
			&tg.MessageEntityBold{Offset: 1, Length: 50},
		})
		assert.Equal(t, "ok", got)
	})
}
