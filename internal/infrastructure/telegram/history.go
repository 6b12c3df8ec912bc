package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
)

const dialogsPageSize = 100

// floodRetry runs fn, honoring one server-mandated FLOOD_WAIT pause.
// A second consecutive flood surfaces ErrFloodWait to the caller so
// per-group recovery can skip the group instead of stalling the run.
func (c *MTProtoClient) floodRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	wait, ok := tgerr.AsFloodWait(err)
	if !ok {
		return err
	}
	metrics.GetDefaultMetrics().RecordFloodWait()
	c.logger.Warn().Dur("wait", wait).Msg("flood wait, pausing")
	if perr := pause(ctx, wait); perr != nil {
		return perr
	}
	if err := fn(ctx); err != nil {
		if _, ok := tgerr.AsFloodWait(err); ok {
			return fmt.Errorf("%w: %s", domain.ErrFloodWait, err)
		}
		return err
	}
	return nil
}

// FetchDialogs walks the full dialog list and returns every peer the
// account can see, normalized to groups. Direct-message peers come back
// as user-kind groups.
func (c *MTProtoClient) FetchDialogs(ctx context.Context) ([]domain.Group, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, err
	}

	var (
		groups     []domain.Group
		seen       = make(map[int64]bool)
		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)

	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		var resp tg.MessagesDialogsClass
		err := c.floodRetry(ctx, func(ctx context.Context) error {
			var err error
			resp, err = api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
				OffsetDate: offsetDate,
				OffsetID:   offsetID,
				OffsetPeer: offsetPeer,
				Limit:      dialogsPageSize,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			chats    []tg.ChatClass
			users    []tg.UserClass
			messages []tg.MessageClass
			lastPage bool
		)
		switch d := resp.(type) {
		case *tg.MessagesDialogs:
			dialogs, chats, users, messages = d.Dialogs, d.Chats, d.Users, d.Messages
			lastPage = true
		case *tg.MessagesDialogsSlice:
			dialogs, chats, users, messages = d.Dialogs, d.Chats, d.Users, d.Messages
			lastPage = len(dialogs) < dialogsPageSize
		default:
			return groups, nil
		}

		chatIndex := make(map[int64]tg.ChatClass, len(chats))
		for _, ch := range chats {
			chatIndex[peerID(chatPeer(ch))] = ch
		}
		userIndex := make(map[int64]*tg.User, len(users))
		for _, u := range users {
			if tu, ok := u.(*tg.User); ok {
				userIndex[tu.ID] = tu
			}
		}

		for _, d := range dialogs {
			dlg, ok := d.(*tg.Dialog)
			if !ok {
				continue
			}
			id := peerID(dlg.Peer)
			if seen[id] {
				continue
			}

			var g *domain.Group
			switch dlg.Peer.(type) {
			case *tg.PeerChannel, *tg.PeerChat:
				if ch, ok := chatIndex[id]; ok {
					g = groupFromChat(ch, c.phoneNumber)
				}
			case *tg.PeerUser:
				if u, ok := userIndex[id]; ok {
					g = groupFromUser(u, c.phoneNumber)
				}
			}
			if g != nil {
				seen[id] = true
				groups = append(groups, *g)
			}
		}

		if lastPage || len(dialogs) == 0 {
			break
		}

		last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
		if !ok {
			break
		}
		offsetID = last.TopMessage
		offsetPeer = &tg.InputPeerEmpty{}
		if ch, ok := chatIndex[peerID(last.Peer)]; ok {
			if g := groupFromChat(ch, c.phoneNumber); g != nil {
				offsetPeer = inputPeer(g)
			}
		} else if u, ok := userIndex[peerID(last.Peer)]; ok {
			offsetPeer = inputPeer(groupFromUser(u, c.phoneNumber))
		}
		for _, m := range messages {
			if msg, ok := m.(*tg.Message); ok && msg.ID == last.TopMessage {
				offsetDate = msg.Date
				break
			}
		}
	}

	c.logger.Debug().Int("groups", len(groups)).Msg("dialogs fetched")
	return groups, nil
}

// chatPeer builds the peer for a chat-class entity, for indexing.
func chatPeer(ch tg.ChatClass) tg.PeerClass {
	switch v := ch.(type) {
	case *tg.Channel:
		return &tg.PeerChannel{ChannelID: v.ID}
	case *tg.ChannelForbidden:
		return &tg.PeerChannel{ChannelID: v.ID}
	case *tg.Chat:
		return &tg.PeerChat{ChatID: v.ID}
	case *tg.ChatForbidden:
		return &tg.PeerChat{ChatID: v.ID}
	}
	return &tg.PeerChat{}
}

// IterMessages returns up to limit messages with IDs strictly greater
// than minID, oldest first. The negative AddOffset walks the history
// forward from the floor instead of backward from the head.
func (c *MTProtoClient) IterMessages(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var resp tg.MessagesMessagesClass
	err = c.floodRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:      inputPeer(group),
			OffsetID:  int(minID),
			AddOffset: -limit,
			Limit:     limit,
			MinID:     int(minID),
		})
		return err
	})
	if err != nil {
		if tgerr.Is(err, "CHANNEL_PRIVATE") {
			return nil, fmt.Errorf("%w: group %d", domain.ErrGroupRestricted, group.ID)
		}
		return nil, fmt.Errorf("failed to get history for group %d: %w", group.ID, err)
	}

	var messages []tg.MessageClass
	var users []tg.UserClass
	switch m := resp.(type) {
	case *tg.MessagesChannelMessages:
		messages, users = m.Messages, m.Users
	case *tg.MessagesMessages:
		messages, users = m.Messages, m.Users
	case *tg.MessagesMessagesSlice:
		messages, users = m.Messages, m.Users
	default:
		return nil, nil
	}

	userIndex := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if tu, ok := u.(*tg.User); ok {
			userIndex[tu.ID] = tu
		}
	}

	// History arrives newest first; reverse while filtering the floor.
	out := make([]domain.RawMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		raw := rawFromMessage(group.ID, messages[i], userIndex)
		if raw == nil || raw.ID <= minID {
			continue
		}
		out = append(out, *raw)
	}
	return out, nil
}

// IterParticipants lists the group's members. Channels page through the
// participants API; basic chats read the full-chat snapshot; a
// user-kind group is its own sole participant.
func (c *MTProtoClient) IterParticipants(ctx context.Context, group *domain.Group) ([]domain.User, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, err
	}

	switch group.Kind {
	case domain.GroupKindChannel:
		return c.channelParticipants(ctx, api, group)

	case domain.GroupKindChat:
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		full, err := api.MessagesGetFullChat(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get full chat %d: %w", group.ID, err)
		}
		var out []domain.User
		for _, u := range full.Users {
			if tu, ok := u.(*tg.User); ok {
				out = append(out, *userFromTG(tu))
			}
		}
		return out, nil

	case domain.GroupKindUser:
		u, err := c.ResolveUser(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		return []domain.User{*u}, nil
	}
	return nil, nil
}

func (c *MTProtoClient) channelParticipants(ctx context.Context, api *tg.Client, group *domain.Group) ([]domain.User, error) {
	const pageSize = 200
	input := &tg.InputChannel{ChannelID: group.ID, AccessHash: group.AccessHash}

	var out []domain.User
	for offset := 0; ; offset += pageSize {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		var resp tg.ChannelsChannelParticipantsClass
		err := c.floodRetry(ctx, func(ctx context.Context) error {
			var err error
			resp, err = api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
				Channel: input,
				Filter:  &tg.ChannelParticipantsRecent{},
				Offset:  offset,
				Limit:   pageSize,
			})
			return err
		})
		if err != nil {
			if tgerr.Is(err, "CHAT_ADMIN_REQUIRED") || tgerr.Is(err, "CHANNEL_PRIVATE") {
				return nil, fmt.Errorf("%w: group %d", domain.ErrGroupRestricted, group.ID)
			}
			return nil, fmt.Errorf("failed to get participants for group %d: %w", group.ID, err)
		}

		page, ok := resp.(*tg.ChannelsChannelParticipants)
		if !ok {
			break
		}
		for _, u := range page.Users {
			if tu, ok := u.(*tg.User); ok {
				out = append(out, *userFromTG(tu))
			}
		}
		if len(page.Participants) < pageSize {
			break
		}
	}
	return out, nil
}

// ResolveGroup fetches the full definition of a group by platform ID.
// The dialog list is the only place the access hash can be recovered
// from a bare ID, so unknown groups are found by scanning it.
func (c *MTProtoClient) ResolveGroup(ctx context.Context, groupID int64) (*domain.Group, error) {
	groups, err := c.FetchDialogs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].ID == groupID {
			return &groups[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrGroupNotFound, groupID)
}

// ResolveUser fetches the full definition of a user by platform ID.
func (c *MTProtoClient) ResolveUser(ctx context.Context, userID int64) (*domain.User, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	res, err := api.UsersGetUsers(ctx, []tg.InputUserClass{
		&tg.InputUser{UserID: userID},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %s", domain.ErrUserNotFound, userID, err)
	}
	for _, u := range res {
		if tu, ok := u.(*tg.User); ok && tu.ID == userID {
			return userFromTG(tu), nil
		}
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrUserNotFound, userID)
}
