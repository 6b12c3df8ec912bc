package telegram

import (
	"context"

	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"gramwatch/internal/domain"
)

// OnNewMessage registers the live-listen handler. Must be called before
// RunUntilCancelled; later registrations replace the handler.
func (c *MTProtoClient) OnNewMessage(h domain.NewMessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	c.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.dispatch(ctx, u.Message, e)
	})
	c.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.dispatch(ctx, u.Message, e)
	})
}

// dispatch normalizes one live update and hands it to the handler.
// Handler errors are logged and swallowed so one bad message cannot
// stall the update stream.
func (c *MTProtoClient) dispatch(ctx context.Context, msg tg.MessageClass, e tg.Entities) error {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return nil
	}

	m, ok := msg.(*tg.Message)
	if !ok {
		return nil
	}

	groupID := peerID(m.PeerID)
	// Direct messages arrive with the counterparty as peer; outgoing
	// copies keep the same dialog ID.
	raw := rawFromMessage(groupID, m, e.Users)
	if raw == nil {
		return nil
	}

	if err := h(ctx, raw); err != nil {
		c.logger.Error().Err(err).
			Int64("group_id", raw.GroupID).
			Int64("message_id", raw.ID).
			Msg("live message handler failed")
	}
	return nil
}

// CatchUp verifies the stored update state exists so the gap engine can
// replay everything missed since the last disconnect when the
// subscription starts. A fresh account has nothing to replay.
func (c *MTProtoClient) CatchUp(ctx context.Context) error {
	c.mu.RLock()
	connected := c.connected
	selfID := c.selfID
	c.mu.RUnlock()
	if !connected {
		return domain.ErrNotConnected
	}

	c.logger.Info().Int64("self_id", selfID).Msg("update state ready, missed events replay on subscribe")
	return nil
}

// RunUntilCancelled blocks on the update subscription until the context
// is cancelled. The gap engine first fetches the difference since the
// persisted state, then streams live updates into the dispatcher.
func (c *MTProtoClient) RunUntilCancelled(ctx context.Context) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}

	c.mu.RLock()
	selfID := c.selfID
	c.mu.RUnlock()

	c.logger.Info().Msg("listening for updates")
	err = c.gaps.Run(ctx, api, selfID, updates.AuthOptions{})
	if ctx.Err() != nil {
		c.logger.Info().Msg("update subscription stopped")
		return nil
	}
	return err
}
