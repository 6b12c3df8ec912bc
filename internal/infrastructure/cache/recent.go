package cache

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog"
)

// RecentMessages tracks the last N message IDs seen per group. The live
// listener uses it to discard updates that arrive twice, once through
// the dispatcher and once through gap recovery replay.
type RecentMessages struct {
	data       map[int64]*groupMessages
	mu         sync.Mutex
	maxPerChan int
	logger     zerolog.Logger
}

// groupMessages holds recent message IDs for a single group
type groupMessages struct {
	ids *list.List              // Ordered list of message IDs (newest at front)
	set map[int64]*list.Element // Fast lookup for deduplication
}

// NewRecentMessages creates a new RecentMessages cache
func NewRecentMessages(maxPerGroup int, logger zerolog.Logger) *RecentMessages {
	if maxPerGroup <= 0 {
		maxPerGroup = 100 // Default
	}
	return &RecentMessages{
		data:       make(map[int64]*groupMessages),
		maxPerChan: maxPerGroup,
		logger:     logger.With().Str("component", "recent_messages_cache").Logger(),
	}
}

// Seen records the message ID and reports whether it was already
// present. Oldest entries are evicted when the per-group limit is hit.
func (c *RecentMessages) Seen(groupID, messageID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	gm, exists := c.data[groupID]
	if !exists {
		gm = &groupMessages{
			ids: list.New(),
			set: make(map[int64]*list.Element),
		}
		c.data[groupID] = gm
	}

	if _, found := gm.set[messageID]; found {
		return true
	}

	elem := gm.ids.PushFront(messageID)
	gm.set[messageID] = elem

	for gm.ids.Len() > c.maxPerChan {
		oldest := gm.ids.Back()
		gm.ids.Remove(oldest)
		delete(gm.set, oldest.Value.(int64))
	}
	return false
}

// Forget drops all tracked IDs for a group
func (c *RecentMessages) Forget(groupID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, groupID)
	c.logger.Debug().
		Int64("group_id", groupID).
		Msg("dropped group from cache")
}
