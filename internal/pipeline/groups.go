package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
)

// LoadGroups scrapes the account's dialog list and upserts every peer.
// With participant scraping on, each channel's and chat's member list
// is pulled into the user table as well.
type LoadGroups struct {
	client       domain.TelegramClient
	groups       domain.GroupStore
	users        domain.UserStore
	state        domain.StateStore
	avatarTTL    time.Duration
	participants bool
	logger       zerolog.Logger
}

type LoadGroupsConfig struct {
	Client domain.TelegramClient
	Groups domain.GroupStore
	Users  domain.UserStore
	// State caches the downloaded avatar photo id per group; nil turns
	// avatar scraping off.
	State domain.StateStore
	// AvatarTTL bounds the cache entries, forcing a periodic refresh.
	AvatarTTL time.Duration
	// Participants turns on member-list scraping per group.
	Participants bool
	Logger       zerolog.Logger
}

func NewLoadGroups(cfg LoadGroupsConfig) *LoadGroups {
	return &LoadGroups{
		client:       cfg.Client,
		groups:       cfg.Groups,
		users:        cfg.Users,
		state:        cfg.State,
		avatarTTL:    cfg.AvatarTTL,
		participants: cfg.Participants,
		logger:       cfg.Logger.With().Str("component", "load_groups").Logger(),
	}
}

func (m *LoadGroups) Name() string { return "load_groups" }

func (m *LoadGroups) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *LoadGroups) Run(ctx context.Context) error {
	dialogs, err := m.client.FetchDialogs(ctx)
	if err != nil {
		return fmt.Errorf("fetch dialogs: %w", err)
	}

	for i := range dialogs {
		g := &dialogs[i]
		m.syncAvatar(ctx, g)
		if err := m.groups.Upsert(ctx, g); err != nil {
			return fmt.Errorf("upsert group %d: %w", g.ID, err)
		}
		m.logger.Debug().
			Int64("group_id", g.ID).
			Str("kind", string(g.Kind)).
			Str("title", g.Title).
			Msg("group stored")

		if !m.participants || g.Kind == domain.GroupKindUser {
			continue
		}
		members, err := m.client.IterParticipants(ctx, g)
		if err != nil {
			if errors.Is(err, domain.ErrGroupRestricted) {
				m.logger.Warn().
					Int64("group_id", g.ID).
					Str("title", g.Title).
					Msg("member list restricted, skipped")
				continue
			}
			return fmt.Errorf("participants of %d: %w", g.ID, err)
		}
		for j := range members {
			if err := m.users.Upsert(ctx, &members[j]); err != nil {
				return fmt.Errorf("upsert user %d: %w", members[j].ID, err)
			}
		}
	}

	metrics.GetDefaultMetrics().UpdateGroupsTracked(len(dialogs))
	m.logger.Info().Int("groups", len(dialogs)).Msg("dialog scrape finished")
	return nil
}

// syncAvatar fills the group's avatar columns before the upsert. The
// state store remembers the last downloaded photo id per group; while
// the entry is live an unchanged photo keeps the stored bytes instead
// of re-downloading them. Failures are warned, never fatal.
func (m *LoadGroups) syncAvatar(ctx context.Context, g *domain.Group) {
	if m.state == nil || g.AvatarPhotoID == 0 {
		return
	}

	key := fmt.Sprintf("avatar/%d", g.ID)
	current := strconv.FormatInt(g.AvatarPhotoID, 10)
	if cached, err := m.state.Get(ctx, key); err == nil && cached == current {
		if prev, err := m.groups.Get(ctx, g.ID); err == nil {
			g.Avatar = prev.Avatar
			g.AvatarName = prev.AvatarName
			return
		}
	}

	data, name, err := m.client.DownloadAvatar(ctx, g)
	if err != nil {
		m.logger.Warn().Err(err).
			Int64("group_id", g.ID).
			Msg("avatar download failed")
		return
	}
	g.Avatar = data
	g.AvatarName = name
	if err := m.state.Put(ctx, key, current, m.avatarTTL); err != nil {
		m.logger.Warn().Err(err).
			Int64("group_id", g.ID).
			Msg("avatar cache write failed")
	}
}

// ListGroups prints the stored groups as a table.
type ListGroups struct {
	groups domain.GroupStore
	out    io.Writer
}

func NewListGroups(groups domain.GroupStore, out io.Writer) *ListGroups {
	return &ListGroups{groups: groups, out: out}
}

func (m *ListGroups) Name() string { return "list_groups" }

func (m *ListGroups) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *ListGroups) Run(ctx context.Context) error {
	groups, err := m.groups.All(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTITLE\tUSERNAME\tMEMBERS")
	for i := range groups {
		g := &groups[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
			g.ID, g.Kind, g.Title, g.Username, g.ParticipantsCount)
	}
	return w.Flush()
}
