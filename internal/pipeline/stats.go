package pipeline

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

// Stats prints per-group row counts.
type Stats struct {
	groups   domain.GroupStore
	messages domain.MessageStore
	media    domain.MediaStore
	out      io.Writer
}

func NewStats(groups domain.GroupStore, messages domain.MessageStore, media domain.MediaStore, out io.Writer) *Stats {
	return &Stats{groups: groups, messages: messages, media: media, out: out}
}

func (m *Stats) Name() string { return "stats" }

func (m *Stats) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *Stats) Run(ctx context.Context) error {
	groups, err := m.groups.All(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tMEDIA\tLAST_ID")
	var totalMsgs, totalMedia int64
	for i := range groups {
		g := &groups[i]
		msgs, err := m.messages.Count(ctx, g.ID)
		if err != nil {
			return err
		}
		media, err := m.media.Count(ctx, g.ID)
		if err != nil {
			return err
		}
		maxID, err := m.messages.MaxID(ctx, g.ID)
		if err != nil {
			return err
		}
		totalMsgs += msgs
		totalMedia += media
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", g.ID, g.Title, msgs, media, maxID)
	}
	fmt.Fprintf(w, "TOTAL\t%d groups\t%d\t%d\t\n", len(groups), totalMsgs, totalMedia)
	return w.Flush()
}
