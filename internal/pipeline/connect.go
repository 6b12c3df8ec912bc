package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

// Connect establishes the Telegram session, walking the interactive
// auth flow when no stored session exists.
type Connect struct {
	client domain.TelegramClient
	logger zerolog.Logger
}

func NewConnect(client domain.TelegramClient, logger zerolog.Logger) *Connect {
	return &Connect{client: client, logger: logger}
}

func (m *Connect) Name() string { return "connect" }

func (m *Connect) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *Connect) Run(ctx context.Context) error {
	if m.client.IsConnected() {
		return nil
	}
	return m.client.Connect(ctx)
}
