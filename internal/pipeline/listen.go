package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
	"gramwatch/internal/export"
	"gramwatch/internal/infrastructure/http/server"
	"gramwatch/internal/sync"
)

const keepaliveInterval = 5 * time.Minute

// Listen runs the live listener until the context is cancelled. The
// metrics/health server runs for the duration, and operational signals
// (init, periodic keepalive, shutdown) are broadcast to all sinks.
type Listen struct {
	listener   *sync.Listener
	dispatcher *export.Dispatcher
	server     *server.Server // optional
	logger     zerolog.Logger
}

type ListenConfig struct {
	Listener   *sync.Listener
	Dispatcher *export.Dispatcher
	Server     *server.Server
	Logger     zerolog.Logger
}

func NewListen(cfg ListenConfig) *Listen {
	return &Listen{
		listener:   cfg.Listener,
		dispatcher: cfg.Dispatcher,
		server:     cfg.Server,
		logger:     cfg.Logger.With().Str("component", "listen").Logger(),
	}
}

func (m *Listen) Name() string { return "listen" }

func (m *Listen) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *Listen) Run(ctx context.Context) error {
	if m.server != nil {
		if err := m.server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := m.server.Shutdown(shutdownCtx); err != nil {
				m.logger.Error().Err(err).Msg("http server shutdown failed")
			}
		}()
	}

	if m.dispatcher != nil {
		m.dispatcher.Broadcast(ctx, &domain.SinkPayload{Kind: domain.PayloadInit}, m.Name())
		defer m.dispatcher.Broadcast(context.WithoutCancel(ctx),
			&domain.SinkPayload{Kind: domain.PayloadShutdown}, m.Name())

		stop := make(chan struct{})
		defer close(stop)
		go m.keepalive(ctx, stop)
	}

	return m.listener.Listen(ctx)
}

func (m *Listen) keepalive(ctx context.Context, stop <-chan struct{}) {
	t := time.NewTicker(keepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.dispatcher.Broadcast(ctx, &domain.SinkPayload{Kind: domain.PayloadKeepalive}, m.Name())
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
