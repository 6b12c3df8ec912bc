// Package telegram adapts the gotd MTProto client to the domain
// TelegramClient contract. All platform entity unions are normalized
// here; nothing outside this package sees tg.* types.
package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
	"gramwatch/internal/utils"
)

// MTProtoClient implements domain.TelegramClient on gotd/td.
type MTProtoClient struct {
	client *telegram.Client

	apiID   int
	apiHash string

	sessionStorage *FileSessionStorage
	phoneNumber    string

	// Live update plumbing. The gaps manager recovers missed updates
	// from the persisted pts/qts state before streaming new ones.
	dispatcher tg.UpdateDispatcher
	gaps       *updates.Manager
	handler    domain.NewMessageHandler
	selfID     int64

	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{}

	logger zerolog.Logger

	api *tg.Client

	rateLimiter *rate.Limiter
}

// MTProtoClientConfig holds construction parameters for MTProtoClient.
type MTProtoClientConfig struct {
	APIID             int
	APIHash           string
	PhoneNumber       string
	SessionDir        string
	RequestsPerSecond float64
	// StateDB persists the update-gap state between runs. Required.
	StateDB *gorm.DB
	Logger  zerolog.Logger
}

// NewMTProtoClient creates a new MTProto client instance.
func NewMTProtoClient(cfg MTProtoClientConfig) (*MTProtoClient, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}
	if cfg.PhoneNumber == "" {
		return nil, fmt.Errorf("PhoneNumber is required")
	}
	if cfg.StateDB == nil {
		return nil, fmt.Errorf("StateDB is required")
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./sessions"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}

	sessionStorage, err := NewFileSessionStorage(cfg.SessionDir, cfg.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	maskedPhone := utils.MaskPhoneNumber(cfg.PhoneNumber)
	logger := cfg.Logger.With().Str("component", "mtproto_client").Str("phone", maskedPhone).Logger()

	gapState, err := NewGapStateStorage(cfg.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare gap state storage: %w", err)
	}

	c := &MTProtoClient{
		apiID:          cfg.APIID,
		apiHash:        cfg.APIHash,
		phoneNumber:    cfg.PhoneNumber,
		sessionStorage: sessionStorage,
		logger:         logger,
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
	}

	c.dispatcher = tg.NewUpdateDispatcher()
	c.gaps = updates.New(updates.Config{
		Handler: c.dispatcher,
		Storage: gapState,
	})

	return c, nil
}

// Connect establishes the session, authenticating interactively when no
// stored session exists. The caller should bound the context; a few
// minutes leaves room for code entry on first login.
func (c *MTProtoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already connected")
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return fmt.Errorf("disconnect in progress, cannot connect")
	}
	defer c.mu.Unlock()

	c.logger.Info().Msg("connecting to Telegram")

	c.client = telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: c.sessionStorage,
		UpdateHandler:  c.gaps,
	})

	clientCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelFunc = cancel

	readyChan := make(chan struct{})
	errChan := make(chan error, 1)
	started := make(chan struct{})
	c.runDone = make(chan struct{})

	go func() {
		defer close(c.runDone)
		close(started)
		err := c.client.Run(clientCtx, func(ctx context.Context) error {
			c.api = c.client.API()

			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to check auth status: %w", err)
			}

			if !status.Authorized {
				c.logger.Info().Msg("not authorized, starting authentication")
				if err := c.authenticateWithRetry(ctx, 3); err != nil {
					c.logger.Error().Err(err).Msg("authentication failed")
					return domain.ErrAuthenticationFailed
				}
			} else {
				// Re-establishing a stored session is a reconnection of
				// the account; first-ever logins authenticate above.
				metrics.GetDefaultMetrics().RecordReconnection()
				c.logger.Info().Msg("session restored from storage")
			}

			self, err := c.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve self: %w", err)
			}
			c.selfID = self.ID

			c.connected = true
			c.logger.Info().Msg("successfully connected to Telegram")

			close(readyChan)

			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case errChan <- err:
		default:
		}
	}()

	<-started

	select {
	case <-readyChan:
		return nil
	case err := <-errChan:
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Disconnect tears the session down, waiting for the run goroutine to
// stop within the caller's context. The session file is saved by the
// underlying client before shutdown. Safe to call repeatedly.
func (c *MTProtoClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()

	if c.disconnecting {
		c.mu.Unlock()
		c.logger.Debug().Msg("disconnect already in progress")
		return nil
	}
	if !c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already disconnected")
		return nil
	}

	c.logger.Info().Msg("disconnecting from Telegram")

	c.disconnecting = true
	cancelFunc := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()

		if runDone != nil {
			select {
			case <-runDone:
				c.logger.Debug().Msg("client stopped gracefully")
			case <-ctx.Done():
				c.logger.Warn().Msg("disconnect timeout reached while waiting for client shutdown")
			}
		}
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	c.logger.Info().Msg("successfully disconnected from Telegram")
	return nil
}

// IsConnected reports whether a live session is established.
func (c *MTProtoClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// apiClient returns the raw API handle after a connectivity check.
func (c *MTProtoClient) apiClient() (*tg.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.api == nil {
		return nil, domain.ErrNotConnected
	}
	return c.api, nil
}

// wait applies the shared rate limit before an outbound API call.
func (c *MTProtoClient) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return nil
}

// pause sleeps for d unless the context ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure MTProtoClient implements domain.TelegramClient interface
var _ domain.TelegramClient = (*MTProtoClient)(nil)
