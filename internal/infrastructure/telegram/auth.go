package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// CodeProvider supplies the login code sent by the platform.
type CodeProvider interface {
	GetCode(ctx context.Context) (string, error)
}

// PasswordProvider supplies the 2FA password when the account has one.
type PasswordProvider interface {
	GetPassword(ctx context.Context) (string, error)
}

// ConsoleCodeProvider reads the login code from stdin.
type ConsoleCodeProvider struct{}

func (p *ConsoleCodeProvider) GetCode(ctx context.Context) (string, error) {
	fmt.Print("Enter authentication code: ")

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(os.Stdin)
		code, err := reader.ReadString('\n')
		if err != nil {
			errChan <- fmt.Errorf("failed to read code: %w", err)
			return
		}
		codeChan <- strings.TrimSpace(code)
	}()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("code input cancelled: %w", ctx.Err())
	case <-time.After(2 * time.Minute):
		return "", fmt.Errorf("code input timeout")
	}
}

// ConsolePasswordProvider reads the 2FA password from stdin.
type ConsolePasswordProvider struct{}

func (p *ConsolePasswordProvider) GetPassword(ctx context.Context) (string, error) {
	fmt.Print("Enter 2FA password: ")

	passwordChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			errChan <- fmt.Errorf("failed to read password: %w", err)
			return
		}
		passwordChan <- strings.TrimSpace(password)
	}()

	select {
	case password := <-passwordChan:
		return password, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("password input cancelled: %w", ctx.Err())
	case <-time.After(2 * time.Minute):
		return "", fmt.Errorf("password input timeout")
	}
}

// authenticateWithRetry performs authentication with backoff. FloodWait
// waits the server-mandated duration; a revoked session is deleted and
// retried fresh.
func (c *MTProtoClient) authenticateWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error
	baseDelay := 1 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := c.performAuthentication(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if isNonRetryableError(err) {
			c.logger.Error().Err(err).Msg("non-retryable authentication error")
			return fmt.Errorf("authentication failed with non-retryable error: %w", err)
		}

		var floodWait *tgerr.Error
		if errors.As(err, &floodWait) && floodWait.Code == 420 {
			waitDuration := time.Duration(floodWait.Argument) * time.Second
			c.logger.Warn().
				Int("attempt", attempt+1).
				Dur("wait_duration", waitDuration).
				Msg("flood wait detected, waiting before retry")

			if err := pause(ctx, waitDuration); err != nil {
				return err
			}
			continue
		}

		if tgerr.Is(err, "SESSION_REVOKED") {
			c.logger.Error().Msg("session has been revoked, need to re-authenticate")
			if err := c.sessionStorage.DeleteSession(); err != nil {
				c.logger.Warn().Err(err).Msg("failed to delete revoked session")
			}
			continue
		}

		if tgerr.Is(err, "PHONE_CODE_INVALID") {
			c.logger.Error().Msg("invalid phone code provided")
			if attempt < maxRetries-1 {
				c.logger.Info().Msg("please try entering the code again")
				continue
			}
			return fmt.Errorf("authentication failed after %d attempts: invalid phone code", maxRetries)
		}

		delay := baseDelay * (1 << attempt)
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("retry_delay", delay).
			Msg("authentication failed, retrying")

		if err := pause(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("authentication failed after %d attempts: %w", maxRetries, lastErr)
}

// isNonRetryableError reports errors that retrying cannot fix.
func isNonRetryableError(err error) bool {
	nonRetryableErrors := []string{
		"PHONE_NUMBER_BANNED",
		"PHONE_NUMBER_INVALID",
		"API_ID_INVALID",
		"API_ID_PUBLISHED_FLOOD",
		"AUTH_TOKEN_INVALID",
		"PASSWORD_HASH_INVALID",
		"PHONE_NUMBER_OCCUPIED",
		"PHONE_PASSWORD_PROTECTED",
	}

	for _, nonRetryable := range nonRetryableErrors {
		if tgerr.Is(err, nonRetryable) {
			return true
		}
	}

	return false
}

// performAuthentication runs one code/password flow attempt.
func (c *MTProtoClient) performAuthentication(ctx context.Context) error {
	codeProvider := &ConsoleCodeProvider{}
	passwordProvider := &ConsolePasswordProvider{}

	flow := auth.NewFlow(
		auth.Constant(
			c.phoneNumber,
			"",
			auth.CodeAuthenticatorFunc(func(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
				c.logger.Info().Msg("authentication code has been sent")
				return codeProvider.GetCode(ctx)
			}),
		),
		auth.SendCodeOptions{},
	)

	err := c.client.Auth().IfNecessary(ctx, flow)
	if err != nil {
		if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
			c.logger.Info().Msg("2FA is enabled, requesting password")
			password, err := passwordProvider.GetPassword(ctx)
			if err != nil {
				return fmt.Errorf("failed to get 2FA password: %w", err)
			}

			_, err = c.client.Auth().Password(ctx, password)
			if err != nil {
				c.logger.Error().Err(err).Msg("2FA authentication failed")
				return fmt.Errorf("2FA authentication failed: %w", err)
			}

			c.logger.Info().Msg("2FA authentication successful")
			return nil
		}
		return err
	}

	c.logger.Info().Msg("authentication successful")
	return nil
}
