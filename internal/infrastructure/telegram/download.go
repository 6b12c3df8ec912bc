package telegram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"gramwatch/internal/domain"
)

// DownloadAvatar fetches the peer's current profile photo into memory.
// Avatars are small enough that buffering beats a temp file round trip.
func (c *MTProtoClient) DownloadAvatar(ctx context.Context, group *domain.Group) ([]byte, string, error) {
	api, err := c.apiClient()
	if err != nil {
		return nil, "", err
	}
	if group.AvatarPhotoID == 0 {
		return nil, "", fmt.Errorf("group %d has no profile photo", group.ID)
	}

	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}

	loc := &tg.InputPeerPhotoFileLocation{
		Peer:    inputPeer(group),
		PhotoID: group.AvatarPhotoID,
	}
	var buf bytes.Buffer
	err = c.floodRetry(ctx, func(ctx context.Context) error {
		_, err := downloader.NewDownloader().
			Download(api, loc).
			Stream(ctx, &buf)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("download avatar of %d: %w", group.ID, err)
	}

	name := fmt.Sprintf("avatar_%d_%d.jpg", group.ID, group.AvatarPhotoID)
	c.logger.Debug().
		Int64("group_id", group.ID).
		Str("name", name).
		Int("size", buf.Len()).
		Msg("avatar downloaded")
	return buf.Bytes(), name, nil
}

// DownloadAttachment fetches the attachment bytes to destPath. The Ref
// handle set at classification time carries the file location; kinds
// without one (geo, contact) have nothing to download.
func (c *MTProtoClient) DownloadAttachment(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
	api, err := c.apiClient()
	if err != nil {
		return "", err
	}

	loc, ok := att.Ref.(tg.InputFileLocationClass)
	if !ok {
		return "", fmt.Errorf("attachment %d has no downloadable location", att.NativeID)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	err = c.floodRetry(ctx, func(ctx context.Context) error {
		_, err := downloader.NewDownloader().
			Download(api, loc).
			ToPath(ctx, destPath)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("download attachment %d: %w", att.NativeID, err)
	}

	c.logger.Debug().
		Int64("native_id", att.NativeID).
		Str("path", destPath).
		Int64("size", att.Size).
		Msg("attachment downloaded")
	return destPath, nil
}
