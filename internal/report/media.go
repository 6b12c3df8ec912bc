package report

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// resolveMedia attaches the rendered media view to an entry. Geo points
// become a "lat,long" string; stored files are copied into the report
// asset directory. Failures degrade to an entry without media.
func (e *Engine) resolveMedia(ctx context.Context, entry *Entry) {
	if entry.Message.MediaID == nil {
		return
	}

	row, err := e.media.Get(ctx, entry.Message.GroupID, *entry.Message.MediaID)
	if err != nil || row == nil {
		e.logger.Debug().
			Int64("group_id", entry.Message.GroupID).
			Int64("media_id", *entry.Message.MediaID).
			Msg("media row missing")
		return
	}

	if row.IsGeo() {
		entry.Media = &MediaRef{
			Geo:      strings.ReplaceAll(row.Title, "|", ","),
			MimeType: row.MimeType,
		}
		return
	}

	if row.FileName == "" {
		entry.Media = &MediaRef{MimeType: row.MimeType, IsImage: row.IsImage()}
		return
	}

	src := filepath.Join(e.dirs.Dir(entry.Message.GroupID), row.FileName)
	dst := filepath.Join(e.assetDir, row.FileName)
	if err := copyFile(src, dst); err != nil {
		e.logger.Warn().Err(err).Str("file", row.FileName).Msg("asset copy failed")
		return
	}

	entry.Media = &MediaRef{
		Path:     dst,
		MimeType: row.MimeType,
		IsImage:  row.IsImage(),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
