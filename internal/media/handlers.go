package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gramwatch/internal/domain"
)

// extractFunc builds the metadata row for an attachment. A nil
// extractFunc means the kind carries nothing worth recording.
type extractFunc func(raw *domain.RawMessage) *domain.Media

// downloadFunc fetches the payload and returns the final path. A nil
// downloadFunc records metadata only.
type downloadFunc func(ctx context.Context, client domain.TelegramClient, raw *domain.RawMessage, dir string) (string, error)

// handler pairs an extractor with its downloader.
type handler struct {
	name     string
	extract  extractFunc
	download downloadFunc
}

// doNothing swallows kinds that are not worth storing: voice notes and
// constructors we do not understand.
var doNothing = handler{name: "do_nothing"}

// documentHandlers dispatches a document's declared mime type.
// Unregistered mimes fall through to the generic binary handler.
var documentHandlers = map[string]handler{
	"image/jpeg":      {name: "image", extract: extractDocument, download: downloadDocument},
	"image/png":       {name: "image", extract: extractDocument, download: downloadDocument},
	"image/gif":       {name: "image", extract: extractDocument, download: downloadDocument},
	"image/webp":      {name: "image", extract: extractDocument, download: downloadDocument},
	"application/pdf": {name: "pdf", extract: extractDocument, download: downloadDocument},
	"video/mp4":       {name: "video", extract: extractDocument, download: downloadDocument},
	"audio/mpeg":      {name: "audio", extract: extractDocument, download: downloadDocument},
	"audio/ogg":       {name: "audio", extract: extractDocument, download: downloadDocument},
	"text/plain":      {name: "text", extract: extractDocument, download: downloadDocument},
	"application/zip": {name: "archive", extract: extractDocument, download: downloadDocument},
}

// binaryHandler records filename, size and mime for anything else, with
// no download.
var binaryHandler = handler{name: "binary", extract: extractDocument}

// handlerFor selects the handler for an attachment kind.
func handlerFor(att *domain.Attachment) handler {
	switch att.Kind {
	case domain.AttachmentPhoto:
		return handler{name: "photo", extract: extractPhoto, download: downloadPhoto}
	case domain.AttachmentGeo:
		return handler{name: "geo", extract: extractGeo}
	case domain.AttachmentDocument, domain.AttachmentVideo, domain.AttachmentSticker:
		if h, ok := documentHandlers[att.MimeType]; ok {
			return h
		}
		return binaryHandler
	case domain.AttachmentContact:
		return handler{name: "contact", extract: extractContact}
	default:
		return doNothing
	}
}

func extractPhoto(raw *domain.RawMessage) *domain.Media {
	att := raw.Attachment
	m := &domain.Media{
		GroupID:  raw.GroupID,
		NativeID: att.NativeID,
		FileName: normalizeFileName(raw.ID, strconv.FormatInt(att.NativeID, 10)+att.Ext),
		Ext:      att.Ext,
		Date:     att.Date,
		MimeType: att.MimeType,
		Size:     att.Size,
	}
	if att.Width > 0 {
		w, h := att.Width, att.Height
		m.Width, m.Height = &w, &h
	}
	return m
}

func extractDocument(raw *domain.RawMessage) *domain.Media {
	att := raw.Attachment
	name := att.FileName
	if name == "" {
		name = strconv.FormatInt(att.NativeID, 10) + extForMime(att.MimeType)
	}
	name = sanitizeDocumentName(name)

	m := &domain.Media{
		GroupID:  raw.GroupID,
		NativeID: att.NativeID,
		FileName: normalizeFileName(raw.ID, name),
		Ext:      filepath.Ext(name),
		Date:     att.Date,
		MimeType: att.MimeType,
		Size:     att.Size,
		Title:    att.Title,
	}
	if att.Width > 0 {
		w, h := att.Width, att.Height
		m.Width, m.Height = &w, &h
	}
	return m
}

func extractGeo(raw *domain.RawMessage) *domain.Media {
	att := raw.Attachment
	return &domain.Media{
		GroupID:  raw.GroupID,
		NativeID: raw.ID,
		Date:     att.Date,
		MimeType: "application/geo",
		Title:    fmt.Sprintf("%v|%v", att.Lat, att.Long),
	}
}

func extractContact(raw *domain.RawMessage) *domain.Media {
	att := raw.Attachment
	return &domain.Media{
		GroupID:  raw.GroupID,
		NativeID: raw.ID,
		Date:     att.Date,
		MimeType: "text/vcard",
		Title:    att.Title,
	}
}

// downloadPhoto fetches the photo and corrects the extension when the
// bytes turn out not to be JPEG.
func downloadPhoto(ctx context.Context, client domain.TelegramClient, raw *domain.RawMessage, dir string) (string, error) {
	name := normalizeFileName(raw.ID, strconv.FormatInt(raw.Attachment.NativeID, 10)+raw.Attachment.Ext)
	dest := filepath.Join(dir, name)

	final, err := client.DownloadAttachment(ctx, raw.Attachment, dest)
	if err != nil {
		return "", err
	}

	if ext := sniffImageExt(final); ext != "" && ext != filepath.Ext(final) {
		renamed := strings.TrimSuffix(final, filepath.Ext(final)) + ext
		if err := os.Rename(final, renamed); err == nil {
			final = renamed
		}
	}
	return final, nil
}

func downloadDocument(ctx context.Context, client domain.TelegramClient, raw *domain.RawMessage, dir string) (string, error) {
	name := raw.Attachment.FileName
	if name == "" {
		name = strconv.FormatInt(raw.Attachment.NativeID, 10) + extForMime(raw.Attachment.MimeType)
	}
	name = normalizeFileName(raw.ID, sanitizeDocumentName(name))
	return client.DownloadAttachment(ctx, raw.Attachment, filepath.Join(dir, name))
}

// sniffImageExt inspects the leading bytes of a stored file and maps
// the detected content type back to an extension. Empty when sniffing
// fails or yields nothing recognizable.
func sniffImageExt(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return ""
	}

	switch http.DetectContentType(buf[:n]) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

// extForMime maps a declared mime to a fallback extension for unnamed
// documents.
func extForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "text/plain":
		return ".txt"
	case "application/zip":
		return ".zip"
	}
	return ".bin"
}
