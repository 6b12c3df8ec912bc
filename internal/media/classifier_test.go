package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramwatch/internal/domain"
)

type mockClient struct {
	domain.TelegramClient
	downloadFunc func(ctx context.Context, att *domain.Attachment, destPath string) (string, error)
}

func (m *mockClient) DownloadAttachment(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
	if m.downloadFunc != nil {
		return m.downloadFunc(ctx, att, destPath)
	}
	return destPath, nil
}

type mockMediaStore struct {
	insertFunc func(ctx context.Context, m *domain.Media) (int64, error)
	inserted   []*domain.Media
}

func (m *mockMediaStore) Insert(ctx context.Context, row *domain.Media) (int64, error) {
	m.inserted = append(m.inserted, row)
	if m.insertFunc != nil {
		return m.insertFunc(ctx, row)
	}
	return int64(len(m.inserted)), nil
}

func (m *mockMediaStore) Get(ctx context.Context, groupID, id int64) (*domain.Media, error) {
	return nil, nil
}
func (m *mockMediaStore) Delete(ctx context.Context, groupID, id int64) error  { return nil }
func (m *mockMediaStore) Count(ctx context.Context, groupID int64) (int64, error) { return 0, nil }
func (m *mockMediaStore) Close() error                                            { return nil }

type tempDirs struct{ root string }

func (d tempDirs) Dir(groupID int64) string { return d.root }

func photoMessage(msgID, size int64) *domain.RawMessage {
	return &domain.RawMessage{
		ID:      msgID,
		GroupID: 10,
		Date:    time.Now().UTC(),
		Attachment: &domain.Attachment{
			Kind:     domain.AttachmentPhoto,
			NativeID: 555,
			Ext:      ".jpg",
			MimeType: "image/jpeg",
			Size:     size,
			Width:    800,
			Height:   600,
			Date:     time.Now().UTC(),
		},
	}
}

func newTestClassifier(t *testing.T, store *mockMediaStore, client *mockClient) *Classifier {
	t.Helper()
	return NewClassifier(ClassifierConfig{
		Client:   client,
		Store:    store,
		Dirs:     tempDirs{root: t.TempDir()},
		Download: true,
		Logger:   zerolog.Nop(),
	})
}

func TestClassifyAndStore_NoAttachment(t *testing.T) {
	store := &mockMediaStore{}
	c := newTestClassifier(t, store, &mockClient{})

	id, err := c.ClassifyAndStore(context.Background(), &domain.RawMessage{ID: 1, GroupID: 10})

	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Empty(t, store.inserted)
}

func TestClassifyAndStore_VoiceIgnored(t *testing.T) {
	store := &mockMediaStore{}
	c := newTestClassifier(t, store, &mockClient{})

	id, err := c.ClassifyAndStore(context.Background(), &domain.RawMessage{
		ID:      2,
		GroupID: 10,
		Attachment: &domain.Attachment{
			Kind:     domain.AttachmentVoice,
			MimeType: "audio/ogg",
		},
	})

	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Empty(t, store.inserted)
}

func TestClassifyAndStore_SizeCutoff(t *testing.T) {
	store := &mockMediaStore{}
	downloaded := false
	client := &mockClient{downloadFunc: func(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
		downloaded = true
		return destPath, nil
	}}
	c := newTestClassifier(t, store, client)

	t.Run("over the cutoff skips", func(t *testing.T) {
		id, err := c.ClassifyAndStore(context.Background(), photoMessage(3, 256_000_001))
		require.NoError(t, err)
		assert.Nil(t, id)
		assert.False(t, downloaded)
		assert.Empty(t, store.inserted)
	})

	t.Run("exactly the cutoff downloads", func(t *testing.T) {
		id, err := c.ClassifyAndStore(context.Background(), photoMessage(4, 256_000_000))
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.True(t, downloaded)
		require.Len(t, store.inserted, 1)
	})
}

func TestClassifyAndStore_PhotoRow(t *testing.T) {
	store := &mockMediaStore{}
	c := newTestClassifier(t, store, &mockClient{})

	id, err := c.ClassifyAndStore(context.Background(), photoMessage(42, 1000))

	require.NoError(t, err)
	require.NotNil(t, id)
	require.Len(t, store.inserted, 1)
	row := store.inserted[0]
	assert.Equal(t, int64(10), row.GroupID)
	assert.Equal(t, int64(555), row.NativeID)
	assert.Equal(t, "42_555.jpg", row.FileName)
	assert.Equal(t, "image/jpeg", row.MimeType)
	require.NotNil(t, row.Width)
	assert.Equal(t, 800, *row.Width)
}

func TestClassifyAndStore_GeoNoDownload(t *testing.T) {
	store := &mockMediaStore{}
	downloaded := false
	client := &mockClient{downloadFunc: func(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
		downloaded = true
		return destPath, nil
	}}
	c := newTestClassifier(t, store, client)

	id, err := c.ClassifyAndStore(context.Background(), &domain.RawMessage{
		ID:      5,
		GroupID: 10,
		Attachment: &domain.Attachment{
			Kind: domain.AttachmentGeo,
			Lat:  48.85,
			Long: 2.35,
			Date: time.Now().UTC(),
		},
	})

	require.NoError(t, err)
	require.NotNil(t, id)
	assert.False(t, downloaded)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "application/geo", store.inserted[0].MimeType)
	assert.Equal(t, "48.85|2.35", store.inserted[0].Title)
	assert.True(t, store.inserted[0].IsGeo())
}

func TestClassifyAndStore_UnknownMimeBinaryFallback(t *testing.T) {
	store := &mockMediaStore{}
	downloaded := false
	client := &mockClient{downloadFunc: func(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
		downloaded = true
		return destPath, nil
	}}
	c := newTestClassifier(t, store, client)

	id, err := c.ClassifyAndStore(context.Background(), &domain.RawMessage{
		ID:      6,
		GroupID: 10,
		Attachment: &domain.Attachment{
			Kind:     domain.AttachmentDocument,
			NativeID: 777,
			FileName: "firmware.img",
			MimeType: "application/octet-stream",
			Size:     4096,
			Date:     time.Now().UTC(),
		},
	})

	require.NoError(t, err)
	require.NotNil(t, id)
	assert.False(t, downloaded, "binary fallback records metadata only")
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "6_firmware.img", store.inserted[0].FileName)
	assert.Equal(t, int64(4096), store.inserted[0].Size)
}

func TestClassifyAndStore_DownloadFailureSkips(t *testing.T) {
	store := &mockMediaStore{}
	client := &mockClient{downloadFunc: func(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
		return "", os.ErrPermission
	}}
	c := newTestClassifier(t, store, client)

	id, err := c.ClassifyAndStore(context.Background(), photoMessage(7, 100))

	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Empty(t, store.inserted)
}

type fixedOCR struct {
	text string
	err  error
}

func (f fixedOCR) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, f.err
}

func TestClassifyAndStore_OCRText(t *testing.T) {
	store := &mockMediaStore{}
	dir := t.TempDir()
	client := &mockClient{downloadFunc: func(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
		require.NoError(t, os.WriteFile(destPath, []byte("img"), 0o644))
		return destPath, nil
	}}
	c := NewClassifier(ClassifierConfig{
		Client:   client,
		Store:    store,
		Dirs:     tempDirs{root: dir},
		OCR:      fixedOCR{text: "extracted words"},
		Download: true,
		Logger:   zerolog.Nop(),
	})

	_, err := c.ClassifyAndStore(context.Background(), photoMessage(8, 100))

	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "extracted words", store.inserted[0].OcrText)
	assert.FileExists(t, filepath.Join(dir, "8_555.jpg"))
}

func TestClassifyAndStore_OCRFailureEmptyText(t *testing.T) {
	store := &mockMediaStore{}
	client := &mockClient{downloadFunc: func(ctx context.Context, att *domain.Attachment, destPath string) (string, error) {
		require.NoError(t, os.WriteFile(destPath, []byte("img"), 0o644))
		return destPath, nil
	}}
	c := NewClassifier(ClassifierConfig{
		Client:   client,
		Store:    store,
		Dirs:     tempDirs{root: t.TempDir()},
		OCR:      fixedOCR{err: os.ErrInvalid},
		Download: true,
		Logger:   zerolog.Nop(),
	})

	_, err := c.ClassifyAndStore(context.Background(), photoMessage(9, 100))

	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Empty(t, store.inserted[0].OcrText)
}
