package media

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gramwatch/internal/utils"
)

func TestSanitizeDocumentName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report 2026.pdf", "report 2026.pdf"},
		{"weird$name!.txt", "weird_name_.txt"},
		{"path/inj\\ect.bin", "path_inj_ect.bin"},
		{"tab\there", "tab_here"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeDocumentName(tc.in), tc.in)
	}
}

func TestNormalizeFileName(t *testing.T) {
	t.Run("ascii stem keeps name with id prefix", func(t *testing.T) {
		assert.Equal(t, "42_notes.txt", normalizeFileName(42, "notes.txt"))
	})

	t.Run("non-ascii stem becomes md5", func(t *testing.T) {
		got := normalizeFileName(7, "отчёт.pdf")
		want := "7_" + utils.MD5Hex("отчёт") + ".pdf"
		assert.Equal(t, want, got)
	})

	t.Run("extension survives replacement", func(t *testing.T) {
		got := normalizeFileName(1, "写真.jpg")
		assert.Equal(t, ".jpg", got[len(got)-4:])
	})
}
