// Package media classifies message attachments, extracts their
// metadata, downloads the payloads worth keeping and records them in
// the owning group's media shard.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"gramwatch/internal/utils"
)

// sanitizeDocumentName replaces every rune outside [A-Za-z0-9 .-] with
// an underscore, keeping names safe across filesystems.
func sanitizeDocumentName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '.' || r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// normalizeFileName prefixes the owning message's native ID and, when
// the stem is not pure ASCII, replaces it with its md5 hex so every
// stored name is portable.
func normalizeFileName(messageID int64, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	if !isASCII(stem) {
		stem = utils.MD5Hex(stem)
	}

	return fmt.Sprintf("%d_%s%s", messageID, stem, ext)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
