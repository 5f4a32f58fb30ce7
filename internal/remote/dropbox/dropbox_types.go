package dropbox

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"github.com/openmined/gridsync/internal/jsonx"
	"github.com/openmined/gridsync/internal/remote"
)

type pathArg struct {
	Path string `json:"path"`
}

type listFolderArg struct {
	Path  string `json:"path"`
	Limit int    `json:"limit,omitempty"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type uploadArg struct {
	Path           string `json:"path"`
	Mode           string `json:"mode"`
	Mute           bool   `json:"mute"`
	ClientModified string `json:"client_modified,omitempty"`
}

type metadata struct {
	Tag            string `json:".tag"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	ContentHash    string `json:"content_hash"`
	Size           int64  `json:"size"`
	ServerModified string `json:"server_modified"`
}

func (md *metadata) entry() remote.Entry {
	e := remote.Entry{Name: md.Name, Hash: md.ContentHash, Size: md.Size}
	if t, err := time.Parse(time.RFC3339, md.ServerModified); err == nil {
		e.ModTime = t
	}
	return e
}

type listFolderResult struct {
	Entries []metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

type apiError struct {
	Summary string `json:"error_summary"`
}

// apiArg encodes v for the Dropbox-API-Arg header. HTTP headers must be
// ASCII, so every other rune is written as a \u escape.
func apiArg(v any) (string, error) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return "", err
	}
	return escapeNonASCII(string(data)), nil
}

func escapeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != unicode.ReplacementChar {
			writeUnicodeEscape(&b, r1)
			writeUnicodeEscape(&b, r2)
			continue
		}
		writeUnicodeEscape(&b, r)
	}
	return b.String()
}

func writeUnicodeEscape(b *strings.Builder, r rune) {
	const hex = "0123456789abcdef"
	b.WriteString(`\u`)
	b.WriteByte(hex[(r>>12)&0xf])
	b.WriteByte(hex[(r>>8)&0xf])
	b.WriteByte(hex[(r>>4)&0xf])
	b.WriteByte(hex[r&0xf])
}
