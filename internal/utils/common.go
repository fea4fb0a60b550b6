package utils

import (
	"path/filepath"
	"strings"
)

const maxSourceLength = 255

// RemoveControlCharacters 移除控制字符
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, text)
}

// SourceName reduces an uploaded filename to a printable base name that
// fits the audit log column.
func SourceName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = RemoveControlCharacters(strings.TrimSpace(name))
	if len(name) > maxSourceLength {
		name = name[:maxSourceLength]
	}
	return name
}
