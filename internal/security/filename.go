package security

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces a client-supplied filename to a safe flat
// name: no directory components, no control or shell characters, no
// leading dots. Returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	// Strip any directory component, from either separator convention
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	name = strings.TrimSpace(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")

	if name == "" || name == "." || name == ".." {
		return ""
	}
	return name
}

// AllowedExtension reports whether the filename's extension is in the
// whitelist (compared lowercase, without the dot).
func AllowedExtension(name string, allowed []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}
