package transfer

import (
	"regexp"
	"strings"
)

var (
	illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	reservedWindowsNames = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[1-9]|lpt[1-9])(\..*)?$`)
)

const fallbackFilename = "unnamed"

// SanitizeFilename maps a peer-supplied name to a single path element that is
// safe on every supported filesystem. Separators and other illegal characters
// become "_".
func SanitizeFilename(name string) string {
	cleaned := illegalFilenameChars.ReplaceAllString(name, "_")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, ". ")

	switch {
	case cleaned == "" || strings.Trim(cleaned, ".") == "":
		return fallbackFilename
	case reservedWindowsNames.MatchString(cleaned):
		return "_" + cleaned
	}
	return cleaned
}
