package validators

import "strings"

// SanitizeString trims whitespace and caps free-text labels stored on ledger rows.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}
