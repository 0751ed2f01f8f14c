package hits

import "strings"

var botKeywords = []string{"bot", "crawler", "spider", "headless", "phantom", "wget", "curl", "python-requests"}

// IsBot reports whether a user agent looks automated. Bots still get
// their redirect; they just never count as traffic.
func IsBot(ua string) bool {
	lower := strings.ToLower(ua)
	for _, kw := range botKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
