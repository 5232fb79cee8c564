package screen

import (
	"regexp"
	"strings"
)

// maxQueryLength caps input before any processing. Watchlist names
// never approach this; anything longer is noise or abuse.
const maxQueryLength = 1000

// Untrusted-input hygiene. There is no SQL backend behind the engine,
// but queries arrive from arbitrary upstream systems and end up in
// logs, traces and backend query strings.
var (
	scriptChars = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "")

	sqlKeywords = regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|exec|script)\b`)

	sanitizeCollapse = regexp.MustCompile(`\s+`)
)

// Sanitize strips injection-style characters and SQL keyword patterns
// from a query and caps its length.
func Sanitize(query string) string {
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	query = scriptChars.Replace(query)
	query = sqlKeywords.ReplaceAllString(query, "")
	return strings.TrimSpace(sanitizeCollapse.ReplaceAllString(query, " "))
}
