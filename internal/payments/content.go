package payments

import (
	"regexp"
	"strings"
)

// The transfer note convention: the content, uppercased and stripped of
// whitespace, must contain DH followed by the order id. Hyphens are part of
// the code and are not stripped.
var (
	orderRefRe   = regexp.MustCompile(`DH([0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12})`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ParseTransferContent extracts the order id from a free-text transfer note.
// Returns ok=false when no DH reference is present (a mistyped note).
func ParseTransferContent(content string) (orderID string, ok bool) {
	norm := whitespaceRe.ReplaceAllString(strings.ToUpper(content), "")
	m := orderRefRe.FindStringSubmatch(norm)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
