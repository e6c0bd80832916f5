package livechat

import (
	"regexp"
	"strings"
)

// Agent consoles escape square brackets in outbound text so their own link
// markup survives transport; the widget restores them before link detection.
const (
	escapeOpen  = "~!"
	escapeClose = "!~"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)

// RewriteAgentText restores bracket-escaped link markers and wraps detected
// URLs in parentheses, yielding markdown-style hyperlinks when a bracketed
// label precedes the URL.
func RewriteAgentText(text string) string {
	text = strings.ReplaceAll(text, escapeOpen, "[")
	text = strings.ReplaceAll(text, escapeClose, "]")
	return urlPattern.ReplaceAllStringFunc(text, func(u string) string {
		return "(" + u + ")"
	})
}
