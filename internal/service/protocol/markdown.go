package protocol

import (
	"regexp"
	"strings"
)

var (
	mdBold    = regexp.MustCompile(`\*\*(.*?)\*\*|__(.*?)__`)
	mdItalic  = regexp.MustCompile(`\*(.*?)\*|\b_(.*?)_\b`)
	mdImage   = regexp.MustCompile(`!\[(.*?)\]\(.*?\)`)
	mdLink    = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	mdCode    = regexp.MustCompile("`{1,3}(.*?)`{1,3}")
	mdHeading = regexp.MustCompile(`^#{1,6}\s*`)
)

// StripMarkdown removes inline markdown the model tends to sprinkle into
// field values: bold, italic, images, links, inline code and a leading
// heading marker.
func StripMarkdown(s string) string {
	s = mdBold.ReplaceAllString(s, "$1$2")
	s = mdItalic.ReplaceAllString(s, "$1$2")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
