package speech

import (
	"regexp"
	"strings"
)

var (
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	reBold       = regexp.MustCompile(`\*\*(.*?)\*\*|__(.*?)__`)
	reItalic     = regexp.MustCompile(`\*(.*?)\*|_(.*?)_`)
	reLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reInlineCode = regexp.MustCompile("`([^`]*)`")
	reBullet     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
)

// Flatten strips markdown-style formatting and flattens newlines to
// sentence breaks, producing text suitable for synthesis.
func Flatten(text string) string {
	t := text
	t = reLink.ReplaceAllString(t, "$1")
	t = reHeading.ReplaceAllString(t, "")
	t = reBullet.ReplaceAllString(t, "")
	t = reBold.ReplaceAllString(t, "$1$2")
	t = reItalic.ReplaceAllString(t, "$1$2")
	t = reInlineCode.ReplaceAllString(t, "$1")

	lines := strings.Split(t, "\n")
	var parts []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.ContainsAny(line[len(line)-1:], ".!?:;") {
			line += "."
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
