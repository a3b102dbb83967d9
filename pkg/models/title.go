package models

import (
	"regexp"
	"strings"
)

// Upstream titles arrive as 【category】actual title (MM/DD更新). The mapped
// title strips both decorations so the same logical post matches across
// surfaces that format them differently.
var (
	titlePrefixRe = regexp.MustCompile(`^【([^】]*)】\s*`)
	titleSuffixRe = regexp.MustCompile(`\s*[(（][^()（）]*更新[)）]\s*$`)
)

// SplitCategory splits the 【category】 prefix off a title. The category is
// empty when the title carries none; rest keeps the update suffix.
func SplitCategory(title string) (category, rest string) {
	m := titlePrefixRe.FindStringSubmatch(title)
	if m == nil {
		return "", title
	}
	return m[1], strings.TrimSpace(title[len(m[0]):])
}

// MapTitle normalizes a title into the fuzzy-match key used to attach records
// from different sources to one post. Idempotent: MapTitle(MapTitle(t)) ==
// MapTitle(t).
func MapTitle(title string) string {
	t := titlePrefixRe.ReplaceAllString(title, "")
	t = titleSuffixRe.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}
