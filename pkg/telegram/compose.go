// Package telegram is the chat transport: message composition, the
// send/edit wrapper and the operator command listener.
package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/redive-tools/newswatch/pkg/models"
)

// displayZone is the wall clock timestamps render in; recipients live on the
// operator's side of the world.
var displayZone = time.FixedZone("UTC+8", 8*60*60)

const (
	eventTimeLayout  = "01/02 15:04"
	createTimeLayout = "2006-01-02 15:04"
)

// Compose renders the notification for one data version. Layout:
//
//	#tag1 #tag2
//	<b>title</b>
//	- event title:
//	   07/15 12:00 - 07/29 11:59
//
//	https://telegra.ph/...
//	2024-01-01 08:00
//	<code>#100</code>
//
// Markup is the HTML subset Telegram accepts; title and tags are escaped.
func Compose(dv models.DataVersion, events []models.Event) string {
	var sb strings.Builder

	if len(dv.Tags) > 0 {
		hashed := make([]string, len(dv.Tags))
		for i, tag := range dv.Tags {
			hashed[i] = "#" + html.EscapeString(tag)
		}
		sb.WriteString(strings.Join(hashed, " "))
		sb.WriteByte('\n')
	}

	// The 【…】 category prefix already shows up on the tag line; the bold
	// title renders without it.
	title := dv.Title
	if _, rest := models.SplitCategory(title); rest != "" {
		title = rest
	}
	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(title))

	for _, ev := range events {
		fmt.Fprintf(&sb, "- %s:\n   %s - %s\n",
			html.EscapeString(ev.Title),
			ev.Start.In(displayZone).Format(eventTimeLayout),
			ev.End.In(displayZone).Format(eventTimeLayout))
	}

	sb.WriteByte('\n')

	if dv.ArchiveURL != "" {
		sb.WriteString(dv.ArchiveURL)
		sb.WriteByte('\n')
	}
	if dv.CreateTime != nil {
		sb.WriteString(dv.CreateTime.In(displayZone).Format(createTimeLayout))
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "<code>#%d</code>", dv.ID)

	return sb.String()
}

// IsSilent reports whether a title matches any of the configured silent
// substrings (maintenance notices and the like).
func IsSilent(title string, silentSubstrings []string) bool {
	for _, s := range silentSubstrings {
		if s != "" && strings.Contains(title, s) {
			return true
		}
	}
	return false
}
