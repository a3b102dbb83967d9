package source

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/redive-tools/newswatch/pkg/models"
)

// eventPeriodRe matches period lines such as
//
//	活動期間：2024/07/15 12:00 ～ 2024/07/29 11:59
//	獎勵領取期間：7/29(一) 12:00〜8/5(一) 11:59
//
// The year and the weekday in parentheses are optional.
var eventPeriodRe = regexp.MustCompile(
	`([^\n：:]{0,30}?)\s*期間[：:]?\s*` +
		`(?:(\d{4})/)?(\d{1,2})/(\d{1,2})\s*(?:\([^)]*\))?\s*(\d{1,2}):(\d{2})` +
		`\s*[～〜~]\s*` +
		`(?:(\d{4})/)?(\d{1,2})/(\d{1,2})\s*(?:\([^)]*\))?\s*(\d{1,2}):(\d{2})`)

// ExtractEvents pulls event windows out of a detail body. ref supplies the
// year when the upstream omits it; an end before its start rolls over to the
// next year.
func ExtractEvents(body *html.Node, ref time.Time) []models.Event {
	if body == nil {
		return nil
	}
	text := flattenText(body)

	var events []models.Event
	for _, m := range eventPeriodRe.FindAllStringSubmatch(text, -1) {
		title := strings.TrimSpace(m[1])
		if title == "" {
			title = "活動"
		} else {
			title = strings.Trim(title, "【】「」")
		}

		start := periodTime(m[2], m[3], m[4], m[5], m[6], ref)
		end := periodTime(m[7], m[8], m[9], m[10], m[11], ref)
		if end.Before(start) {
			end = end.AddDate(1, 0, 0)
		}

		events = append(events, models.Event{Title: title, Start: start, End: end})
	}
	return events
}

func periodTime(year, month, day, hour, minute string, ref time.Time) time.Time {
	y := ref.In(upstreamZone).Year()
	if year != "" {
		y, _ = strconv.Atoi(year)
	}
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, _ := strconv.Atoi(hour)
	mi, _ := strconv.Atoi(minute)
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, upstreamZone).UTC()
}

// blockTags force a line break in the flattened text so periods split across
// elements do not run together.
var blockTags = map[string]bool{
	"br": true, "div": true, "p": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func flattenText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
		case html.ElementNode:
			if blockTags[node.Data] {
				sb.WriteByte('\n')
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
