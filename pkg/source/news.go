package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/models"
)

// newsDateLayout is the date format on the news site ("2024.01.15").
const newsDateLayout = "2006.01.02"

var newsDetailHrefRe = regexp.MustCompile(`/news/newsDetail/(\d+)`)

// News streams the paginated HTML news site.
type News struct {
	client  *http.Client
	baseURL string
}

// NewNews creates the news website source.
func NewNews(client *http.Client, baseURL string) *News {
	return &News{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *News) Name() string            { return config.SourceNameNews }
func (n *News) Kind() models.SourceKind { return models.WebsiteSource() }

// Stream walks /news?page=N, following the "next" link until it disappears.
func (n *News) Stream(ctx context.Context) Iterator {
	return newPagedIterator(1, func(ctx context.Context, page int) ([]models.Metadata, int, bool, error) {
		url := fmt.Sprintf("%s/news?page=%d", n.baseURL, page)

		doc, err := getDoc(ctx, n.client, url)
		if err != nil {
			return nil, 0, false, err
		}

		var items []models.Metadata
		var parseErr error
		doc.Find("ul.news_con li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
			m, err := n.toMetadata(li)
			if err != nil {
				parseErr = fmt.Errorf("news listing page %d: %w", page, err)
				return false
			}
			items = append(items, m)
			return true
		})
		if parseErr != nil {
			return nil, 0, false, parseErr
		}

		hasNext := doc.Find("div.paging a.next").Length() > 0
		return items, page + 1, hasNext, nil
	})
}

func (n *News) toMetadata(li *goquery.Selection) (models.Metadata, error) {
	link := li.Find("a").First()
	href, ok := link.Attr("href")
	if !ok {
		return models.Metadata{}, fmt.Errorf("item without link: %q", strings.TrimSpace(li.Text()))
	}
	match := newsDetailHrefRe.FindStringSubmatch(href)
	if match == nil {
		return models.Metadata{}, fmt.Errorf("unrecognized detail href %q", href)
	}
	id, err := strconv.ParseInt(match[1], 10, 32)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("parse id from %q: %w", href, err)
	}

	dateText := strings.TrimSpace(li.Find("dt").First().Text())
	published, err := time.ParseInLocation(newsDateLayout, dateText, upstreamZone)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("parse date %q: %w", dateText, err)
	}

	// The link text carries the category in a leading <span>; the title is
	// everything else.
	title := strings.TrimSpace(nonSpanText(link))
	if title == "" {
		title = strings.TrimSpace(li.Find("dd").First().Text())
	}

	extra := map[string]string{}
	if category := strings.TrimSpace(li.Find("span").First().Text()); category != "" {
		extra["category"] = category
	}

	return models.Metadata{
		Source:     models.WebsiteSource(),
		ID:         int32(id),
		Title:      title,
		UpdateTime: published.UTC(),
		Extra:      extra,
	}, nil
}

// nonSpanText concatenates the selection's direct contents, skipping <span>
// children.
func nonSpanText(sel *goquery.Selection) string {
	var sb strings.Builder
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) != "span" {
			sb.WriteString(c.Text())
		}
	})
	return sb.String()
}

// DetailURL is the public page for one news article.
func (n *News) DetailURL(id int32) string {
	return fmt.Sprintf("%s/news/newsDetail/%d", n.baseURL, id)
}

// FetchDetail loads a news article and extracts its body DOM.
func (n *News) FetchDetail(ctx context.Context, m models.Metadata) (*Detail, error) {
	doc, err := getDoc(ctx, n.client, n.DetailURL(m.ID))
	if err != nil {
		return nil, err
	}

	body := doc.Find("section.news_con").First()
	if len(body.Nodes) == 0 {
		return nil, fmt.Errorf("news detail %d: no section.news_con element", m.ID)
	}

	title := m.Title
	if t := strings.TrimSpace(doc.Find("h2.title").First().Text()); t != "" {
		title = t
	}

	detail := &Detail{
		Title: title,
		Body:  body.Nodes[0],
		Extra: m.Extra,
	}

	if dateText := strings.TrimSpace(doc.Find("p.date").First().Text()); dateText != "" {
		if created, err := time.ParseInLocation(newsDateLayout, dateText, upstreamZone); err == nil {
			utc := created.UTC()
			detail.CreateTime = &utc
		}
	}

	return detail, nil
}
