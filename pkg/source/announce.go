package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/models"
)

// announceTimeLayout is the timestamp format of the announce API.
const announceTimeLayout = "2006-01-02 15:04"

// Announce streams the JSON announce API of one game server.
type Announce struct {
	client  *http.Client
	baseURL string
	kind    models.SourceKind
	name    string
}

// NewAnnounce creates the announce source for one configured API server.
func NewAnnounce(client *http.Client, server config.APIServerConfig) *Announce {
	return &Announce{
		client:  client,
		baseURL: server.URL,
		kind:    models.APISource(server.ID),
		name:    config.AnnounceSourceName(server.ID),
	}
}

func (a *Announce) Name() string            { return a.name }
func (a *Announce) Kind() models.SourceKind { return a.kind }

type announceListResponse struct {
	AnnounceList     []announceItem `json:"announce_list"`
	IsOverNextOffset bool           `json:"is_over_next_offset"`
	Length           int            `json:"length"`
}

type announceItem struct {
	AnnounceID  int32         `json:"announce_id"`
	Title       announceTitle `json:"title"`
	UpdateTime  string        `json:"update_time"`
	ReplaceTime string        `json:"replace_time"`
	Priority    int           `json:"priority"`
}

type announceTitle struct {
	Title     string `json:"title"`
	Slider    string `json:"slider_image"`
	Thumbnail string `json:"thumbnail_image"`
}

// Stream enumerates the listing offset by offset until the API reports
// is_over_next_offset.
func (a *Announce) Stream(ctx context.Context) Iterator {
	return newPagedIterator(0, func(ctx context.Context, offset int) ([]models.Metadata, int, bool, error) {
		url := fmt.Sprintf("%s/information/ajax_announce?offset=%d", a.baseURL, offset)

		var page announceListResponse
		if err := getJSON(ctx, a.client, url, &page); err != nil {
			return nil, 0, false, err
		}

		items := make([]models.Metadata, 0, len(page.AnnounceList))
		for _, item := range page.AnnounceList {
			m, err := a.toMetadata(item)
			if err != nil {
				return nil, 0, false, fmt.Errorf("announce %d: %w", item.AnnounceID, err)
			}
			items = append(items, m)
		}
		return items, page.Length, !page.IsOverNextOffset, nil
	})
}

func (a *Announce) toMetadata(item announceItem) (models.Metadata, error) {
	updated, err := time.ParseInLocation(announceTimeLayout, item.UpdateTime, upstreamZone)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("parse update_time %q: %w", item.UpdateTime, err)
	}

	extra := map[string]string{
		"priority": strconv.Itoa(item.Priority),
	}
	if item.ReplaceTime != "" {
		extra["replace_time"] = item.ReplaceTime
	}
	if img := item.Title.Slider; img != "" {
		extra["image"] = img
	} else if img := item.Title.Thumbnail; img != "" {
		extra["image"] = img
	}

	return models.Metadata{
		Source:     a.kind,
		ID:         item.AnnounceID,
		Title:      item.Title.Title,
		UpdateTime: updated.UTC(),
		Extra:      extra,
	}, nil
}

// DetailURL is the public page for one announcement; recorded on the data
// version and shown in messages.
func (a *Announce) DetailURL(id int32) string {
	return fmt.Sprintf("%s/information/detail/%d/1/10/1", a.baseURL, id)
}

// FetchDetail loads the announcement detail page and extracts its body DOM.
func (a *Announce) FetchDetail(ctx context.Context, m models.Metadata) (*Detail, error) {
	doc, err := getDoc(ctx, a.client, a.DetailURL(m.ID))
	if err != nil {
		return nil, err
	}

	body := doc.Find(".messages").First()
	if len(body.Nodes) == 0 {
		return nil, fmt.Errorf("announce detail %d: no .messages element", m.ID)
	}

	title := m.Title
	if t := doc.Find(".title").First().Text(); t != "" {
		title = t
	}

	return &Detail{
		Title: title,
		Body:  body.Nodes[0],
		Extra: m.Extra,
	}, nil
}
