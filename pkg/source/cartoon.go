package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/models"
)

// Cartoon streams the JSON cartoon (comic episode) listing. Episode details
// reduce to a single image URL.
type Cartoon struct {
	client  *http.Client
	baseURL string
}

// NewCartoon creates the cartoon source. It shares the announce API host.
func NewCartoon(client *http.Client, baseURL string) *Cartoon {
	return &Cartoon{client: client, baseURL: baseURL}
}

func (c *Cartoon) Name() string            { return config.SourceNameCartoon }
func (c *Cartoon) Kind() models.SourceKind { return models.CartoonSource() }

type cartoonItem struct {
	ID        string `json:"id"`
	Episode   string `json:"episode_num"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Stream walks /cartoon/thumbnail_list/{page}; an empty page ends the
// listing. Cartoon items carry no update time, so only id and title drive
// change detection.
func (c *Cartoon) Stream(ctx context.Context) Iterator {
	return newPagedIterator(0, func(ctx context.Context, page int) ([]models.Metadata, int, bool, error) {
		url := fmt.Sprintf("%s/cartoon/thumbnail_list/%d", c.baseURL, page)

		var list []cartoonItem
		if err := getJSON(ctx, c.client, url, &list); err != nil {
			return nil, 0, false, err
		}
		if len(list) == 0 {
			return nil, page, false, nil
		}

		items := make([]models.Metadata, 0, len(list))
		for _, item := range list {
			id, err := strconv.ParseInt(item.ID, 10, 32)
			if err != nil {
				return nil, 0, false, fmt.Errorf("cartoon listing page %d: parse id %q: %w", page, item.ID, err)
			}
			items = append(items, models.Metadata{
				Source: models.CartoonSource(),
				ID:     int32(id),
				Title:  fmt.Sprintf("第%s話 %s", item.Episode, item.Title),
				Extra: map[string]string{
					"episode":   item.Episode,
					"thumbnail": item.Thumbnail,
				},
			})
		}
		return items, page + 1, true, nil
	})
}

// DetailURL is the public page for one episode.
func (c *Cartoon) DetailURL(id int32) string {
	return fmt.Sprintf("%s/cartoon/detail/%d", c.baseURL, id)
}

// FetchDetail loads an episode page; the sole extracted field is the episode
// image URL.
func (c *Cartoon) FetchDetail(ctx context.Context, m models.Metadata) (*Detail, error) {
	doc, err := getDoc(ctx, c.client, c.DetailURL(m.ID))
	if err != nil {
		return nil, err
	}

	img, ok := doc.Find("img").First().Attr("src")
	if !ok || img == "" {
		return nil, fmt.Errorf("cartoon detail %d: no image", m.ID)
	}

	return &Detail{
		Title:    m.Title,
		ImageURL: img,
		Extra:    m.Extra,
	}, nil
}
