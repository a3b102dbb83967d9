package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/redive-tools/newswatch/pkg/models"
	"github.com/redive-tools/newswatch/pkg/source"
	"github.com/redive-tools/newswatch/pkg/telegraph"
)

// sliceIterator replays a fixed listing, optionally ending with a terminal
// error instead of a clean end.
type sliceIterator struct {
	items    []models.Metadata
	pos      int
	terminal error
	done     bool
}

func (it *sliceIterator) Next(_ context.Context) (models.Metadata, bool, error) {
	if it.done {
		return models.Metadata{}, false, nil
	}
	if it.pos >= len(it.items) {
		it.done = true
		return models.Metadata{}, false, it.terminal
	}
	m := it.items[it.pos]
	it.pos++
	return m, true, nil
}

type metaKey struct {
	source models.SourceKind
	id     int32
}

// memMeta is an in-memory MetaStore.
type memMeta struct {
	mu   sync.Mutex
	rows map[metaKey]models.Metadata
}

func newMemMeta() *memMeta {
	return &memMeta{rows: make(map[metaKey]models.Metadata)}
}

func (s *memMeta) Find(_ context.Context, src models.SourceKind, id int32) (*models.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[metaKey{src, id}]; ok {
		copied := m
		return &copied, nil
	}
	return nil, nil
}

func (s *memMeta) Replace(_ context.Context, m models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[metaKey{m.Source, m.ID}] = m
	return nil
}

// memPosts is an in-memory PostStore.
type memPosts struct {
	mu    sync.Mutex
	posts map[string]*models.Post
}

func newMemPosts() *memPosts {
	return &memPosts{posts: make(map[string]*models.Post)}
}

func (s *memPosts) FindBySourceID(_ context.Context, src models.SourceKind, id int32) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.FindData(src, id) != nil {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (s *memPosts) FindRecentByTitle(_ context.Context, mappedTitle string, since time.Time) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.MappedTitle == mappedTitle && !p.LatestUpdateTime().Before(since) {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (s *memPosts) Replace(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = clonePost(post)
	return nil
}

// failingPosts injects write failures into memPosts.
type failingPosts struct {
	*memPosts
	replaceErr error
}

func (s *failingPosts) Replace(ctx context.Context, post *models.Post) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	return s.memPosts.Replace(ctx, post)
}

func clonePost(p *models.Post) *models.Post {
	copied := *p
	copied.Data = append([]models.DataVersion(nil), p.Data...)
	copied.Events = append([]models.Event(nil), p.Events...)
	return &copied
}

// memAudits is an in-memory AuditStore.
type memAudits struct {
	mu   sync.Mutex
	rows []models.Audit
}

func (s *memAudits) Insert(_ context.Context, a models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, a)
	return nil
}

func (s *memAudits) FindLatest(_ context.Context, postID, recipient string) (*models.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].PostID == postID && s.rows[i].Recipient == recipient {
			copied := s.rows[i]
			return &copied, nil
		}
	}
	return nil, nil
}

// fakeSource serves a scripted listing plus per-id details.
type fakeSource struct {
	name       string
	kind       models.SourceKind
	listing    []models.Metadata
	terminal   error
	details    map[int32]*source.Detail
	detailErrs map[int32]int // remaining failures before success
	fetches    int
}

func (f *fakeSource) Name() string            { return f.name }
func (f *fakeSource) Kind() models.SourceKind { return f.kind }

func (f *fakeSource) Stream(_ context.Context) source.Iterator {
	return &sliceIterator{items: f.listing, terminal: f.terminal}
}

func (f *fakeSource) DetailURL(id int32) string {
	return fmt.Sprintf("https://example.com/detail/%d", id)
}

func (f *fakeSource) FetchDetail(_ context.Context, m models.Metadata) (*source.Detail, error) {
	f.fetches++
	if f.detailErrs[m.ID] > 0 {
		f.detailErrs[m.ID]--
		return nil, fmt.Errorf("detail %d: connection reset", m.ID)
	}
	d, ok := f.details[m.ID]
	if !ok {
		return nil, fmt.Errorf("detail %d: not found", m.ID)
	}
	return d, nil
}

// fakeArchiver returns a deterministic URL per upload.
type fakeArchiver struct {
	pages int
	err   error
}

func (f *fakeArchiver) CreatePage(_ context.Context, title string, _ []telegraph.Node) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.pages++
	return fmt.Sprintf("https://telegra.ph/page-%d", f.pages), nil
}

type sentMessage struct {
	recipient string
	text      string
	silent    bool
	imageURL  string
	edited    bool
	messageID int
}

// fakeSender records sends and edits, allocating increasing message ids.
type fakeSender struct {
	nextID   int
	sent     []sentMessage
	editErr  error
	editGone bool // refuse edits as if the message expired
}

func (f *fakeSender) Send(_ context.Context, recipient, text string, silent bool, imageURL string) (int, error) {
	f.nextID++
	f.sent = append(f.sent, sentMessage{
		recipient: recipient,
		text:      text,
		silent:    silent,
		imageURL:  imageURL,
		messageID: f.nextID,
	})
	return f.nextID, nil
}

func (f *fakeSender) Edit(ctx context.Context, recipient string, messageID int, text string) (int, error) {
	if f.editErr != nil {
		return 0, f.editErr
	}
	if f.editGone {
		return f.Send(ctx, recipient, text, true, "")
	}
	f.sent = append(f.sent, sentMessage{
		recipient: recipient,
		text:      text,
		edited:    true,
		messageID: messageID,
	})
	return messageID, nil
}

// detailWithBody builds a Detail around a parsed HTML fragment.
func detailWithBody(title, fragment string) *source.Detail {
	return &source.Detail{Title: title, Body: parseFragment(fragment)}
}

func parseFragment(fragment string) *html.Node {
	doc, err := html.Parse(strings.NewReader("<html><body>" + fragment + "</body></html>"))
	if err != nil {
		panic(err)
	}
	var body *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
			if body != nil {
				return
			}
		}
	}
	find(doc)
	return body
}
