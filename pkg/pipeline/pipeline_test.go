package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/models"
	"github.com/redive-tools/newswatch/pkg/source"
	"github.com/redive-tools/newswatch/pkg/tagging"
)

var testNow = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	src    *fakeSource
	posts  *memPosts
	meta   *memMeta
	audits *memAudits
	arch   *fakeArchiver
	sender *fakeSender
}

func newTestPipeline(t *testing.T, env *testEnv, strat config.Strategy) *Pipeline {
	t.Helper()
	tagger, err := tagging.New(map[string][]string{"活動": {"活動"}})
	require.NoError(t, err)

	return New(env.src, strat, Options{
		Posts:     env.posts,
		Meta:      env.meta,
		Audits:    env.audits,
		Archive:   env.arch,
		Sender:    env.sender,
		Tagger:    tagger,
		Recipient: "@channel",
		Silent:    []string{"維護"},
		Now:       func() time.Time { return testNow },
	})
}

func newEnv(src *fakeSource) *testEnv {
	return &testEnv{
		src:    src,
		posts:  newMemPosts(),
		meta:   newMemMeta(),
		audits: &memAudits{},
		arch:   &fakeArchiver{},
		sender: &fakeSender{},
	}
}

func announceItem(id int32, title string, updated time.Time) models.Metadata {
	return models.Metadata{
		Source:     models.APISource("P1"),
		ID:         id,
		Title:      title,
		UpdateTime: updated,
	}
}

func singleDetail(id int32, title, fragment string) map[int32]*source.Detail {
	return map[int32]*source.Detail{id: detailWithBody(title, fragment)}
}

func multiDetails(titles map[int32]string) map[int32]*source.Detail {
	details := make(map[int32]*source.Detail, len(titles))
	for id, title := range titles {
		details[id] = detailWithBody(title, "<p>body</p>")
	}
	return details
}

func TestRun_NewItemSends(t *testing.T) {
	item := announceItem(100, "【活動】夏日祭典", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
		details: singleDetail(100, "【活動】夏日祭典",
			"<div>活動期間：2024/07/15 12:00 ～ 2024/07/29 11:59</div>"),
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))

	// One message went out, loud, to the configured recipient.
	require.Len(t, env.sender.sent, 1)
	msg := env.sender.sent[0]
	assert.Equal(t, "@channel", msg.recipient)
	assert.False(t, msg.silent)
	assert.Contains(t, msg.text, "<b>夏日祭典</b>")
	assert.Contains(t, msg.text, "#100")

	// The post carries the archive URL and the extracted event window.
	require.Len(t, env.posts.posts, 1)
	var post *models.Post
	for _, stored := range env.posts.posts {
		post = stored
	}
	assert.Equal(t, "夏日祭典", post.MappedTitle)
	require.Len(t, post.Data, 1)
	assert.Equal(t, "https://telegra.ph/page-1", post.Data[0].ArchiveURL)
	assert.Equal(t, []string{"活動"}, post.Data[0].Tags)
	require.Len(t, post.Events, 1)

	// Audit row and refreshed listing record.
	require.Len(t, env.audits.rows, 1)
	assert.Equal(t, post.ID, env.audits.rows[0].PostID)
	assert.Equal(t, msg.messageID, env.audits.rows[0].MessageID)
	stored, err := env.meta.Find(context.Background(), item.Source, 100)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestRun_CategoryPrefixBecomesTag(t *testing.T) {
	// No tag rules configured: the 【…】 prefix alone still tags the message,
	// and the bold title drops the brackets.
	item := announceItem(100, "【活動】夏日祭典", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
		details: singleDetail(100, "【活動】夏日祭典", "<p>ok</p>"),
	}
	env := newEnv(src)
	tagger, err := tagging.New(nil)
	require.NoError(t, err)
	p := New(src, config.Strategy{FuseLimit: intp(2)}, Options{
		Posts:     env.posts,
		Meta:      env.meta,
		Audits:    env.audits,
		Archive:   env.arch,
		Sender:    env.sender,
		Tagger:    tagger,
		Recipient: "@channel",
		Now:       func() time.Time { return testNow },
	})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, env.sender.sent, 1)
	text := env.sender.sent[0].text
	assert.Contains(t, text, "#活動")
	assert.Contains(t, text, "<b>夏日祭典</b>")
	assert.NotContains(t, text, "【")
}

func TestRun_SilentTitle(t *testing.T) {
	item := announceItem(101, "【公告】例行維護", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
		details: singleDetail(101, "【公告】例行維護", "<p>body</p>"),
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, env.sender.sent, 1)
	assert.True(t, env.sender.sent[0].silent)
}

func TestRun_SecondSurfaceAttaches(t *testing.T) {
	// The announce API already published "夏日祭典"; the news site now lists
	// the same title. It must attach, not open a duplicate or send again.
	prior := &models.Post{
		ID:          "existing",
		MappedTitle: "夏日祭典",
		Region:      models.DefaultRegion,
		Data: []models.DataVersion{{
			Source:     models.APISource("P1"),
			ID:         100,
			Title:      "【活動】夏日祭典",
			UpdateTime: timep(testNow.Add(-10 * time.Minute)),
		}},
	}

	item := models.Metadata{
		Source:     models.WebsiteSource(),
		ID:         77,
		Title:      "【活動】夏日祭典",
		UpdateTime: testNow,
	}
	src := &fakeSource{
		name:    "news",
		kind:    models.WebsiteSource(),
		listing: []models.Metadata{item},
		details: singleDetail(77, "【活動】夏日祭典", "<p>same thing</p>"),
	}
	env := newEnv(src)
	require.NoError(t, env.posts.Replace(context.Background(), prior))
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))

	assert.Empty(t, env.sender.sent, "attachment is silent")
	post, err := env.posts.FindBySourceID(context.Background(), models.WebsiteSource(), 77)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "existing", post.ID)
	assert.Len(t, post.Data, 2)
	assert.Empty(t, post.Latest().ArchiveURL, "no archive page for a store-only item")
}

func TestRun_UpdatedItemEdits(t *testing.T) {
	t0 := testNow.Add(-2 * time.Hour)
	prior := &models.Post{
		ID:          "existing",
		MappedTitle: "夏日祭典",
		Region:      models.DefaultRegion,
		Data: []models.DataVersion{{
			Source:     models.APISource("P1"),
			ID:         100,
			Title:      "【活動】夏日祭典",
			UpdateTime: &t0,
		}},
	}

	item := announceItem(100, "【活動】夏日祭典（更新）", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
		details: singleDetail(100, "【活動】夏日祭典（更新）", "<p>changed</p>"),
	}
	env := newEnv(src)
	require.NoError(t, env.posts.Replace(context.Background(), prior))
	require.NoError(t, env.audits.Insert(context.Background(), models.Audit{
		Recipient: "@channel",
		MessageID: 55,
		PostID:    "existing",
		Timestamp: t0,
	}))
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, env.sender.sent, 1)
	assert.True(t, env.sender.sent[0].edited)
	assert.Equal(t, 55, env.sender.sent[0].messageID)

	post, err := env.posts.FindBySourceID(context.Background(), models.APISource("P1"), 100)
	require.NoError(t, err)
	assert.Len(t, post.Data, 2, "the update is appended, never rewritten in place")
	assert.Len(t, env.audits.rows, 2)
}

func TestRun_EditWithoutAuditSendsFresh(t *testing.T) {
	t0 := testNow.Add(-2 * time.Hour)
	prior := &models.Post{
		ID:          "existing",
		MappedTitle: "夏日祭典",
		Region:      models.DefaultRegion,
		Data: []models.DataVersion{{
			Source:     models.APISource("P1"),
			ID:         100,
			Title:      "【活動】夏日祭典",
			UpdateTime: &t0,
		}},
	}

	item := announceItem(100, "【活動】夏日祭典", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
		details: singleDetail(100, "【活動】夏日祭典", "<p>changed</p>"),
	}
	env := newEnv(src)
	require.NoError(t, env.posts.Replace(context.Background(), prior))
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, env.sender.sent, 1)
	assert.False(t, env.sender.sent[0].edited)
	assert.True(t, env.sender.sent[0].silent, "a degraded edit does not notify")
}

func TestRun_SameVersionRefreshesListingRecord(t *testing.T) {
	// The post already holds this exact version but the listing record was
	// lost; the item classifies as new yet decides to NONE. The record is
	// still refreshed so the next tick sees it as unchanged.
	t0 := testNow.Add(-2 * time.Hour)
	prior := &models.Post{
		ID:          "existing",
		MappedTitle: "夏日祭典",
		Region:      models.DefaultRegion,
		Data: []models.DataVersion{{
			Source:     models.APISource("P1"),
			ID:         100,
			Title:      "【活動】夏日祭典",
			UpdateTime: &t0,
		}},
	}

	item := announceItem(100, "【活動】夏日祭典", t0)
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
	}
	env := newEnv(src)
	require.NoError(t, env.posts.Replace(context.Background(), prior))
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))

	assert.Empty(t, env.sender.sent)
	assert.Zero(t, env.src.fetches, "a dropped item never fetches its detail")
	stored, err := env.meta.Find(context.Background(), item.Source, 100)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestRun_DetailFailureSkipsItemPeersContinue(t *testing.T) {
	broken := announceItem(100, "broken", testNow.Add(-2*time.Hour))
	fine := announceItem(101, "fine", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:       "announce-P1",
		kind:       models.APISource("P1"),
		listing:    []models.Metadata{fine, broken},
		details:    singleDetail(101, "fine", "<p>ok</p>"),
		detailErrs: map[int32]int{100: 5},
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "announce-P1#100")

	// The healthy peer still published; the broken item left no trace.
	require.Len(t, env.sender.sent, 1)
	assert.Contains(t, env.sender.sent[0].text, "fine")
	stored, findErr := env.meta.Find(context.Background(), broken.Source, 100)
	require.NoError(t, findErr)
	assert.Nil(t, stored, "a failed item is retried next tick")
}

func TestRun_DetailRetriesOnceThenSucceeds(t *testing.T) {
	item := announceItem(100, "flaky", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:       "announce-P1",
		kind:       models.APISource("P1"),
		listing:    []models.Metadata{item},
		details:    singleDetail(100, "flaky", "<p>ok</p>"),
		detailErrs: map[int32]int{100: 1},
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 2, env.src.fetches)
	assert.Len(t, env.sender.sent, 1)
}

func TestRun_CartoonSendsPhoto(t *testing.T) {
	item := models.Metadata{Source: models.CartoonSource(), ID: 42, Title: "第42話 新的冒險"}
	detail := detailWithBody("第42話 新的冒險", "")
	detail.ImageURL = "https://img.example.com/ep42.png"
	src := &fakeSource{
		name:    "cartoon",
		kind:    models.CartoonSource(),
		listing: []models.Metadata{item},
		details: map[int32]*source.Detail{42: detail},
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, env.sender.sent, 1)
	assert.Equal(t, "https://img.example.com/ep42.png", env.sender.sent[0].imageURL)
}

func TestRun_PublishOrderIsOldestFirst(t *testing.T) {
	items := []models.Metadata{
		announceItem(103, "third", testNow.Add(-time.Hour)),
		announceItem(102, "second", testNow.Add(-2*time.Hour)),
		announceItem(101, "first", testNow.Add(-3*time.Hour)),
	}
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: items,
		details: multiDetails(map[int32]string{101: "first", 102: "second", 103: "third"}),
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, env.sender.sent, 3)
	assert.Contains(t, env.sender.sent[0].text, "first")
	assert.Contains(t, env.sender.sent[1].text, "second")
	assert.Contains(t, env.sender.sent[2].text, "third")
}

func TestRun_PersistFailureResendsNextTick(t *testing.T) {
	// The send succeeds but the post write fails: the tick reports the
	// inconsistency and the listing record stays stale, so the next tick sees
	// the item again and re-sends. At-least-once, never lost.
	item := announceItem(100, "unlucky", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:    "announce-P1",
		kind:    models.APISource("P1"),
		listing: []models.Metadata{item},
		details: singleDetail(100, "unlucky", "<p>ok</p>"),
	}
	env := newEnv(src)
	flaky := &failingPosts{memPosts: env.posts, replaceErr: assert.AnError}

	tagger, err := tagging.New(nil)
	require.NoError(t, err)
	p := New(src, config.Strategy{FuseLimit: intp(2)}, Options{
		Posts:     flaky,
		Meta:      env.meta,
		Audits:    env.audits,
		Archive:   env.arch,
		Sender:    env.sender,
		Tagger:    tagger,
		Recipient: "@channel",
		Now:       func() time.Time { return testNow },
	})

	require.Error(t, p.Run(context.Background()))
	require.Len(t, env.sender.sent, 1, "the message went out before the write failed")
	assert.Empty(t, env.audits.rows, "no audit row without a persisted post")
	stored, findErr := env.meta.Find(context.Background(), item.Source, 100)
	require.NoError(t, findErr)
	assert.Nil(t, stored)

	// The store recovers; the same item is still unseen and re-sends.
	flaky.replaceErr = nil
	env.src.listing = []models.Metadata{item}
	require.NoError(t, p.Run(context.Background()))
	require.Len(t, env.sender.sent, 2)
	assert.Len(t, env.audits.rows, 1)
}

func TestRun_StreamErrorStillProcessesGathered(t *testing.T) {
	item := announceItem(100, "survivor", testNow.Add(-time.Hour))
	src := &fakeSource{
		name:     "announce-P1",
		kind:     models.APISource("P1"),
		listing:  []models.Metadata{item},
		terminal: assert.AnError,
		details:  singleDetail(100, "survivor", "<p>ok</p>"),
	}
	env := newEnv(src)
	p := newTestPipeline(t, env, config.Strategy{FuseLimit: intp(2)})

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, env.sender.sent, 1, "items gathered before the failure still publish")
}
