package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/fetchutil"
	"github.com/redive-tools/newswatch/pkg/models"
	"github.com/redive-tools/newswatch/pkg/source"
	"github.com/redive-tools/newswatch/pkg/store"
	"github.com/redive-tools/newswatch/pkg/tagging"
	"github.com/redive-tools/newswatch/pkg/telegram"
	"github.com/redive-tools/newswatch/pkg/telegraph"
	"github.com/redive-tools/newswatch/pkg/transform"
)

// attachWindow bounds how long a post stays open for a second surface to
// attach by title instead of opening a duplicate.
const attachWindow = 24 * time.Hour

// Archiver rehosts a normalized body and returns its permanent URL.
// *telegraph.Client satisfies it; tests substitute a fake.
type Archiver interface {
	CreatePage(ctx context.Context, title string, content []telegraph.Node) (string, error)
}

// Pipeline runs one source end to end: drain the listing through the fuse
// comparator, decide each emitted item, and publish the admitted ones.
type Pipeline struct {
	src       source.Source
	strategy  config.Strategy
	posts     store.PostStore
	meta      store.MetaStore
	audits    store.AuditStore
	archive   Archiver
	sender    telegram.Sender
	tagger    *tagging.Tagger
	recipient string
	silent    []string
	now       func() time.Time
	logger    *slog.Logger
}

// Options carries the shared collaborators a Pipeline needs.
type Options struct {
	Posts     store.PostStore
	Meta      store.MetaStore
	Audits    store.AuditStore
	Archive   Archiver
	Sender    telegram.Sender
	Tagger    *tagging.Tagger
	Recipient string
	Silent    []string
	// Now is the clock; nil means time.Now. Injected by tests.
	Now func() time.Time
}

// New builds the pipeline for one source.
func New(src source.Source, strategy config.Strategy, opts Options) *Pipeline {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		src:       src,
		strategy:  strategy,
		posts:     opts.Posts,
		meta:      opts.Meta,
		audits:    opts.Audits,
		archive:   opts.Archive,
		sender:    opts.Sender,
		tagger:    opts.Tagger,
		recipient: opts.Recipient,
		silent:    opts.Silent,
		now:       now,
		logger:    slog.With("component", "pipeline", "source", src.Name()),
	}
}

// Run executes one tick: a full stream drain plus all admitted publishes.
// A failing item is logged and skipped; peers still run. The joined error of
// every failed item (and a stream failure, if any) comes back to the caller.
func (p *Pipeline) Run(ctx context.Context) error {
	started := p.now()
	results, streamErr := collect(ctx, p.src.Stream(ctx), p.meta, p.strategy)
	if streamErr != nil {
		streamErr = fmt.Errorf("stream %s: %w", p.src.Name(), streamErr)
		p.logger.Error("Listing stream failed, processing items gathered so far",
			"error", streamErr,
			"gathered", len(results))
	}

	var errs []error
	published := 0
	for _, result := range results {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		action, err := p.handleItem(ctx, result)
		if err != nil {
			p.logger.Error("Item failed",
				"id", result.Item.ID,
				"title", result.Item.Title,
				"error", err)
			errs = append(errs, fmt.Errorf("%s#%d: %w", p.src.Name(), result.Item.ID, err))
			continue
		}
		if action == ActionSend || action == ActionEdit {
			published++
		}
	}

	p.logger.Info("Tick finished",
		"emitted", len(results),
		"published", published,
		"failed", len(errs),
		"elapsed", p.now().Sub(started))

	if streamErr != nil {
		errs = append(errs, streamErr)
	}
	return errors.Join(errs...)
}

// handleItem takes one comparator emission through decide, fetch, normalize,
// upload, send and persist.
func (p *Pipeline) handleItem(ctx context.Context, result models.FindResult) (Action, error) {
	item := result.Item
	now := p.now()

	post, err := p.matchPost(ctx, item, now)
	if err != nil {
		return ActionNone, err
	}

	action := Decide(p.src.Kind(), result, post)
	p.logger.Info("Decided",
		"id", item.ID,
		"title", item.Title,
		"state", result.State.String(),
		"action", action.String())

	if action == ActionNone {
		// The archive already holds this version; refresh the listing record
		// so the comparator treats it as seen next tick.
		return action, p.meta.Replace(ctx, item)
	}

	detail, err := p.fetchDetail(ctx, item)
	if err != nil {
		return action, err
	}

	dv, events := p.buildVersion(item, detail, now)

	if action == ActionSend || action == ActionEdit {
		url, err := p.uploadPage(ctx, dv.Title, detail)
		if err != nil {
			return action, err
		}
		dv.ArchiveURL = url
	}

	if post == nil {
		post = models.NewPost(models.DefaultRegion, dv, now)
	} else {
		post.Append(dv)
	}
	post.Events = events

	var sent *models.Audit
	switch action {
	case ActionSend:
		sent, err = p.send(ctx, post, dv, events, detail.ImageURL, now)
	case ActionEdit:
		sent, err = p.edit(ctx, post, dv, events, now)
	}
	if err != nil {
		return action, err
	}

	// Post first, audit second: the post is canonical, the audit advisory.
	if err := p.posts.Replace(ctx, post); err != nil {
		return action, err
	}
	if sent != nil {
		if err := p.audits.Insert(ctx, *sent); err != nil {
			return action, err
		}
	}
	return action, p.meta.Replace(ctx, item)
}

// matchPost finds the post this item belongs to: exact (source, id) match
// first, then a same-title post updated within the attach window.
func (p *Pipeline) matchPost(ctx context.Context, item models.Metadata, now time.Time) (*models.Post, error) {
	post, err := p.posts.FindBySourceID(ctx, item.Source, item.ID)
	if err != nil || post != nil {
		return post, err
	}
	return p.posts.FindRecentByTitle(ctx, models.MapTitle(item.Title), now.Add(-attachWindow))
}

func (p *Pipeline) fetchDetail(ctx context.Context, item models.Metadata) (*source.Detail, error) {
	var detail *source.Detail
	err := fetchutil.Retry(ctx, func() error {
		d, err := p.src.FetchDetail(ctx, item)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}
	return detail, nil
}

// buildVersion assembles the DataVersion and extracts the event windows from
// the raw detail body. Extraction runs before normalization mutates the tree.
func (p *Pipeline) buildVersion(item models.Metadata, detail *source.Detail, now time.Time) (models.DataVersion, []models.Event) {
	title := detail.Title
	if title == "" {
		title = item.Title
	}

	tags := p.tagger.Tags(title)
	// The title's own 【…】 category becomes a tag; the news listing carries
	// its category separately.
	if category, _ := models.SplitCategory(title); category != "" {
		tags = tagging.Merge([]string{category}, tags)
	}
	if category := item.Extra["category"]; category != "" {
		tags = tagging.Merge([]string{category}, tags)
	}

	dv := models.DataVersion{
		Source:     item.Source,
		ID:         item.ID,
		URL:        p.src.DetailURL(item.ID),
		Title:      title,
		Tags:       tags,
		CreateTime: detail.CreateTime,
		Extra:      detail.Extra,
	}
	if !item.UpdateTime.IsZero() {
		t := item.UpdateTime
		dv.UpdateTime = &t
	}

	return dv, source.ExtractEvents(detail.Body, now)
}

func (p *Pipeline) uploadPage(ctx context.Context, title string, detail *source.Detail) (string, error) {
	transform.Normalize(detail.Body)
	nodes := transform.ToNodes(detail.Body)
	nodes = transform.AppendExtras(nodes, detail.Extra)

	url, err := p.archive.CreatePage(ctx, title, nodes)
	if err != nil {
		return "", fmt.Errorf("create archive page: %w", err)
	}
	return url, nil
}

func (p *Pipeline) send(ctx context.Context, post *models.Post, dv models.DataVersion, events []models.Event, imageURL string, now time.Time) (*models.Audit, error) {
	text := telegram.Compose(dv, events)
	silent := telegram.IsSilent(dv.Title, p.silent)

	messageID, err := p.sender.Send(ctx, p.recipient, text, silent, imageURL)
	if err != nil {
		return nil, err
	}
	return p.auditRow(post.ID, messageID, dv.ArchiveURL, now), nil
}

// edit replaces the previously sent message. Without an audit row to locate
// it the edit degrades to a silent fresh send.
func (p *Pipeline) edit(ctx context.Context, post *models.Post, dv models.DataVersion, events []models.Event, now time.Time) (*models.Audit, error) {
	text := telegram.Compose(dv, events)

	prior, err := p.audits.FindLatest(ctx, post.ID, p.recipient)
	if err != nil {
		return nil, err
	}

	var messageID int
	if prior == nil {
		p.logger.Warn("No audit row for edit, sending fresh message", "post", post.ID)
		messageID, err = p.sender.Send(ctx, p.recipient, text, true, "")
	} else {
		messageID, err = p.sender.Edit(ctx, p.recipient, prior.MessageID, text)
	}
	if err != nil {
		return nil, err
	}
	return p.auditRow(post.ID, messageID, dv.ArchiveURL, now), nil
}

func (p *Pipeline) auditRow(postID string, messageID int, archiveURL string, now time.Time) *models.Audit {
	var chatID int64
	if id, err := strconv.ParseInt(p.recipient, 10, 64); err == nil {
		chatID = id
	}
	return &models.Audit{
		Recipient:  p.recipient,
		ChatID:     chatID,
		MessageID:  messageID,
		PostID:     postID,
		Timestamp:  now,
		ArchiveURL: archiveURL,
	}
}
