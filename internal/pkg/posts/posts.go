package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ignews/internal/pkg/cms"
)

const (
	// DocumentType is the CMS custom type holding posts.
	DocumentType = "post"
	// PreviewBlocks is the number of content blocks shown to non-subscribers.
	PreviewBlocks = 3
	// RevalidateAfter is how long a rendered page is served from cache.
	RevalidateAfter = 30 * time.Minute
	// FallbackBlocking renders unknown slugs on first request.
	FallbackBlocking = "blocking"
	// CachePrefix namespaces the page keys in Redis.
	CachePrefix = "posts:"

	listPageSize = 100
	listKey      = "list"
)

// Post is the page data of a post or preview.
type Post struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	UpdatedAt string `json:"updatedAt"`
}

// Summary is one entry of the posts index.
type Summary struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	UpdatedAt string `json:"updatedAt"`
}

// Paths describes which slugs are rendered ahead of time.
type Paths struct {
	Paths    []string `json:"paths"`
	Fallback string   `json:"fallback"`
}

// ContentSource reads post documents.
type ContentSource interface {
	GetByUID(ctx context.Context, docType, uid string) (*cms.Document, error)
	ListByType(ctx context.Context, docType string, pageSize int, fetch ...string) ([]cms.Document, error)
}

// PageCache stores rendered page data.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Publisher copies rendered page data to an external store, e.g. a CDN bucket.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
}

type postData struct {
	Title   cms.RichText `json:"title"`
	Content cms.RichText `json:"content"`
}

// Service renders post pages from the CMS and caches them for RevalidateAfter.
type Service struct {
	source    ContentSource
	cache     PageCache
	publisher Publisher
	ttl       time.Duration
}

// NewService creates the post service. cache and publisher may be nil.
func NewService(source ContentSource, cache PageCache, publisher Publisher) *Service {
	return &Service{source: source, cache: cache, publisher: publisher, ttl: RevalidateAfter}
}

// StaticPaths returns the ahead-of-time paths: none, every slug is rendered
// on first request.
func StaticPaths() Paths {
	return Paths{Paths: []string{}, Fallback: FallbackBlocking}
}

// Warm renders the previews of the listed paths ahead of the first request.
// Slugs outside p.Paths are rendered on first request when p.Fallback is
// FallbackBlocking.
func (s *Service) Warm(ctx context.Context, p Paths) error {
	var errs []error
	for _, slug := range p.Paths {
		if _, err := s.Preview(ctx, slug); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", slug, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Infof("[Posts] warmed %d paths, fallback %s", len(p.Paths), p.Fallback)
	return nil
}

// Preview renders the title and the first PreviewBlocks content blocks.
func (s *Service) Preview(ctx context.Context, slug string) (*Post, error) {
	return s.page(ctx, "preview:"+slug, slug, PreviewBlocks)
}

// Post renders the complete post.
func (s *Service) Post(ctx context.Context, slug string) (*Post, error) {
	return s.page(ctx, "full:"+slug, slug, -1)
}

// List returns the posts index, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	var cached []Summary
	if s.fromCache(ctx, listKey, &cached) {
		return cached, nil
	}

	docs, err := s.source.ListByType(ctx, DocumentType, listPageSize, "post.title", "post.content")
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	out := make([]Summary, 0, len(docs))
	for _, doc := range docs {
		var data postData
		if err := json.Unmarshal(doc.Data, &data); err != nil {
			log.Warnf("[Posts] skipping document %s: %v", doc.ID, err)
			continue
		}
		out = append(out, Summary{
			Slug:      doc.UID,
			Title:     cms.AsText(data.Title),
			Excerpt:   firstParagraph(data.Content),
			UpdatedAt: formatUpdatedAt(doc),
		})
	}

	s.toCache(ctx, listKey, out)
	return out, nil
}

// Revalidate drops every cached page of the slug and the index.
func (s *Service) Revalidate(ctx context.Context, slug string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, "preview:"+slug, "full:"+slug, listKey)
}

func (s *Service) page(ctx context.Context, key, slug string, blocks int) (*Post, error) {
	var cached Post
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	doc, err := s.source.GetByUID(ctx, DocumentType, slug)
	if err != nil {
		return nil, err
	}

	var data postData
	if err := json.Unmarshal(doc.Data, &data); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", slug, err)
	}
	content := data.Content
	if blocks >= 0 {
		content = content.First(blocks)
	}

	p := &Post{
		Slug:      slug,
		Title:     cms.AsText(data.Title),
		Content:   cms.AsHTML(content),
		UpdatedAt: formatUpdatedAt(*doc),
	}

	raw := s.toCache(ctx, key, p)
	// The bucket is public: only previews may leave the process.
	if blocks >= 0 && s.publisher != nil && raw != nil {
		if err := s.publisher.Publish(ctx, "posts/"+strings.Replace(key, ":", "/", 1)+".json", raw); err != nil {
			log.Warnf("[Posts] publish %s failed: %v", key, err)
		}
	}
	return p, nil
}

func (s *Service) fromCache(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *Service) toCache(ctx context.Context, key string, v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			log.Warnf("[Posts] could not cache %s: %v", key, err)
		}
	}
	return raw
}

func firstParagraph(rt cms.RichText) string {
	for _, b := range rt {
		if b.Type == "paragraph" {
			return b.Text
		}
	}
	return ""
}

func formatUpdatedAt(doc cms.Document) string {
	t, err := doc.UpdatedAt()
	if err != nil {
		return ""
	}
	return FormatDate(t)
}

// IsNotFound reports whether err means the post does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, cms.ErrNotFound)
}
