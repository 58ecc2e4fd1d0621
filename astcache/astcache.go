// Package astcache memoizes parse results per document and per document
// region.
//
// Entries are keyed on the exact content that was parsed. A hit hands back
// the very value a previous miss stored, so callers holding pointer types can
// compare results by identity. Anything that differs, even by a byte or by a
// shifted line range, is a miss and forces a fresh parse of that region.
package astcache

import (
	"strconv"
	"strings"
	"time"

	"github.com/dhamidi/thriftls/cache"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"
)

var log = commonlog.GetLogger("thriftls.astcache")

const (
	DefaultTTL          = 5 * time.Minute
	DefaultMaxDocuments = 100
	DefaultMaxRegions   = 2000
	DefaultName         = "ast"
)

// Range is an inclusive span of 0-based lines.
type Range struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

type Options struct {
	Name         string
	TTL          time.Duration
	MaxDocuments int
	MaxRegions   int
	LRUK         int
	Clock        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.TTL == 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxDocuments == 0 {
		o.MaxDocuments = DefaultMaxDocuments
	}
	if o.MaxRegions == 0 {
		o.MaxRegions = DefaultMaxRegions
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type docEntry[T any] struct {
	content    string
	ast        T
	insertedAt time.Time
}

func (e *docEntry[T]) Size() int { return len(e.content) }

type regionEntry[T any] struct {
	content    string
	nodes      []T
	insertedAt time.Time
}

func (e *regionEntry[T]) Size() int { return len(e.content) }

// Cache stores ASTs of type T in two caches owned by a cache.Manager: one for
// whole documents and one for regions.
type Cache[T any] struct {
	manager *cache.Manager
	opts    Options
	docs    string
	regions string
	flight  singleflight.Group
}

// New registers the document and region caches with manager.
func New[T any](manager *cache.Manager, opts Options) (*Cache[T], error) {
	opts = opts.withDefaults()
	c := &Cache[T]{
		manager: manager,
		opts:    opts,
		docs:    opts.Name,
		regions: opts.Name + "-regions",
	}
	clock := cache.Clock(opts.Clock)
	if err := manager.RegisterCache(c.docs, cache.Options{
		MaxSize: opts.MaxDocuments,
		TTL:     opts.TTL,
		LRUK:    opts.LRUK,
		Clock:   clock,
	}); err != nil {
		return nil, err
	}
	if err := manager.RegisterCache(c.regions, cache.Options{
		MaxSize: opts.MaxRegions,
		TTL:     opts.TTL,
		LRUK:    opts.LRUK,
		Clock:   clock,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// DocumentCacheName and RegionCacheName name the underlying manager caches.
func (c *Cache[T]) DocumentCacheName() string { return c.docs }
func (c *Cache[T]) RegionCacheName() string   { return c.regions }

func docPrefix(docID string) string {
	return docID + "\x00"
}

func regionKey(docID string, r Range) string {
	return docPrefix(docID) + strconv.Itoa(r.StartLine) + "\x00" + strconv.Itoa(r.EndLine)
}

// Get returns the AST cached for exactly this document content.
func (c *Cache[T]) Get(docID, content string) (T, bool) {
	v, ok := c.manager.GetIf(c.docs, docID, func(v any) bool {
		return v.(*docEntry[T]).content == content
	})
	if !ok {
		var zero T
		return zero, false
	}
	return v.(*docEntry[T]).ast, true
}

// Set caches ast as the document's parse result for content, replacing the
// document's previous entry.
func (c *Cache[T]) Set(docID, content string, ast T) {
	e := &docEntry[T]{content: content, ast: ast, insertedAt: c.opts.Clock()}
	if err := c.manager.Set(c.docs, docID, e); err != nil {
		log.Errorf("cache ast for %s: %s", docID, err)
	}
}

// ParseWithCache returns the cached AST for content or calls parse and caches
// its result. Concurrent misses for the same document content share a single
// parse call.
func (c *Cache[T]) ParseWithCache(docID, content string, parse func() T) T {
	if ast, ok := c.Get(docID, content); ok {
		return ast
	}

	key := docPrefix(docID) + content
	v, _, _ := c.flight.Do(key, func() (any, error) {
		// another caller may have filled the entry between Get and Do
		if ast, ok := c.Get(docID, content); ok {
			return ast, nil
		}
		ast := parse()
		c.Set(docID, content, ast)
		return ast, nil
	})
	ast, _ := v.(T)
	return ast
}

// GetRange returns the nodes cached for exactly this region of a document.
func (c *Cache[T]) GetRange(docID string, r Range, content string) ([]T, bool) {
	v, ok := c.manager.GetIf(c.regions, regionKey(docID, r), func(v any) bool {
		return v.(*regionEntry[T]).content == content
	})
	if !ok {
		return nil, false
	}
	return v.(*regionEntry[T]).nodes, true
}

// SetRange caches nodes parsed from content at r, replacing any entry for
// the same document and range.
func (c *Cache[T]) SetRange(docID string, r Range, content string, nodes []T) {
	e := &regionEntry[T]{content: content, nodes: nodes, insertedAt: c.opts.Clock()}
	if err := c.manager.Set(c.regions, regionKey(docID, r), e); err != nil {
		log.Errorf("cache region %d-%d for %s: %s", r.StartLine, r.EndLine, docID, err)
	}
}

// ClearForDocument drops the document's whole-document entry and all of its
// region entries.
func (c *Cache[T]) ClearForDocument(docID string) {
	c.manager.Delete(c.docs, docID)
	n := c.ClearRegionsForDocument(docID)
	log.Debugf("cleared %s and %d cached regions", docID, n)
}

// ClearRegionsForDocument drops only the document's region entries and
// returns how many were removed.
func (c *Cache[T]) ClearRegionsForDocument(docID string) int {
	prefix := docPrefix(docID)
	return c.manager.DeleteFunc(c.regions, func(key string, _ any) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// ClearExpired removes document and region entries older than the TTL and
// returns how many were removed.
func (c *Cache[T]) ClearExpired() int {
	now := c.opts.Clock()
	expired := func(insertedAt time.Time) bool {
		return now.Sub(insertedAt) > c.opts.TTL
	}
	n := c.manager.DeleteFunc(c.docs, func(_ string, v any) bool {
		return expired(v.(*docEntry[T]).insertedAt)
	})
	n += c.manager.DeleteFunc(c.regions, func(_ string, v any) bool {
		return expired(v.(*regionEntry[T]).insertedAt)
	})
	if n > 0 {
		log.Debugf("cleared %d expired ast entries", n)
	}
	return n
}
