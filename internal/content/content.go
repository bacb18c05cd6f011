// Package content serves the static pages of the storefront from markdown
// with YAML front matter.
package content

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/fillesume/storefront/internal/animation"
)

//go:embed pages/*.md
var embedded embed.FS

// ErrNotFound reports an unknown page slug.
var ErrNotFound = errors.New("content: page not found")

// Page is a rendered static page.
type Page struct {
	Slug      string                   `json:"slug"`
	Lang      string                   `json:"lang"`
	Title     string                   `json:"title"`
	Summary   string                   `json:"summary,omitempty"`
	Markdown  string                   `json:"-"`
	HTML      string                   `json:"html"`
	UpdatedAt time.Time                `json:"updatedAt"`
	SEO       SEO                      `json:"seo"`
	Chrome    *animation.ChromeOptions `json:"-"`
}

// SEO holds optional metadata overrides.
type SEO struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	OGImage     string `json:"ogImage,omitempty"`
}

type frontMatter struct {
	Title     string    `yaml:"title"`
	Summary   string    `yaml:"summary"`
	Lang      string    `yaml:"lang"`
	UpdatedAt string    `yaml:"updated_at"`
	SEO       seoMatter `yaml:"seo"`
	Chrome    yaml.Node `yaml:"chrome"`
}

type seoMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	OGImage     string `yaml:"og_image"`
}

const (
	defaultLang     = "es"
	defaultCacheTTL = 5 * time.Minute
)

// Store loads pages from an optional override directory, falling back to the
// pages compiled into the binary.
type Store struct {
	dir      string
	cacheTTL time.Duration
	clock    func() time.Time
	markdown goldmark.Markdown
	policy   *bluemonday.Policy

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	page    Page
	expires time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDir serves pages from dir before the embedded ones.
func WithDir(dir string) Option {
	return func(s *Store) {
		s.dir = strings.TrimSpace(dir)
	}
}

// WithCacheTTL overrides how long rendered pages are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClock overrides the cache clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore constructs a page store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		cacheTTL: defaultCacheTTL,
		clock:    time.Now,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Typographer)),
		policy:   newPagePolicy(),
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newPagePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Page returns the rendered page for slug.
func (s *Store) Page(ctx context.Context, slug string) (Page, error) {
	slug = sanitizeSlug(slug)
	if slug == "" {
		return Page{}, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if page, ok := s.cached(slug); ok {
		return page, nil
	}

	raw, modTime, err := s.read(slug)
	if err != nil {
		return Page{}, err
	}
	page, err := s.parse(slug, raw)
	if err != nil {
		return Page{}, err
	}
	if page.UpdatedAt.IsZero() {
		page.UpdatedAt = modTime
	}
	s.store(slug, page)
	return clonePage(page), nil
}

// Slugs lists every page available from the override directory and the
// embedded set.
func (s *Store) Slugs() []string {
	seen := map[string]struct{}{}
	collect := func(fsys fs.FS, dir string) {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), ".md")] = struct{}{}
		}
	}
	collect(embedded, "pages")
	if s.dir != "" {
		collect(os.DirFS(s.dir), ".")
	}
	out := make([]string, 0, len(seen))
	for slug := range seen {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

func (s *Store) read(slug string) ([]byte, time.Time, error) {
	if s.dir != "" {
		file := path.Join(s.dir, slug+".md")
		data, err := os.ReadFile(file)
		if err == nil {
			var mod time.Time
			if info, statErr := os.Stat(file); statErr == nil {
				mod = info.ModTime()
			}
			return data, mod, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, fmt.Errorf("content: read %s: %w", file, err)
		}
	}
	data, err := embedded.ReadFile("pages/" + slug + ".md")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	return data, time.Time{}, nil
}

func (s *Store) parse(slug string, raw []byte) (Page, error) {
	fm, body := splitFrontMatter(string(raw))
	var front frontMatter
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Page{}, fmt.Errorf("content: parse front matter %s: %w", slug, err)
		}
	}

	var rendered bytes.Buffer
	if err := s.markdown.Convert([]byte(body), &rendered); err != nil {
		return Page{}, fmt.Errorf("content: render %s: %w", slug, err)
	}

	page := Page{
		Slug:      slug,
		Lang:      firstNonEmpty(strings.TrimSpace(front.Lang), defaultLang),
		Title:     strings.TrimSpace(front.Title),
		Summary:   strings.TrimSpace(front.Summary),
		Markdown:  body,
		HTML:      strings.TrimSpace(s.policy.Sanitize(rendered.String())),
		UpdatedAt: parseDate(front.UpdatedAt),
		SEO: SEO{
			Title:       strings.TrimSpace(front.SEO.Title),
			Description: strings.TrimSpace(front.SEO.Description),
			OGImage:     strings.TrimSpace(front.SEO.OGImage),
		},
	}
	if page.Title == "" {
		page.Title = prettifySlug(slug)
	}
	if !front.Chrome.IsZero() {
		opts := animation.DefaultChrome()
		if err := front.Chrome.Decode(&opts); err != nil {
			return Page{}, fmt.Errorf("content: parse chrome %s: %w", slug, err)
		}
		page.Chrome = &opts
	}
	return page, nil
}

func (s *Store) cached(slug string) (Page, bool) {
	s.mu.RLock()
	entry, ok := s.cache[slug]
	s.mu.RUnlock()
	if !ok || s.clock().After(entry.expires) {
		return Page{}, false
	}
	return clonePage(entry.page), true
}

func (s *Store) store(slug string, page Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[slug] = cacheEntry{page: clonePage(page), expires: s.clock().Add(s.cacheTTL)}
}

func clonePage(src Page) Page {
	cp := src
	if src.Chrome != nil {
		c := *src.Chrome
		cp.Chrome = &c
	}
	return cp
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	parts := strings.Split(slug, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func sanitizeSlug(slug string) string {
	slug = strings.Trim(strings.TrimSpace(strings.ToLower(slug)), "/")
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		return ""
	}
	return slug
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
