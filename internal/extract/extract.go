// Package extract turns fetched source pages into article drafts. Page
// layouts vary across the site's sections, so extraction is organized as a
// small set of named strategies keyed by a detected layout signature.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pwieczorek/newsrelay/internal/news"
)

// Reason classifies an extraction failure. All reasons are non-fatal to the
// caller: the page is skipped and the pipeline continues.
type Reason string

// Extraction failure reasons.
const (
	ReasonMissingTitle       Reason = "missing_title"
	ReasonMissingBody        Reason = "missing_body"
	ReasonUnrecognizedLayout Reason = "unrecognized_layout"
)

// Error reports a failed extraction with its reason code.
type Error struct {
	URL    string
	Reason Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// publishedAtLayout matches the site's "02.01.2006 15:04" timestamps.
const publishedAtLayout = "02.01.2006 15:04"

// layout is one named extraction strategy.
type layout struct {
	name         string
	signature    []string
	title        []string
	subtitle     []string
	body         []string
	authors      []string
	image        []string
	imageCredits []string
}

var layouts = []layout{
	{
		name:      "article",
		signature: []string{"h1.articleTitle", "div.article--content", "h1.article--title"},
		title:     []string{"h1.articleTitle", "h1.article--title", "div.article--title", "header h1"},
		subtitle:  []string{"div.article--subtitle", ".article--lead", ".article-description"},
		body: []string{
			"div.article--content",
			"div.article-body",
			"div.article--text",
			"article.article-content",
		},
		authors:      []string{"div.author p.name a"},
		image:        []string{"picture img"},
		imageCredits: []string{"p.article--media--lead", "p.image--author"},
	},
	{
		name:         "blog",
		signature:    []string{"h1.blog--title", "div.blog--content"},
		title:        []string{"h1.blog--title", "header h1"},
		subtitle:     []string{"div.blog--subtitle"},
		body:         []string{"div.blog--content"},
		authors:      []string{"div.author p.name a"},
		image:        []string{"div.blog--image img", "picture img"},
		imageCredits: []string{"p.article--media--lead", "p.image--author"},
	},
}

// articleIDPattern matches the numeric article id segment present in every
// article URL on the site.
var articleIDPattern = regexp.MustCompile(`/art\d+`)

// skippedExtensions and skippedSections filter non-article links found on
// category pages.
var (
	skippedExtensions = []string{".jpg", ".pdf", ".png", ".xml", "rss", "feed"}
	skippedSections   = []string{"/logowanie", "/moj-profil", "/mapa-strony", "/regulamin", "/rodo"}
)

// Extractor parses source pages.
type Extractor struct {
	base *url.URL
}

// New builds an Extractor resolving relative links against baseURL.
func New(baseURL string) (*Extractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", baseURL)
	}
	return &Extractor{base: u}, nil
}

// Extract parses one article page into a draft. Extraction failures return
// an *Error carrying the reason code.
func (e *Extractor) Extract(page []byte, pageURL string) (news.ArticleDraft, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return news.ArticleDraft{}, fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	lay, ok := detectLayout(doc)
	if !ok {
		return news.ArticleDraft{}, &Error{URL: pageURL, Reason: ReasonUnrecognizedLayout}
	}

	title := firstText(doc, lay.title)
	if title == "" {
		return news.ArticleDraft{}, &Error{URL: pageURL, Reason: ReasonMissingTitle}
	}

	body := extractBody(doc, lay.body)
	if body == "" {
		return news.ArticleDraft{}, &Error{URL: pageURL, Reason: ReasonMissingBody}
	}

	canonical, err := news.CanonicalURL(pageURL)
	if err != nil {
		return news.ArticleDraft{}, fmt.Errorf("canonicalize %s: %w", pageURL, err)
	}

	draft := news.ArticleDraft{
		SourceURL:    canonical,
		Title:        title,
		Subtitle:     firstText(doc, lay.subtitle),
		PublishedAt:  parsePublishedAt(doc),
		Authors:      allText(doc, lay.authors),
		BodyText:     body,
		ImageURL:     e.imageURL(doc, lay.image),
		ImageCredits: allText(doc, lay.imageCredits),
	}
	return draft, nil
}

// ArticleLinks discovers article URLs on a category page, filtered to links
// carrying an article id and resolved against the base URL. The result is
// de-duplicated and preserves page order.
func (e *Extractor) ArticleLinks(page []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !e.isArticleURL(href) {
			return
		}
		abs := e.resolve(href)
		canonical, cErr := news.CanonicalURL(abs)
		if cErr != nil {
			return
		}
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, canonical)
	})
	return links, nil
}

// isArticleURL accepts same-site links that carry an article id segment.
func (e *Extractor) isArticleURL(href string) bool {
	if href == "" {
		return false
	}
	lower := strings.ToLower(href)

	sameSite := strings.HasPrefix(lower, "/") ||
		strings.HasPrefix(lower, strings.ToLower(e.base.Scheme+"://"+e.base.Host))
	if !sameSite {
		return false
	}
	for _, ext := range skippedExtensions {
		if strings.Contains(lower, ext) {
			return false
		}
	}
	for _, section := range skippedSections {
		if strings.Contains(lower, section) {
			return false
		}
	}
	return articleIDPattern.MatchString(lower)
}

func (e *Extractor) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return e.base.ResolveReference(ref).String()
}

func (e *Extractor) imageURL(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if src, ok := doc.Find(sel).First().Attr("src"); ok && src != "" {
			return e.resolve(src)
		}
	}
	return ""
}

func detectLayout(doc *goquery.Document) (layout, bool) {
	for _, lay := range layouts {
		for _, sel := range lay.signature {
			if doc.Find(sel).Length() > 0 {
				return lay, true
			}
		}
	}
	return layout{}, false
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func allText(doc *goquery.Document, selectors []string) []string {
	var out []string
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				out = append(out, text)
			}
		})
	}
	return out
}

// extractBody joins content paragraphs, skipping figure captions and image
// credit lines that live inside the content container.
func extractBody(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		var parts []string
		container.Find("p").Each(func(_ int, p *goquery.Selection) {
			if p.ParentsFiltered("figcaption").Length() > 0 {
				return
			}
			if p.HasClass("image--author") || p.HasClass("article--media--lead") {
				return
			}
			if text := strings.TrimSpace(p.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}

func parsePublishedAt(doc *goquery.Document) time.Time {
	raw := strings.TrimSpace(doc.Find("#livePublishedAtContainer").First().Text())
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(publishedAtLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
