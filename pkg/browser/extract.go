package browser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrInvalidSelector is returned for CSS selectors that do not compile.
var ErrInvalidSelector = errors.New("invalid selector")

// Snapshot is a parsed copy of a page's DOM. Extraction rules are evaluated
// against it rather than inside the live page.
type Snapshot struct {
	doc  *goquery.Document
	base *url.URL
}

// ParseSnapshot parses serialized page content. pageURL resolves relative
// links and may be empty.
func ParseSnapshot(content, pageURL string) (*Snapshot, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	s := &Snapshot{doc: goquery.NewDocumentFromNode(root)}
	if pageURL != "" {
		if base, err := url.Parse(pageURL); err == nil {
			s.base = base
		}
	}
	return s, nil
}

// Headlines returns the text of every element matching selector whose
// normalized text is at least minLength characters long, in document order.
func (s *Snapshot) Headlines(selector string, minLength int) ([]Headline, error) {
	sel, err := s.find(selector)
	if err != nil {
		return nil, err
	}

	headlines := []Headline{}
	sel.Each(func(_ int, el *goquery.Selection) {
		text := elementText(el)
		if utf8.RuneCountInString(text) < minLength {
			return
		}
		class, _ := el.Attr("class")
		headlines = append(headlines, Headline{
			Text:  text,
			Tag:   tagName(el),
			Class: strings.TrimSpace(class),
		})
	})
	return headlines, nil
}

// Products returns one record per product card matching selector.
func (s *Snapshot) Products(selector string) ([]Product, error) {
	sel, err := s.find(selector)
	if err != nil {
		return nil, err
	}

	products := []Product{}
	sel.Each(func(_ int, card *goquery.Selection) {
		products = append(products, Product{
			Name:  firstText(card, ".name, .title, h3", "Unknown"),
			Price: firstText(card, ".price, .cost", "N/A"),
			Image: s.firstURL(card, "img", "src"),
			Link:  s.firstURL(card, "a", "href"),
		})
	})
	return products, nil
}

// Title returns the document title.
func (s *Snapshot) Title() string {
	return collapseWhitespace(s.doc.Find("title").First().Text())
}

// find rejects selectors that do not compile; goquery would silently match
// nothing.
func (s *Snapshot) find(selector string) (*goquery.Selection, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}
	return s.doc.FindMatcher(matcher), nil
}

func (s *Snapshot) firstURL(card *goquery.Selection, selector, attr string) *string {
	raw, ok := card.Find(selector).First().Attr(attr)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	if s.base != nil {
		ref = s.base.ResolveReference(ref)
	}
	abs := ref.String()
	return &abs
}

func firstText(card *goquery.Selection, selector, def string) string {
	if text := elementText(card.Find(selector).First()); text != "" {
		return text
	}
	return def
}

// elementText collects visible text below the selection, skipping script
// and style content, with whitespace collapsed.
func elementText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		collectText(n, &b)
	}
	return collapseWhitespace(b.String())
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && isSkippedElement(n.Data) {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func isSkippedElement(tag string) bool {
	switch strings.ToLower(tag) {
	case "script", "style", "noscript", "svg", "template":
		return true
	}
	return false
}

func tagName(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	return strings.ToLower(sel.Nodes[0].Data)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
