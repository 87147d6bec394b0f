// Package scraper extracts readable article text from news pages for the
// digest. It is deliberately generic: a cascade of common content selectors
// with a plain-paragraph fallback.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/trendhunter/internal/fetch"
)

// ArticleContent is the extracted text of one article page.
type ArticleContent struct {
	Title   string
	Content string
	URL     string
}

type Extractor struct {
	client *fetch.Client
}

func NewExtractor(client *fetch.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract downloads the page and pulls out its title and body text.
func (e *Extractor) Extract(ctx context.Context, url string) (*ArticleContent, error) {
	raw, err := e.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("load article page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse article HTML: %w", err)
	}

	content := extractContent(doc)
	if content == "" {
		return nil, fmt.Errorf("no readable content at %s", url)
	}

	return &ArticleContent{
		Title:   extractTitle(doc),
		Content: content,
		URL:     url,
	}, nil
}

// extractContent tries common article-body selectors in order and stops at
// the first that yields paragraphs.
func extractContent(doc *goquery.Document) string {
	selectors := []string{
		"article p",
		".article-body p",
		".article-content p",
		".post-content p",
		".entry-content p",
		".content p",
		"main p",
	}

	for _, selector := range selectors {
		paragraphs := collectParagraphs(doc, selector)
		if len(paragraphs) > 0 {
			return cleanContent(strings.Join(paragraphs, "\n\n"))
		}
	}

	// Last resort: every paragraph on the page.
	return cleanContent(strings.Join(collectParagraphs(doc, "p"), "\n\n"))
}

func collectParagraphs(doc *goquery.Document, selector string) []string {
	var paragraphs []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 10 {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// cleanContent drops boilerplate lines that survive the selectors, like
// cookie banners and share prompts.
func cleanContent(content string) string {
	noise := []string{
		"cookie", "cookies", "accepter", "advertisement", "annonce",
		"subscribe", "newsletter", "share this", "follow us",
	}

	var kept []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		skip := false
		for _, n := range noise {
			if strings.Contains(lower, n) && len(line) < 120 {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
