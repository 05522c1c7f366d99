// Package ingestion turns health articles into draft knowledge entries.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/textproc"
	"github.com/telemed-faq/backend/pkg/logger"
)

const (
	DefaultMaxKeywords = 8
	// summarizeAbove is the content length past which an article is
	// condensed before it becomes an entry body.
	summarizeAbove = 4000
)

var ErrNoContent = errors.New("no content extracted from HTML")

type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// Article is the cleaned form of an imported page.
type Article struct {
	Title     string
	Content   string
	Keywords  []string
	SourceURL string
}

type Processor struct {
	summarizer  Summarizer
	maxKeywords int
}

// NewProcessor returns a processor. summarizer may be nil, in which case
// long articles are kept whole.
func NewProcessor(summarizer Summarizer) *Processor {
	return &Processor{summarizer: summarizer, maxKeywords: DefaultMaxKeywords}
}

func (p *Processor) ProcessHTML(ctx context.Context, sourceURL, html string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := extractTitle(doc)
	content := extractContent(doc)
	if content == "" {
		return nil, ErrNoContent
	}

	body := content
	if p.summarizer != nil && len(content) > summarizeAbove {
		summary, err := p.summarizer.Summarize(ctx, content[:summarizeAbove])
		if err != nil {
			logger.Warn("Failed to summarize article, keeping full text",
				zap.String("source_url", sourceURL),
				zap.Error(err),
			)
		} else if strings.TrimSpace(summary) != "" {
			body = strings.TrimSpace(summary)
		}
	}

	article := &Article{
		Title:     title,
		Content:   body,
		Keywords:  ExtractKeywords(title+". "+content, p.maxKeywords),
		SourceURL: sourceURL,
	}

	logger.Info("Article processed",
		zap.String("source_url", sourceURL),
		zap.String("title", title),
		zap.Int("content_length", len(body)),
		zap.Strings("keywords", article.Keywords),
	)
	return article, nil
}

func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}
	return collapseSpace(title)
}

func extractContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, noscript").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		if text := collapseSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n")
	}
	return collapseSpace(root.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractKeywords returns up to limit keywords for text, most frequent
// first. Nouns found by the part-of-speech tagger are preferred; plain
// token frequency is used when the tagger finds none.
func ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxKeywords
	}

	counts := nounCounts(text)
	if len(counts) == 0 {
		counts = tokenCounts(text)
	}

	keywords := make([]string, 0, len(counts))
	for k := range counts {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

func nounCounts(text string) map[string]int {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		logger.Debug("Tagger failed, falling back to token counts", zap.Error(err))
		return nil
	}

	counts := make(map[string]int)
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		for _, t := range textproc.Tokenize(tok.Text) {
			counts[t]++
		}
	}
	return counts
}

func tokenCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, t := range textproc.Tokenize(text) {
		counts[t]++
	}
	return counts
}
