// Package digest summarizes the day's strongest trend hits with Gemini.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/trendhunter/internal/cache"
	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/ratelimit"
	"github.com/deusflow/trendhunter/internal/scraper"
	"github.com/deusflow/trendhunter/internal/storage"
)

const (
	modelName       = "gemini-1.5-flash"
	maxDigestItems  = 6
	maxPromptChars  = 6000
	digestCacheKey  = "daily"
	minDigestScore  = 60
	scrapePerDigest = 3
)

// Digest is one generated summary.
type Digest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Articles    int       `json:"articles"`
	Summary     string    `json:"summary"`
	Remaining   int       `json:"requests_remaining"`
}

type Service struct {
	store     storage.Store
	extractor *scraper.Extractor
	client    *genai.Client
	limiter   *ratelimit.Limiter
	cache     *cache.Cache[Digest]
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewService builds the digest service; a missing API key disables it and
// NewService returns nil.
func NewService(ctx context.Context, apiKey string, store storage.Store, extractor *scraper.Extractor, limiter *ratelimit.Limiter, cacheTTL time.Duration) (*Service, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Service{
		store:     store,
		extractor: extractor,
		client:    client,
		limiter:   limiter,
		cache:     cache.New[Digest](),
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}, nil
}

func (s *Service) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Generate returns the cached digest when fresh, otherwise summarizes the
// current top trend hits. The model budget is consumed only on a cache miss.
func (s *Service) Generate(ctx context.Context, forceRefresh bool) (Digest, error) {
	return s.cache.GetOrCompute(digestCacheKey, s.cacheTTL, forceRefresh, func() (Digest, error) {
		return s.generate(ctx)
	})
}

func (s *Service) generate(ctx context.Context) (Digest, error) {
	articles, _, err := s.store.ListArticles(ctx, storage.ArticleFilter{Limit: 50})
	if err != nil {
		return Digest{}, fmt.Errorf("load articles for digest: %w", err)
	}

	var picked []storage.Article
	for _, a := range articles {
		if a.TrendSignal && a.TrendScore >= minDigestScore {
			picked = append(picked, a)
		}
		if len(picked) == maxDigestItems {
			break
		}
	}
	if len(picked) == 0 {
		return Digest{}, fmt.Errorf("no trend hits to summarize")
	}

	if err := s.limiter.Take(); err != nil {
		return Digest{}, fmt.Errorf("digest budget: %w", err)
	}

	summary, err := s.summarize(ctx, picked)
	if err != nil {
		return Digest{}, err
	}

	return Digest{
		GeneratedAt: s.now().UTC(),
		Articles:    len(picked),
		Summary:     summary,
		Remaining:   s.limiter.Remaining(),
	}, nil
}

func (s *Service) summarize(ctx context.Context, articles []storage.Article) (string, error) {
	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. [%s] %s (trend score %d)\n", i+1, a.Keyword, a.Title, a.TrendScore)

		// Scraping every article makes the digest slow; a few full texts
		// give the model enough grounding.
		if i < scrapePerDigest {
			if content, err := s.extractor.Extract(ctx, a.Link); err == nil {
				fmt.Fprintf(&b, "%s\n", truncate(content.Content, 1500))
			} else {
				logger.Debug("digest: article text unavailable", "link", a.Link, "error", err)
			}
		}
		b.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are a news analyst. Below are today's trending news articles with their tracked keywords and trend scores.

%s

Write a concise digest (max 1500 characters) in plain prose:
- Lead with the strongest story.
- Group related stories.
- No introductions like "Here is a summary". Start with the content.`, truncate(b.String(), maxPromptChars))

	model := s.client.GenerativeModel(modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate digest: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])), nil
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) + "…"
}
