package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory implements Store in process memory. It backs tests and local runs
// without a database; semantics mirror the Postgres implementation,
// including link uniqueness and the conflict update rules.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	keywords []Keyword
	articles []Article
	scans    []Scan
	settings map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		settings: map[string]string{
			SettingAutoScan:        "0",
			SettingIntervalMinutes: "10",
			SettingLastScanTime:    "",
		},
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) AddKeyword(_ context.Context, keyword string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keywords {
		if k.Keyword == keyword {
			return ErrDuplicateKeyword
		}
	}
	m.keywords = append(m.keywords, Keyword{ID: m.id(), Keyword: keyword, CreatedAt: createdAt})
	return nil
}

func (m *Memory) DeleteKeyword(_ context.Context, keyword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.keywords[:0]
	for _, k := range m.keywords {
		if k.Keyword != keyword {
			out = append(out, k)
		}
	}
	m.keywords = out
	return nil
}

func (m *Memory) ListKeywords(_ context.Context) ([]Keyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Keyword, len(m.keywords))
	copy(out, m.keywords)
	for i := range out {
		count := 0
		for _, a := range m.articles {
			if a.Keyword == out[i].Keyword {
				count++
			}
		}
		out[i].ArticleCount = count
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpsertArticle(_ context.Context, a Article) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.articles {
		if m.articles[i].Link == a.Link {
			existing := &m.articles[i]
			existing.TrendScore = a.TrendScore
			existing.TrendSignal = a.TrendSignal
			existing.Keyword = a.Keyword
			if existing.Source == "" {
				existing.Source = a.Source
			}
			if existing.PublishedAt.IsZero() {
				existing.PublishedAt = a.PublishedAt
			}
			return false, nil
		}
	}

	a.ID = m.id()
	a.IsNew = true
	a.Saved = false
	m.articles = append(m.articles, a)
	return true, nil
}

func (m *Memory) ListArticles(_ context.Context, f ArticleFilter) ([]Article, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Article
	for _, a := range m.articles {
		if f.Filter == "new" && !a.IsNew {
			continue
		}
		if f.Filter == "saved" && !a.Saved {
			continue
		}
		if f.Keyword != "" && a.Keyword != f.Keyword {
			continue
		}
		matched = append(matched, a)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].PublishedAt.Equal(matched[j].PublishedAt) {
			return matched[i].PublishedAt.After(matched[j].PublishedAt)
		}
		if matched[i].TrendScore != matched[j].TrendScore {
			return matched[i].TrendScore > matched[j].TrendScore
		}
		return matched[i].DiscoveredAt.After(matched[j].DiscoveredAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 120
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *Memory) MarkAllSeen(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.articles {
		m.articles[i].IsNew = false
	}
	return nil
}

func (m *Memory) ToggleSaved(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.articles {
		if m.articles[i].ID == id {
			m.articles[i].Saved = !m.articles[i].Saved
			return m.articles[i].Saved, nil
		}
	}
	return false, ErrNotFound
}

func (m *Memory) RecordScanStart(_ context.Context, startedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scan := Scan{ID: m.id(), StartedAt: startedAt, Success: true}
	m.scans = append(m.scans, scan)
	return scan.ID, nil
}

func (m *Memory) RecordScanEnd(_ context.Context, id int64, finishedAt time.Time, newArticles, totalArticles int, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.scans {
		if m.scans[i].ID == id {
			t := finishedAt
			m.scans[i].FinishedAt = &t
			m.scans[i].NewArticles = newArticles
			m.scans[i].TotalArticles = totalArticles
			m.scans[i].Success = success
			m.scans[i].Error = errMsg
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListScans(_ context.Context, limit int) ([]Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 30
	}
	out := make([]Scan, len(m.scans))
	copy(out, m.scans)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[key], nil
}

func (m *Memory) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *Memory) Counts(_ context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Counts{KeywordCount: len(m.keywords), TotalNews: len(m.articles)}
	for _, a := range m.articles {
		if a.IsNew {
			c.NewCount++
		}
		if a.Saved {
			c.SavedCount++
		}
	}
	for _, s := range m.scans {
		if s.FinishedAt != nil && s.Success {
			c.ScanCount++
		}
	}
	return c, nil
}

// FindByLink is a test helper.
func (m *Memory) FindByLink(link string) (Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.articles {
		if a.Link == link {
			return a, true
		}
	}
	return Article{}, false
}
