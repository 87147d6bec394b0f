package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/deusflow/trendhunter/internal/logger"
)

// Postgres implements Store on PostgreSQL. The unique constraint on
// news.link is what turns a re-observed article into an update instead of a
// duplicate.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(connectionString string) (*Postgres, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Postgres{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("postgres store ready")
	return store, nil
}

func (p *Postgres) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS keywords (
		id SERIAL PRIMARY KEY,
		keyword TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS news (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		link TEXT UNIQUE NOT NULL,
		source TEXT,
		published_at TIMESTAMPTZ,
		keyword TEXT NOT NULL,
		trend_score INTEGER NOT NULL DEFAULT 0,
		trend_signal BOOLEAN NOT NULL DEFAULT FALSE,
		is_new BOOLEAN NOT NULL DEFAULT TRUE,
		saved BOOLEAN NOT NULL DEFAULT FALSE,
		discovered_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_news_keyword ON news(keyword);
	CREATE INDEX IF NOT EXISTS idx_news_published_at ON news(published_at);
	CREATE INDEX IF NOT EXISTS idx_news_is_new ON news(is_new);

	CREATE TABLE IF NOT EXISTS scans (
		id SERIAL PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		new_articles INTEGER NOT NULL DEFAULT 0,
		total_articles INTEGER NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL DEFAULT TRUE,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return err
	}

	defaults := map[string]string{
		SettingAutoScan:        "0",
		SettingIntervalMinutes: "10",
		SettingLastScanTime:    "",
	}
	for key, value := range defaults {
		_, err := p.db.Exec(
			`INSERT INTO settings(key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) AddKeyword(ctx context.Context, keyword string, createdAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO keywords(keyword, created_at) VALUES ($1, $2)`,
		keyword, createdAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateKeyword
		}
		return fmt.Errorf("add keyword: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteKeyword(ctx context.Context, keyword string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM keywords WHERE keyword = $1`, keyword)
	if err != nil {
		return fmt.Errorf("delete keyword: %w", err)
	}
	return nil
}

func (p *Postgres) ListKeywords(ctx context.Context) ([]Keyword, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT k.id, k.keyword, k.created_at,
		       (SELECT COUNT(*) FROM news n WHERE n.keyword = k.keyword) AS count
		FROM keywords k
		ORDER BY k.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var out []Keyword
	for rows.Next() {
		var k Keyword
		if err := rows.Scan(&k.ID, &k.Keyword, &k.CreatedAt, &k.ArticleCount); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertArticle(ctx context.Context, a Article) (bool, error) {
	// The latest computed score always wins on conflict: recency and
	// density are relative to the current cycle, so the old score
	// describes a stale cycle. Source and publish time are backfilled
	// only when absent. xmax = 0 distinguishes a fresh insert from a
	// conflict update.
	var inserted bool
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO news (title, link, source, published_at, keyword, trend_score, trend_signal, is_new, discovered_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, TRUE, $8)
		ON CONFLICT (link) DO UPDATE SET
			trend_score = EXCLUDED.trend_score,
			trend_signal = EXCLUDED.trend_signal,
			keyword = EXCLUDED.keyword,
			source = COALESCE(news.source, EXCLUDED.source),
			published_at = COALESCE(news.published_at, EXCLUDED.published_at)
		RETURNING (xmax = 0)
	`, a.Title, a.Link, a.Source, a.PublishedAt, a.Keyword, a.TrendScore, a.TrendSignal, a.DiscoveredAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert article: %w", err)
	}
	return inserted, nil
}

func (p *Postgres) ListArticles(ctx context.Context, f ArticleFilter) ([]Article, int, error) {
	where := ""
	args := []any{}

	switch f.Filter {
	case "new":
		where = "WHERE is_new = TRUE"
	case "saved":
		where = "WHERE saved = TRUE"
	}
	if f.Keyword != "" {
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		args = append(args, f.Keyword)
		where += fmt.Sprintf("keyword = $%d", len(args))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 120
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT id, title, link, COALESCE(source, ''), COALESCE(published_at, discovered_at), keyword,
		       trend_score, trend_signal, is_new, saved, discovered_at
		FROM news %s
		ORDER BY published_at DESC NULLS LAST, trend_score DESC, discovered_at DESC
		LIMIT $%d
	`, where, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Link, &a.Source, &a.PublishedAt, &a.Keyword,
			&a.TrendScore, &a.TrendSignal, &a.IsNew, &a.Saved, &a.DiscoveredAt); err != nil {
			return nil, 0, fmt.Errorf("scan article row: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (p *Postgres) MarkAllSeen(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `UPDATE news SET is_new = FALSE WHERE is_new = TRUE`)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (p *Postgres) ToggleSaved(ctx context.Context, id int64) (bool, error) {
	var saved bool
	err := p.db.QueryRowContext(ctx,
		`UPDATE news SET saved = NOT saved WHERE id = $1 RETURNING saved`, id,
	).Scan(&saved)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle saved: %w", err)
	}
	return saved, nil
}

func (p *Postgres) RecordScanStart(ctx context.Context, startedAt time.Time) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO scans(started_at) VALUES ($1) RETURNING id`, startedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record scan start: %w", err)
	}
	return id, nil
}

func (p *Postgres) RecordScanEnd(ctx context.Context, id int64, finishedAt time.Time, newArticles, totalArticles int, success bool, errMsg string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE scans
		SET finished_at = $1, new_articles = $2, total_articles = $3, success = $4, error = NULLIF($5, '')
		WHERE id = $6
	`, finishedAt, newArticles, totalArticles, success, errMsg, id)
	if err != nil {
		return fmt.Errorf("record scan end: %w", err)
	}
	return nil
}

func (p *Postgres) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, new_articles, total_articles, success, COALESCE(error, '')
		FROM scans ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var s Scan
		var finished sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &finished, &s.NewArticles, &s.TotalArticles, &s.Success, &s.Error); err != nil {
			return nil, fmt.Errorf("scan scans row: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			s.FinishedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) SetSetting(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings(key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM news),
			(SELECT COUNT(*) FROM news WHERE is_new = TRUE),
			(SELECT COUNT(*) FROM news WHERE saved = TRUE),
			(SELECT COUNT(*) FROM keywords),
			(SELECT COUNT(*) FROM scans WHERE success = TRUE)
	`).Scan(&c.TotalNews, &c.NewCount, &c.SavedCount, &c.KeywordCount, &c.ScanCount)
	if err != nil {
		return c, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}
