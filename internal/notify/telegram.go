// Package notify pushes scan alerts to a Telegram chat. Alerts are best
// effort: a failed delivery is logged and forgotten, never surfaced to the
// scan.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/retry"
	"github.com/deusflow/trendhunter/internal/storage"
)

const maxAlertArticles = 5

type Telegram struct {
	token  string
	chatID string
	client *http.Client
	retry  retry.Config
}

// NewTelegram returns nil when token or chat id are unset, which disables
// alerting altogether.
func NewTelegram(token, chatID string, attempts int, delay time.Duration) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Telegram{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 30 * time.Second},
		retry:  retry.Config{MaxAttempts: attempts, Delay: delay, Backoff: true},
	}
}

// ScanAlert sends one message listing the highest scoring trend hits of a
// finished scan.
func (t *Telegram) ScanAlert(ctx context.Context, articles []storage.Article) {
	if len(articles) == 0 {
		return
	}
	msg := formatAlert(articles)
	if err := retry.Do(ctx, t.retry, func() error {
		return t.send(ctx, msg)
	}); err != nil {
		logger.Warn("telegram alert not delivered", "articles", len(articles), "error", err)
		return
	}
	logger.Info("telegram alert sent", "articles", len(articles))
}

func formatAlert(articles []storage.Article) string {
	var b strings.Builder
	b.WriteString("🔥 <b>Trend hits</b>\n\n")

	for i, a := range articles {
		if i >= maxAlertArticles {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(articles)-maxAlertArticles))
			break
		}
		b.WriteString(fmt.Sprintf("<b>%d.</b> <a href=\"%s\">%s</a>\n", i+1, a.Link, a.Title))
		b.WriteString(fmt.Sprintf("     %s | score %d | %s\n\n", a.Keyword, a.TrendScore, a.Source))
	}
	return b.String()
}

func (t *Telegram) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API status %d", resp.StatusCode)
	}
	return nil
}
