// Package server is the HTTP surface: a JSON API over the store, the scan
// orchestrator and the trends read path.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/deusflow/trendhunter/internal/digest"
	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/metrics"
	"github.com/deusflow/trendhunter/internal/newsfeed"
	"github.com/deusflow/trendhunter/internal/scanner"
	"github.com/deusflow/trendhunter/internal/storage"
	"github.com/deusflow/trendhunter/internal/trends"
)

type Server struct {
	echo         *echo.Echo
	store        storage.Store
	orchestrator *scanner.Orchestrator
	coordinator  *scanner.Coordinator
	news         *newsfeed.Reader
	trends       *trends.Service
	digest       *digest.Service // nil when no API key is configured
	metrics      *metrics.Metrics

	previewMaxItems int
}

func New(store storage.Store, orchestrator *scanner.Orchestrator, coordinator *scanner.Coordinator, news *newsfeed.Reader, trendsSvc *trends.Service, digestSvc *digest.Service, m *metrics.Metrics, previewMaxItems int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:            e,
		store:           store,
		orchestrator:    orchestrator,
		coordinator:     coordinator,
		news:            news,
		trends:          trendsSvc,
		digest:          digestSvc,
		metrics:         m,
		previewMaxItems: previewMaxItems,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", s.handleMetrics)

	api := s.echo.Group("/api")
	api.GET("/status", s.handleStatus)

	api.GET("/keywords", s.handleListKeywords)
	api.POST("/keywords", s.handleAddKeyword)
	api.DELETE("/keywords/:keyword", s.handleDeleteKeyword)

	api.GET("/news", s.handleListNews)
	api.GET("/news/preview", s.handlePreview)
	api.POST("/mark-seen", s.handleMarkSeen)
	api.POST("/save/:id", s.handleToggleSaved)

	api.POST("/scan", s.handleScan)
	api.GET("/scans", s.handleListScans)

	api.GET("/settings", s.handleGetSettings)
	api.POST("/settings", s.handleUpdateSettings)

	api.GET("/trends/last-hour", s.handleLastHour)
	api.GET("/trends/related", s.handleRelated)
	api.GET("/discover", s.handleDiscover)
	api.GET("/digest", s.handleDigest)
}

func (s *Server) Start(addr string) error {
	logger.Info("http server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	if !s.metrics.Healthy() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	return c.JSON(status, body)
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := s.store.Counts(ctx)
	if err != nil {
		return s.internalError(c, "load counts", err)
	}
	autoScan, err := s.store.GetSetting(ctx, storage.SettingAutoScan)
	if err != nil {
		return s.internalError(c, "load settings", err)
	}
	interval, err := s.store.GetSetting(ctx, storage.SettingIntervalMinutes)
	if err != nil {
		return s.internalError(c, "load settings", err)
	}
	lastScan, err := s.store.GetSetting(ctx, storage.SettingLastScanTime)
	if err != nil {
		return s.internalError(c, "load settings", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"counts":           counts,
		"auto_scan":        autoScan == "1",
		"interval_minutes": scanner.ClampInterval(interval),
		"last_scan_time":   lastScan,
		"is_scanning":      s.coordinator.Scanning(),
	})
}

func (s *Server) handleListKeywords(c echo.Context) error {
	keywords, err := s.store.ListKeywords(c.Request().Context())
	if err != nil {
		return s.internalError(c, "list keywords", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"keywords": keywords})
}

func (s *Server) handleAddKeyword(c echo.Context) error {
	var req struct {
		Keyword string `json:"keyword"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		return badRequest(c, "keyword is required")
	}

	err := s.store.AddKeyword(c.Request().Context(), keyword, time.Now().UTC())
	if errors.Is(err, storage.ErrDuplicateKeyword) {
		return c.JSON(http.StatusConflict, map[string]any{"error": "keyword already tracked"})
	}
	if err != nil {
		return s.internalError(c, "add keyword", err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "keyword": keyword})
}

func (s *Server) handleDeleteKeyword(c echo.Context) error {
	keyword := strings.TrimSpace(c.Param("keyword"))
	if keyword == "" {
		return badRequest(c, "keyword is required")
	}
	if err := s.store.DeleteKeyword(c.Request().Context(), keyword); err != nil {
		return s.internalError(c, "delete keyword", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListNews(c echo.Context) error {
	filter := storage.ArticleFilter{
		Filter:  c.QueryParam("filter"),
		Keyword: c.QueryParam("keyword"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		if limit > 500 {
			limit = 500
		}
		filter.Limit = limit
	}

	articles, total, err := s.store.ListArticles(c.Request().Context(), filter)
	if err != nil {
		return s.internalError(c, "list articles", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"articles": articles,
		"total":    total,
	})
}

// handlePreview fetches and parses the news feed for one keyword without
// scoring or persisting anything. Useful for checking what a keyword yields
// before tracking it.
func (s *Server) handlePreview(c echo.Context) error {
	keyword := strings.TrimSpace(c.QueryParam("keyword"))
	if keyword == "" {
		return badRequest(c, "keyword is required")
	}

	items, err := s.news.Fetch(c.Request().Context(), keyword, s.previewMaxItems)
	if err != nil {
		return s.internalError(c, "preview feed", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"keyword": keyword,
		"items":   items,
	})
}

func (s *Server) handleMarkSeen(c echo.Context) error {
	if err := s.store.MarkAllSeen(c.Request().Context()); err != nil {
		return s.internalError(c, "mark seen", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleToggleSaved(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return badRequest(c, "id must be a positive integer")
	}

	saved, err := s.store.ToggleSaved(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "article not found"})
	}
	if err != nil {
		return s.internalError(c, "toggle saved", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "saved": saved})
}

func (s *Server) handleScan(c echo.Context) error {
	result, err := s.orchestrator.Scan(c.Request().Context())
	if errors.Is(err, scanner.ErrScanInProgress) {
		return c.JSON(http.StatusConflict, result)
	}
	if err != nil {
		return s.internalError(c, "scan", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleListScans(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = parsed
	}
	scans, err := s.store.ListScans(c.Request().Context(), limit)
	if err != nil {
		return s.internalError(c, "list scans", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"scans": scans})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	ctx := c.Request().Context()
	autoScan, err := s.store.GetSetting(ctx, storage.SettingAutoScan)
	if err != nil {
		return s.internalError(c, "load settings", err)
	}
	interval, err := s.store.GetSetting(ctx, storage.SettingIntervalMinutes)
	if err != nil {
		return s.internalError(c, "load settings", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"auto_scan":        autoScan == "1",
		"interval_minutes": scanner.ClampInterval(interval),
	})
}

// handleUpdateSettings validates the raw values first and only then clamps
// the interval, so a well-formed but out-of-range value is accepted and
// clamped while garbage is rejected.
func (s *Server) handleUpdateSettings(c echo.Context) error {
	var req struct {
		AutoScan        *bool `json:"auto_scan"`
		IntervalMinutes *int  `json:"interval_minutes"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.AutoScan == nil && req.IntervalMinutes == nil {
		return badRequest(c, "nothing to update")
	}

	ctx := c.Request().Context()
	if req.AutoScan != nil {
		value := "0"
		if *req.AutoScan {
			value = "1"
		}
		if err := s.store.SetSetting(ctx, storage.SettingAutoScan, value); err != nil {
			return s.internalError(c, "save settings", err)
		}
	}
	if req.IntervalMinutes != nil {
		clamped := scanner.ClampInterval(strconv.Itoa(*req.IntervalMinutes))
		if err := s.store.SetSetting(ctx, storage.SettingIntervalMinutes, strconv.Itoa(clamped)); err != nil {
			return s.internalError(c, "save settings", err)
		}
	}
	return s.handleGetSettings(c)
}

// requestedKeywords resolves the keyword query parameter (comma-separated)
// and falls back to every tracked keyword when absent.
func (s *Server) requestedKeywords(c echo.Context) ([]string, error) {
	if keywords := splitParam(c.QueryParam("keyword")); len(keywords) > 0 {
		return keywords, nil
	}
	tracked, err := s.store.ListKeywords(c.Request().Context())
	if err != nil {
		return nil, err
	}
	keywords := make([]string, 0, len(tracked))
	for _, kw := range tracked {
		keywords = append(keywords, kw.Keyword)
	}
	return keywords, nil
}

func (s *Server) handleLastHour(c echo.Context) error {
	keywords, err := s.requestedKeywords(c)
	if err != nil {
		return s.internalError(c, "list keywords", err)
	}
	if len(keywords) == 0 {
		return c.JSON(http.StatusOK, map[string]any{"series": []trends.SeriesResult{}})
	}

	series, err := s.trends.LastHourInterest(c.Request().Context(), keywords, boolParam(c, "force"))
	if err != nil {
		return s.internalError(c, "interest lookup", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"series": series})
}

// handleRelated serves one keyword's related queries; without an explicit
// keyword it falls back to the newest tracked one.
func (s *Server) handleRelated(c echo.Context) error {
	keyword := strings.TrimSpace(c.QueryParam("keyword"))
	if keyword == "" {
		tracked, err := s.store.ListKeywords(c.Request().Context())
		if err != nil {
			return s.internalError(c, "list keywords", err)
		}
		if len(tracked) == 0 {
			return badRequest(c, "keyword is required")
		}
		keyword = tracked[0].Keyword
	}
	timeframe, err := timeframeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	related, err := s.trends.Related(c.Request().Context(), keyword, timeframe, boolParam(c, "force"))
	if err != nil {
		return s.internalError(c, "related lookup", err)
	}
	return c.JSON(http.StatusOK, related)
}

func (s *Server) handleDiscover(c echo.Context) error {
	keywords, err := s.requestedKeywords(c)
	if err != nil {
		return s.internalError(c, "list keywords", err)
	}
	if len(keywords) == 0 {
		return badRequest(c, "no keywords to discover from")
	}
	timeframe, err := timeframeParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result := s.trends.Discover(c.Request().Context(), keywords, timeframe, c.QueryParam("mode"), boolParam(c, "force"))
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleDigest(c echo.Context) error {
	if s.digest == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "digest is not configured"})
	}
	d, err := s.digest.Generate(c.Request().Context(), boolParam(c, "force"))
	if err != nil {
		return s.internalError(c, "generate digest", err)
	}
	return c.JSON(http.StatusOK, d)
}

func timeframeParam(c echo.Context) (string, error) {
	switch c.QueryParam("timeframe") {
	case "", "1h":
		return trends.TimeframeLastHour, nil
	case "4h":
		return trends.TimeframeLast4Hour, nil
	default:
		return "", fmt.Errorf("timeframe must be 1h or 4h")
	}
}

func splitParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolParam(c echo.Context, name string) bool {
	v := c.QueryParam(name)
	return v == "1" || v == "true"
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"error": msg})
}

func (s *Server) internalError(c echo.Context, op string, err error) error {
	logger.Error(op, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
