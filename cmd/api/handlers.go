package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReconcile/internal/cache"
	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
)

// Handlers holds HTTP handlers for the reconciliation API
// 棚卸分析API用のHTTPハンドラーを保持
type Handlers struct {
	analyzer reconcile.Analyzer
	cache    cache.AnalyticsCache
	metrics  http.Handler
	logger   *zap.Logger
	location *time.Location
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(analyzer reconcile.Analyzer, analyticsCache cache.AnalyticsCache, metrics http.Handler, logger *zap.Logger) *Handlers {
	if analyticsCache == nil {
		analyticsCache = cache.NewNoopAnalyticsCache()
	}
	return &Handlers{
		analyzer: analyzer,
		cache:    analyticsCache,
		metrics:  metrics,
		logger:   logger,
		location: time.UTC,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ExportRequestBody represents the body of an export request
// エクスポートリクエストの本文を表現
type ExportRequestBody struct {
	reconcile.ExportOptions
	From string `json:"from,omitempty"` // YYYY-MM-DD
	To   string `json:"to,omitempty"`   // YYYY-MM-DD
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if err := h.analyzer.Ping(ctx); err != nil {
		h.logger.Warn("ヘルスチェックに失敗しました", zap.Error(err))
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
			"service":   "zaiReconcile",
		},
	})
}

// Metrics serves Prometheus metrics
// メトリクスリクエストを処理
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		h.sendError(w, http.StatusNotFound, "メトリクスは無効化されています")
		return
	}
	h.metrics.ServeHTTP(w, r)
}

// DailyMetrics handles daily metrics requests
// 日次分析リクエストを処理
func (h *Handlers) DailyMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := h.parseDate(q.Get("date"))
	if err != nil || date.IsZero() {
		h.sendError(w, http.StatusBadRequest, "dateはYYYY-MM-DD形式で指定してください")
		return
	}
	includeVoided, err := parseBool(q.Get("include_voided"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "include_voidedが無効です")
		return
	}
	countedOnly, err := parseBool(q.Get("counted_only"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "counted_onlyが無効です")
		return
	}

	req := reconcile.DailyRequest{
		OrganizationID: mux.Vars(r)["orgId"],
		Date:           date,
		Selection:      splitList(q.Get("sessions")),
		IncludeVoided:  includeVoided,
		CountedOnly:    countedOnly,
	}
	if teamID := q.Get("team_id"); teamID != "" {
		req.TeamID = &teamID
	}

	var cached reconcile.DailyResult
	if h.cacheGet(r.Context(), "daily", req, &cached) {
		h.sendSuccess(w, cached)
		return
	}

	result, err := h.analyzer.DailyMetrics(r.Context(), req)
	if err != nil {
		h.sendAnalysisError(w, err)
		return
	}

	h.cacheSet(r.Context(), "daily", req, result)
	h.sendSuccess(w, result)
}

// Analytics handles enhanced analytics requests
// 拡張分析リクエストを処理
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := reconcile.AnalyticsRequest{OrganizationID: mux.Vars(r)["orgId"]}
	if v := q.Get("window_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "window_daysは整数で指定してください")
			return
		}
		req.WindowDays = days
	}
	includeVoided, err := parseBool(q.Get("include_voided"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "include_voidedが無効です")
		return
	}
	req.IncludeVoided = includeVoided

	var cached reconcile.EnhancedResult
	if h.cacheGet(r.Context(), "analytics", req, &cached) {
		h.sendSuccess(w, cached)
		return
	}

	result, err := h.analyzer.EnhancedAnalytics(r.Context(), req)
	if err != nil {
		h.sendAnalysisError(w, err)
		return
	}

	h.cacheSet(r.Context(), "analytics", req, result)
	h.sendSuccess(w, result)
}

// CreateExport handles export requests; ?format=csv streams the CSV file
// エクスポートリクエストを処理（format=csvの場合はCSVを返す）
func (h *Handlers) CreateExport(w http.ResponseWriter, r *http.Request) {
	var body ExportRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	from, err := h.parseDate(body.From)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "fromはYYYY-MM-DD形式で指定してください")
		return
	}
	to, err := h.parseDate(body.To)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "toはYYYY-MM-DD形式で指定してください")
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	export, err := h.analyzer.Export(r.Context(), reconcile.ExportRequest{
		OrganizationID: mux.Vars(r)["orgId"],
		Range:          reconcile.DateRange{From: from, To: to},
		Options:        body.ExportOptions,
	})
	if err != nil {
		h.sendAnalysisError(w, err)
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		h.sendSuccess(w, export)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w); err != nil {
		h.logger.Error("CSV送信に失敗しました", zap.String("filename", export.Filename), zap.Error(err))
	}
}

// InvalidateCache drops every cached analysis result of an organization
// 組織のキャッシュ済み分析結果を削除
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	if err := h.cache.InvalidateOrganization(r.Context(), orgID); err != nil {
		h.logger.Error("キャッシュ削除に失敗しました", zap.String("organization_id", orgID), zap.Error(err))
		h.sendError(w, http.StatusBadGateway, "キャッシュ削除に失敗しました")
		return
	}

	h.logger.Info("キャッシュを削除しました", zap.String("organization_id", orgID))
	h.sendSuccess(w, map[string]string{"organization_id": orgID})
}

// ヘルパーメソッド

func (h *Handlers) cacheGet(ctx context.Context, kind string, req, dest interface{}) bool {
	hit, err := h.cache.Get(ctx, kind, req, dest)
	if err != nil {
		h.logger.Warn("キャッシュ取得に失敗しました", zap.String("kind", kind), zap.Error(err))
		return false
	}
	return hit
}

func (h *Handlers) cacheSet(ctx context.Context, kind string, req, value interface{}) {
	if err := h.cache.Set(ctx, kind, req, value); err != nil {
		h.logger.Warn("キャッシュ保存に失敗しました", zap.String("kind", kind), zap.Error(err))
	}
}

func (h *Handlers) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(reconcile.FileDateLayout, v, h.location)
}

// sendAnalysisError maps engine errors onto HTTP status codes
// エラー種別に応じたステータスコードで応答
func (h *Handlers) sendAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case reconcile.IsValidationError(err), errors.Is(err, reconcile.ErrInvalidDate), errors.Is(err, reconcile.ErrUnknownReportType):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reconcile.ErrStoreUnavailable):
		h.sendError(w, http.StatusServiceUnavailable, err.Error())
	case reconcile.IsStorageError(err):
		h.logger.Error("外部ストアの呼び出しに失敗しました", zap.Error(err))
		h.sendError(w, http.StatusBadGateway, "外部ストアの呼び出しに失敗しました")
	default:
		h.logger.Error("分析処理に失敗しました", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "内部エラーが発生しました")
	}
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

func (h *Handlers) sendJSON(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// splitList splits a comma separated query value, dropping empty entries
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
