package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service implements the Analyzer interface on top of an external Store
// 外部ストアを利用したAnalyzerインターフェースの実装
type Service struct {
	store    Store       // 外部ストア
	recorder Recorder    // 計測
	logger   *zap.Logger // ログ
	config   *Config     // 設定
	clock    Clock       // 現在時刻
}

// Analyzerインターフェースを実装することを明示
var _ Analyzer = (*Service)(nil)

// Config holds configuration for the analysis service
// 分析サービスの設定を保持
type Config struct {
	FallbackUnitCost        float64 `yaml:"fallback_unit_cost"`          // 単価未設定時の単価
	TeamWindowDays          int     `yaml:"team_window_days"`            // チーム集計期間（日）
	IncludeVoidedInTeamStat bool    `yaml:"include_voided_in_team_stat"` // チーム集計に無効化済みを含める
	BreakdownLimit          int     `yaml:"breakdown_limit"`             // 差異内訳の表示セッション数
	FetchConcurrency        int     `yaml:"fetch_concurrency"`           // 明細取得の並列数
	ExportWindowDays        int     `yaml:"export_window_days"`          // 期間未指定時のエクスポート対象日数
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() *Config {
	return &Config{
		FallbackUnitCost: DefaultFallbackUnitCost,
		TeamWindowDays:   DefaultTeamWindowDays,
		BreakdownLimit:   DefaultBreakdownLimit,
		FetchConcurrency: 8,
		ExportWindowDays: 30,
	}
}

// NewService creates a new analysis service
// 新しい分析サービスを作成
func NewService(store Store, recorder Recorder, logger *zap.Logger, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:    store,
		recorder: recorder,
		logger:   logger,
		config:   config,
		clock:    time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// FetchSnapshot loads the source records of an organization for a date range.
// Line items are fetched per session concurrently; the first failure cancels the rest.
// ソースデータを取得（セッション明細は並列取得、最初の失敗で中断）
func (s *Service) FetchSnapshot(ctx context.Context, organizationID string, dateRange DateRange, teamID *string, withTransactions bool) (*Snapshot, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}

	counts, err := s.store.ListCounts(ctx, organizationID, dateRange, teamID)
	if err != nil {
		return nil, NewStorageError("list_counts", "棚卸セッション取得に失敗しました", err)
	}

	snap := &Snapshot{Counts: counts}
	lines := make([][]InventoryCountItem, len(counts))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.config.FetchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	g.Go(func() error {
		items, err := s.store.ListItems(gctx, organizationID)
		if err != nil {
			return NewStorageError("list_items", "商品マスタ取得に失敗しました", err)
		}
		snap.Items = items
		return nil
	})
	g.Go(func() error {
		teams, err := s.store.ListTeams(gctx, organizationID)
		if err != nil {
			return NewStorageError("list_teams", "チーム一覧取得に失敗しました", err)
		}
		snap.Teams = teams
		return nil
	})
	if withTransactions {
		g.Go(func() error {
			txs, err := s.store.ListTransactions(gctx, organizationID, dateRange)
			if err != nil {
				return NewStorageError("list_transactions", "在庫移動履歴取得に失敗しました", err)
			}
			snap.Transactions = txs
			return nil
		})
	}
	for i, c := range counts {
		i, countID := i, c.ID
		g.Go(func() error {
			items, err := s.store.ListCountItems(gctx, countID)
			if err != nil {
				return NewStorageError("list_count_items", "棚卸明細取得に失敗しました: "+countID, err)
			}
			lines[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("ソースデータの取得に失敗しました",
			zap.String("organization_id", organizationID),
			zap.Error(err),
		)
		return nil, err
	}

	for _, l := range lines {
		snap.CountItems = append(snap.CountItems, l...)
	}
	return snap, nil
}

// DailyMetrics computes the metrics of a single day
// 日次分析を実行
func (s *Service) DailyMetrics(ctx context.Context, req DailyRequest) (result *DailyResult, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveAnalysis("daily_metrics", time.Since(start), err) }()

	if err := ValidateDailyRequest(req); err != nil {
		return nil, err
	}

	snap, err := s.FetchSnapshot(ctx, req.OrganizationID, dayRange(req.Date), req.TeamID, false)
	if err != nil {
		return nil, err
	}

	res := ComputeDailyMetrics(DailyInput{
		Snapshot:         *snap,
		Filter:           req.Filter(),
		CountedOnly:      req.CountedOnly,
		FallbackUnitCost: s.config.FallbackUnitCost,
		BreakdownLimit:   s.config.BreakdownLimit,
	})

	s.recordEnrichment(res.Enrichment)
	s.logger.Info("日次分析を実行しました",
		zap.String("organization_id", req.OrganizationID),
		zap.String("date", req.Date.Format(FileDateLayout)),
		zap.Int("sessions", res.Metrics.SessionCount),
		zap.Int("items", res.Metrics.TotalItems),
		zap.Float64("accuracy_rate", res.Metrics.AccuracyRate),
		zap.Duration("duration", time.Since(start)),
	)

	return &res, nil
}

// EnhancedAnalytics computes the rolling-window analytics of an organization
// 拡張分析を実行
func (s *Service) EnhancedAnalytics(ctx context.Context, req AnalyticsRequest) (result *EnhancedResult, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveAnalysis("enhanced_analytics", time.Since(start), err) }()

	if err := ValidateAnalyticsRequest(req); err != nil {
		return nil, err
	}

	now := s.clock()
	days := req.WindowDays
	if days <= 0 {
		days = s.config.TeamWindowDays
	}
	if days <= 0 {
		days = DefaultAnalyticsWindowDays
	}
	fetch := EnhancedFetchRange(now)
	if cutoff := now.AddDate(0, 0, -days); cutoff.Before(fetch.From) {
		fetch.From = cutoff
	}

	snap, err := s.FetchSnapshot(ctx, req.OrganizationID, fetch, nil, true)
	if err != nil {
		return nil, err
	}

	res := ComputeEnhancedAnalytics(EnhancedInput{
		Snapshot:         *snap,
		Now:              now,
		WindowDays:       days,
		IncludeVoided:    req.IncludeVoided || s.config.IncludeVoidedInTeamStat,
		FallbackUnitCost: s.config.FallbackUnitCost,
	})

	s.recordEnrichment(res.Enrichment)
	s.logger.Info("拡張分析を実行しました",
		zap.String("organization_id", req.OrganizationID),
		zap.Int("window_days", days),
		zap.Int("teams", len(res.Metrics.TeamPerformance)),
		zap.String("trend", string(res.Metrics.TrendDirection)),
		zap.Duration("duration", time.Since(start)),
	)

	return &res, nil
}

// Export generates a report over the requested date range
// エクスポートを生成
func (s *Service) Export(ctx context.Context, req ExportRequest) (result *Export, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveAnalysis("export", time.Since(start), err) }()

	if err := ValidateExportRequest(req); err != nil {
		return nil, err
	}

	now := s.clock()
	r := req.Range
	if r.To.IsZero() {
		r.To = now
	}
	if r.From.IsZero() {
		days := s.config.ExportWindowDays
		if days <= 0 {
			days = DefaultTeamWindowDays
		}
		r.From = r.To.AddDate(0, 0, -days)
	}

	var teamFilter *string
	if req.Options.TeamID != "" && req.Options.TeamID != UnassignedTeamID {
		id := req.Options.TeamID
		teamFilter = &id
	}

	snap, err := s.FetchSnapshot(ctx, req.OrganizationID, r, teamFilter, false)
	if err != nil {
		return nil, err
	}

	export, err := GenerateExport(ExportInput{
		Counts:           snap.Counts,
		CountItems:       snap.CountItems,
		Items:            snap.Items,
		Teams:            snap.Teams,
		FallbackUnitCost: s.config.FallbackUnitCost,
	}, req.Options, now)
	if err != nil {
		return nil, err
	}
	export.Metadata.ExportID = NewExportID()

	s.logger.Info("エクスポートを生成しました",
		zap.String("organization_id", req.OrganizationID),
		zap.String("export_id", export.Metadata.ExportID),
		zap.String("type", string(req.Options.Type)),
		zap.String("filename", export.Filename),
		zap.Int("rows", len(export.Rows)),
	)

	return export, nil
}

// Ping checks the connection to the store
// ストア接続を確認
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return ErrStoreUnavailable
	}
	return s.store.Ping(ctx)
}

func (s *Service) recordEnrichment(stats EnrichmentStats) {
	s.recorder.AddEnrichedItems(stats.Lines)
	if stats.MissingLines == 0 {
		return
	}
	s.recorder.AddMissingReferences(stats.MissingLines)
	s.logger.Warn("商品マスタに存在しない商品が参照されています",
		zap.Int("lines", stats.MissingLines),
		zap.Strings("item_ids", stats.MissingItems),
	)
}

// dayRange covers the calendar day of t in t's location
func dayRange(t time.Time) DateRange {
	y, m, d := t.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return DateRange{From: from, To: from.AddDate(0, 0, 1).Add(-time.Nanosecond)}
}
