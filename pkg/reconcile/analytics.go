package reconcile

import (
	"sort"
	"time"
)

// Chart label layouts
const (
	TrendDayLayout = "Jan 02"
	MonthLayout    = "Jan 2006"
)

const (
	// DefaultAnalyticsWindowDays is the look-back window of enhanced analytics
	DefaultAnalyticsWindowDays = 30

	// MonthlyTrendThreshold is the session-volume change (percent) that counts as a trend
	// 月次トレンドと判定する増減率（%）
	MonthlyTrendThreshold = 5.0

	// RecentComparisonLimit is the number of session comparisons returned
	RecentComparisonLimit = 5

	// FinancialTrendDays is the number of daily points in the financial trend series
	FinancialTrendDays = 14

	// TeamComparisonLimit is the number of teams shown in the comparison chart
	TeamComparisonLimit = 6

	// MonthlyPerformanceMonths is the number of months in the monthly series
	MonthlyPerformanceMonths = 6
)

// Snapshot is the set of source records one analysis pass works on.
// It is treated as read-only for the duration of the pass.
// 1回の分析で使用するソースデータのスナップショット
type Snapshot struct {
	Counts       []InventoryCount     `json:"counts"`
	CountItems   []InventoryCountItem `json:"count_items"`
	Items        []InventoryItem      `json:"items"`
	Teams        []Team               `json:"teams"`
	Transactions []Transaction        `json:"transactions"`
}

// DailyRequest asks for the metrics of one day
// 日次分析リクエスト
type DailyRequest struct {
	OrganizationID string    `json:"organization_id" validate:"required,max=255"`
	Date           time.Time `json:"date"`
	TeamID         *string   `json:"team_id,omitempty"`
	Selection      []string  `json:"sessions,omitempty" validate:"max=500"`
	IncludeVoided  bool      `json:"include_voided"`
	CountedOnly    bool      `json:"counted_only"`
}

// Filter returns the session filter the request describes
func (r DailyRequest) Filter() SessionFilter {
	return SessionFilter{
		Date:          r.Date,
		TeamID:        r.TeamID,
		IncludeVoided: r.IncludeVoided,
		Selection:     r.Selection,
	}
}

// DailyInput is the pure input of ComputeDailyMetrics
type DailyInput struct {
	Snapshot
	Filter           SessionFilter
	CountedOnly      bool
	FallbackUnitCost float64
	BreakdownLimit   int
}

// ItemsSummary counts the day's items regardless of the counted-only listing filter
type ItemsSummary struct {
	Total             int `json:"total"`
	Counted           int `json:"counted"`
	WithVariance      int `json:"with_variance"`
	RequiresAttention int `json:"requires_attention"`
}

// ItemsData is the item listing of a daily result
type ItemsData struct {
	Items   []EnhancedInventoryItem `json:"items"`
	Summary ItemsSummary            `json:"summary"`
}

// DailyResult is the outcome of ComputeDailyMetrics
// 日次分析の結果
type DailyResult struct {
	Metrics           Metrics         `json:"metrics"`
	ChartData         DailyChartData  `json:"chart_data"`
	ItemsData         ItemsData       `json:"items_data"`
	MissingReferences []string        `json:"missing_references,omitempty"`
	Enrichment        EnrichmentStats `json:"-"`
}

// ComputeDailyMetrics filters the sessions of a day and derives metrics, charts and the item listing.
// Every view is built from the same filtered session set.
// 指定日のセッションを選択し、指標・チャート・明細一覧を算出
func ComputeDailyMetrics(in DailyInput) DailyResult {
	sessions := in.Filter.Apply(in.Counts)
	items := NewEnricher(in.FallbackUnitCost).EnrichAll(sessions, in.CountItems, NewItemIndex(in.Items))

	listing := make([]EnhancedInventoryItem, 0, len(items))
	var summary ItemsSummary
	for _, it := range items {
		summary.Total++
		if it.IsCounted() {
			summary.Counted++
		}
		if it.HasVariance() {
			summary.WithVariance++
		}
		if it.RequiresAttention {
			summary.RequiresAttention++
		}
		if in.CountedOnly && !it.IsCounted() {
			continue
		}
		listing = append(listing, it)
	}

	return DailyResult{
		Metrics:           AggregateMetrics(sessions, items),
		ChartData:         ProjectDailyCharts(sessions, items, in.Teams, in.BreakdownLimit),
		ItemsData:         ItemsData{Items: listing, Summary: summary},
		MissingReferences: MissingReferences(items),
		Enrichment:        NewEnrichmentStats(items),
	}
}

// AnalyticsRequest asks for the enhanced analytics of an organization
// 拡張分析リクエスト
type AnalyticsRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,max=255"`
	WindowDays     int    `json:"window_days,omitempty" validate:"gte=0,lte=366"`
	IncludeVoided  bool   `json:"include_voided"`
}

// EnhancedInput is the pure input of ComputeEnhancedAnalytics
type EnhancedInput struct {
	Snapshot
	Now              time.Time
	WindowDays       int
	IncludeVoided    bool
	FallbackUnitCost float64
}

// FinancialMetrics summarizes the monetary side of the window
// 期間内の財務指標
type FinancialMetrics struct {
	TotalInventoryValue   float64 `json:"total_inventory_value"`
	TotalVarianceCost     float64 `json:"total_variance_cost"`
	CostSavings           float64 `json:"cost_savings"` // 不足側差異の金額合計
	AverageItemValue      float64 `json:"average_item_value"`
	MostExpensiveVariance float64 `json:"most_expensive_variance"`
	TotalCostImpact       float64 `json:"total_cost_impact"`
	TransactionValue      float64 `json:"transaction_value"`
}

// ItemComparison compares one item between a session and the session before it
type ItemComparison struct {
	ItemID           string  `json:"item_id"`
	ItemName         string  `json:"item_name"`
	CurrentQuantity  float64 `json:"current_quantity"`
	PreviousQuantity float64 `json:"previous_quantity"`
	QuantityChange   float64 `json:"quantity_change"`
	CurrentValue     float64 `json:"current_value"`
	PreviousValue    float64 `json:"previous_value"`
	ValueChange      float64 `json:"value_change"`
	UnitCost         float64 `json:"unit_cost"`
	HasPrevious      bool    `json:"has_previous"`
}

// CountComparison pairs a completed session with the next older one
// セッションと直前セッションの比較
type CountComparison struct {
	CurrentCount        InventoryCount   `json:"current_count"`
	PreviousCount       *InventoryCount  `json:"previous_count"`
	ItemComparisons     []ItemComparison `json:"item_comparisons"`
	TotalValueChange    float64          `json:"total_value_change"`
	AccuracyImprovement float64          `json:"accuracy_improvement"`
}

// EnhancedMetrics is the scalar part of the enhanced analytics
type EnhancedMetrics struct {
	AccuracyRate          float64                  `json:"accuracy_rate"`
	AverageCompletionTime float64                  `json:"average_completion_time"`
	TotalVariances        int                      `json:"total_variances"`
	TrendDirection        Trend                    `json:"trend_direction"`
	MonthlyComparison     float64                  `json:"monthly_comparison"`
	Financial             FinancialMetrics         `json:"financial"`
	TeamPerformance       []TeamPerformanceMetrics `json:"team_performance"`
	RecentComparisons     []CountComparison        `json:"recent_comparisons"`
}

// FinancialTrendPoint is one day of the financial trend series
type FinancialTrendPoint struct {
	Date             string  `json:"date"`
	InventoryValue   float64 `json:"inventory_value"`
	VarianceCost     float64 `json:"variance_cost"`
	CostSavings      float64 `json:"cost_savings"`
	InsufficientData bool    `json:"insufficient_data"`
}

// TeamComparisonPoint is one team of the comparison chart
type TeamComparisonPoint struct {
	Team           string  `json:"team"`
	Accuracy       float64 `json:"accuracy"`
	VarianceCost   float64 `json:"variance_cost"`
	InventoryValue float64 `json:"inventory_value"`
	CompletionTime float64 `json:"completion_time"`
	Counts         int     `json:"counts"`
}

// CategoryCost is one category of the cost analysis chart
type CategoryCost struct {
	Category     string  `json:"category"`
	TotalValue   float64 `json:"total_value"`
	VarianceCost float64 `json:"variance_cost"`
	Accuracy     float64 `json:"accuracy"`
}

// MonthlyPoint is one month of the monthly performance series
type MonthlyPoint struct {
	Month            string  `json:"month"`
	Sessions         int     `json:"sessions"`
	TotalValue       float64 `json:"total_value"`
	Accuracy         float64 `json:"accuracy"`
	TeamCount        int     `json:"team_count"`
	VarianceCost     float64 `json:"variance_cost"`
	InsufficientData bool    `json:"insufficient_data"`
}

// EnhancedChartData groups the chart series of the enhanced analytics
type EnhancedChartData struct {
	FinancialTrends    []FinancialTrendPoint `json:"financial_trends"`
	TeamComparison     []TeamComparisonPoint `json:"team_comparison"`
	CostAnalysis       []CategoryCost        `json:"cost_analysis"`
	MonthlyPerformance []MonthlyPoint        `json:"monthly_performance"`
}

// EnhancedResult is the outcome of ComputeEnhancedAnalytics
// 拡張分析の結果
type EnhancedResult struct {
	Metrics    EnhancedMetrics   `json:"metrics"`
	ChartData  EnhancedChartData `json:"chart_data"`
	Enrichment EnrichmentStats   `json:"-"`
}

// ExportRequest asks for an export over a date range
// エクスポートリクエスト
type ExportRequest struct {
	OrganizationID string        `json:"organization_id" validate:"required,max=255"`
	Range          DateRange     `json:"range"`
	Options        ExportOptions `json:"options"`
}

// EnhancedFetchRange returns the range of sessions enhanced analytics needs
func EnhancedFetchRange(now time.Time) DateRange {
	return DateRange{
		From: startOfMonth(now).AddDate(0, -(MonthlyPerformanceMonths - 1), 0),
		To:   now,
	}
}

// ComputeEnhancedAnalytics derives window metrics, financial figures, team performance,
// session comparisons and chart series. Periods without sessions are flagged InsufficientData.
// 期間内の拡張分析を算出（セッションのない期間はデータ不足として扱う）
func ComputeEnhancedAnalytics(in EnhancedInput) EnhancedResult {
	days := in.WindowDays
	if days <= 0 {
		days = DefaultAnalyticsWindowDays
	}
	cutoff := in.Now.AddDate(0, 0, -days)

	var eligible []InventoryCount
	for _, c := range in.Counts {
		if c.IsVoided && !in.IncludeVoided {
			continue
		}
		eligible = append(eligible, c)
	}

	var completedAll, completed []InventoryCount
	for _, c := range eligible {
		if !c.IsCompleted() {
			continue
		}
		completedAll = append(completedAll, c)
		if !c.CountDate.Before(cutoff) {
			completed = append(completed, c)
		}
	}

	enricher := NewEnricher(in.FallbackUnitCost)
	idx := NewItemIndex(in.Items)
	allItems := enricher.EnrichAll(completedAll, in.CountItems, idx)
	items := itemsOf(completed, allItems)

	basic := AggregateMetrics(completed, items)
	monthly := monthlyComparison(eligible, in.Now)
	teams := AggregateTeamPerformance(completed, items, in.Teams, TeamWindow{
		Now:           in.Now,
		Days:          days,
		IncludeVoided: in.IncludeVoided,
	})

	return EnhancedResult{
		Metrics: EnhancedMetrics{
			AccuracyRate:          basic.AccuracyRate,
			AverageCompletionTime: basic.AverageCompletionTime,
			TotalVariances:        basic.TotalVariances,
			TrendDirection:        monthlyTrend(monthly),
			MonthlyComparison:     monthly,
			Financial:             financialMetrics(items, in.Transactions, DateRange{From: cutoff, To: in.Now}),
			TeamPerformance:       teams,
			RecentComparisons:     recentComparisons(completed, items),
		},
		ChartData: EnhancedChartData{
			FinancialTrends:    financialTrends(completed, items, in.Now),
			TeamComparison:     teamComparison(teams),
			CostAnalysis:       costAnalysis(items),
			MonthlyPerformance: monthlyPerformance(completedAll, allItems, in.Now),
		},
		Enrichment: NewEnrichmentStats(allItems),
	}
}

func financialMetrics(items []EnhancedInventoryItem, txs []Transaction, window DateRange) FinancialMetrics {
	var f FinancialMetrics
	for _, it := range items {
		cost := abs(it.VarianceCost)
		f.TotalInventoryValue += it.TotalActualValue
		f.TotalVarianceCost += cost
		if it.VarianceQuantity < 0 {
			f.CostSavings += cost
		}
		if cost > f.MostExpensiveVariance {
			f.MostExpensiveVariance = cost
		}
	}
	if len(items) > 0 {
		f.AverageItemValue = f.TotalInventoryValue / float64(len(items))
	}
	f.TotalCostImpact = f.TotalVarianceCost - f.CostSavings

	for _, tx := range txs {
		if window.Contains(tx.TransactionDate) {
			f.TransactionValue += tx.Quantity * tx.UnitCost
		}
	}
	return f
}

// monthlyComparison returns the percentage change of session volume between this month and last month
func monthlyComparison(counts []InventoryCount, now time.Time) float64 {
	thisStart := startOfMonth(now)
	lastStart := thisStart.AddDate(0, -1, 0)
	nextStart := thisStart.AddDate(0, 1, 0)

	thisMonth, lastMonth := 0, 0
	for _, c := range counts {
		switch {
		case !c.CountDate.Before(thisStart) && c.CountDate.Before(nextStart):
			thisMonth++
		case !c.CountDate.Before(lastStart) && c.CountDate.Before(thisStart):
			lastMonth++
		}
	}
	if lastMonth == 0 {
		return 0
	}
	return float64(thisMonth-lastMonth) / float64(lastMonth) * 100
}

func monthlyTrend(change float64) Trend {
	switch {
	case change > MonthlyTrendThreshold:
		return TrendUp
	case change < -MonthlyTrendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}

// recentComparisons pairs the most recent completed sessions with their predecessors.
// Items are joined by item ID; a missing predecessor line compares against zero.
// 直近の完了セッションを直前のセッションと比較
func recentComparisons(sessions []InventoryCount, items []EnhancedInventoryItem) []CountComparison {
	sorted := SortNewestFirst(sessions)
	byCount := groupByCount(items)

	n := len(sorted)
	if n > RecentComparisonLimit {
		n = RecentComparisonLimit
	}

	out := make([]CountComparison, 0, n)
	for i := 0; i < n; i++ {
		current := sorted[i]
		cmp := CountComparison{
			CurrentCount:    current,
			ItemComparisons: []ItemComparison{},
		}

		previousLines := make(map[string]EnhancedInventoryItem)
		if i+1 < len(sorted) {
			prev := sorted[i+1]
			cmp.PreviousCount = &prev
			for _, it := range byCount[prev.ID] {
				if it.IsCounted() {
					previousLines[it.ItemID] = it
				}
			}
			cmp.AccuracyImprovement = sessionAccuracy(current, byCount[current.ID]) - sessionAccuracy(prev, byCount[prev.ID])
		}

		for _, it := range byCount[current.ID] {
			if !it.IsCounted() {
				continue
			}
			ic := ItemComparison{
				ItemID:          it.ItemID,
				ItemName:        it.Item.Name,
				CurrentQuantity: *it.ActualQuantity,
				UnitCost:        it.UnitCost,
			}
			if p, ok := previousLines[it.ItemID]; ok {
				ic.PreviousQuantity = *p.ActualQuantity
				ic.HasPrevious = true
			}
			ic.QuantityChange = ic.CurrentQuantity - ic.PreviousQuantity
			ic.CurrentValue = ic.CurrentQuantity * ic.UnitCost
			ic.PreviousValue = ic.PreviousQuantity * ic.UnitCost
			ic.ValueChange = ic.QuantityChange * ic.UnitCost

			cmp.TotalValueChange += ic.ValueChange
			cmp.ItemComparisons = append(cmp.ItemComparisons, ic)
		}
		out = append(out, cmp)
	}
	return out
}

func financialTrends(sessions []InventoryCount, items []EnhancedInventoryItem, now time.Time) []FinancialTrendPoint {
	byCount := groupByCount(items)
	points := make([]FinancialTrendPoint, 0, FinancialTrendDays)
	for i := FinancialTrendDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		p := FinancialTrendPoint{Date: day.Format(TrendDayLayout), InsufficientData: true}
		for _, s := range sessions {
			if !SameDay(day, s.CountDate) {
				continue
			}
			p.InsufficientData = false
			for _, it := range byCount[s.ID] {
				p.InventoryValue += it.TotalActualValue
				p.VarianceCost += abs(it.VarianceCost)
				if it.VarianceQuantity < 0 {
					p.CostSavings += abs(it.VarianceCost)
				}
			}
		}
		points = append(points, p)
	}
	return points
}

// teamComparison ranks teams by accuracy and keeps the top entries
func teamComparison(teams []TeamPerformanceMetrics) []TeamComparisonPoint {
	ranked := make([]TeamPerformanceMetrics, len(teams))
	copy(ranked, teams)
	sortTeamsByAccuracy(ranked)
	if len(ranked) > TeamComparisonLimit {
		ranked = ranked[:TeamComparisonLimit]
	}

	out := make([]TeamComparisonPoint, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, TeamComparisonPoint{
			Team:           t.TeamName,
			Accuracy:       t.Accuracy,
			VarianceCost:   t.VarianceCost,
			InventoryValue: t.InventoryValue,
			CompletionTime: t.CompletionTime,
			Counts:         t.CountCompletions,
		})
	}
	return out
}

func costAnalysis(items []EnhancedInventoryItem) []CategoryCost {
	type bucket struct {
		cost               CategoryCost
		counted, variances int
	}
	index := make(map[string]int)
	var buckets []bucket
	for _, it := range items {
		name := orDefault(it.Item.CategoryName, "Uncategorized")
		i, ok := index[name]
		if !ok {
			i = len(buckets)
			index[name] = i
			buckets = append(buckets, bucket{cost: CategoryCost{Category: name}})
		}
		b := &buckets[i]
		b.cost.TotalValue += it.TotalActualValue
		b.cost.VarianceCost += abs(it.VarianceCost)
		if it.IsCounted() {
			b.counted++
			if it.HasVariance() {
				b.variances++
			}
		}
	}

	out := make([]CategoryCost, 0, len(buckets))
	for _, b := range buckets {
		b.cost.Accuracy = AccuracyRate(b.counted, b.variances)
		out = append(out, b.cost)
	}
	sortCategoryCosts(out)
	return out
}

// monthlyPerformance covers the current month and the months before it, oldest first
func monthlyPerformance(sessions []InventoryCount, items []EnhancedInventoryItem, now time.Time) []MonthlyPoint {
	byCount := groupByCount(items)
	current := startOfMonth(now)

	points := make([]MonthlyPoint, 0, MonthlyPerformanceMonths)
	for i := MonthlyPerformanceMonths - 1; i >= 0; i-- {
		start := current.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0)

		var monthSessions []InventoryCount
		var monthItems []EnhancedInventoryItem
		teams := make(map[string]bool)
		for _, s := range sessions {
			if s.CountDate.Before(start) || !s.CountDate.Before(end) {
				continue
			}
			monthSessions = append(monthSessions, s)
			monthItems = append(monthItems, byCount[s.ID]...)
			teams[TeamKey(s.TeamID)] = true
		}

		p := MonthlyPoint{
			Month:            start.Format(MonthLayout),
			Sessions:         len(monthSessions),
			TeamCount:        len(teams),
			InsufficientData: len(monthSessions) == 0,
		}
		if !p.InsufficientData {
			m := AggregateMetrics(monthSessions, monthItems)
			p.TotalValue = m.TotalValue
			p.VarianceCost = m.TotalVarianceCost
			p.Accuracy = m.AccuracyRate
		}
		points = append(points, p)
	}
	return points
}

func itemsOf(sessions []InventoryCount, items []EnhancedInventoryItem) []EnhancedInventoryItem {
	ids := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		ids[s.ID] = true
	}
	out := make([]EnhancedInventoryItem, 0, len(items))
	for _, it := range items {
		if ids[it.CountID] {
			out = append(out, it)
		}
	}
	return out
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func sortTeamsByAccuracy(teams []TeamPerformanceMetrics) {
	sort.SliceStable(teams, func(i, j int) bool {
		return teams[i].Accuracy > teams[j].Accuracy
	})
}

func sortCategoryCosts(costs []CategoryCost) {
	sort.SliceStable(costs, func(i, j int) bool {
		if costs[i].TotalValue != costs[j].TotalValue {
			return costs[i].TotalValue > costs[j].TotalValue
		}
		return costs[i].Category < costs[j].Category
	})
}

// Organization returns the organization the request is scoped to
func (r DailyRequest) Organization() string { return r.OrganizationID }

// Organization returns the organization the request is scoped to
func (r AnalyticsRequest) Organization() string { return r.OrganizationID }

// Organization returns the organization the request is scoped to
func (r ExportRequest) Organization() string { return r.OrganizationID }
