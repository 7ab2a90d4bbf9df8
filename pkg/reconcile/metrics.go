package reconcile

// StockIssues counts counted items by out-of-range stock status
// 在庫状態の異常件数
type StockIssues struct {
	UnderStock int `json:"under_stock"` // 低在庫
	OverStock  int `json:"over_stock"`  // 過剰在庫
	OutOfStock int `json:"out_of_stock"` // 在庫切れ
}

// Total returns the number of items with any stock issue
func (s StockIssues) Total() int {
	return s.UnderStock + s.OverStock + s.OutOfStock
}

// Metrics is the scalar summary of a set of sessions and their enriched items.
// With no qualifying sessions every count is zero and AccuracyRate is 100; that is policy, not an error.
// セッション群と明細の集計値（対象0件の場合、精度は100%とする）
type Metrics struct {
	SessionCount          int         `json:"session_count"`
	TotalItems            int         `json:"total_items"`
	CountedItems          int         `json:"counted_items"`
	TotalVariances        int         `json:"total_variances"`
	TotalValue            float64     `json:"total_value"`
	TotalVarianceCost     float64     `json:"total_variance_cost"`
	AccuracyRate          float64     `json:"accuracy_rate"`
	AverageCompletionTime float64     `json:"average_completion_time"` // 時間
	StockIssues           StockIssues `json:"stock_issues"`
}

// AggregateMetrics reduces sessions and their enriched items to Metrics.
// Variances and stock issues are only counted for items with an actual quantity.
// 明細を集計（差異・在庫異常はカウント済み明細のみ対象）
func AggregateMetrics(sessions []InventoryCount, items []EnhancedInventoryItem) Metrics {
	m := Metrics{
		SessionCount: len(sessions),
		TotalItems:   len(items),
	}

	for _, it := range items {
		m.TotalValue += it.TotalActualValue
		m.TotalVarianceCost += abs(it.VarianceCost)

		if !it.IsCounted() {
			continue
		}
		m.CountedItems++
		if it.HasVariance() {
			m.TotalVariances++
		}
		switch it.StockStatus {
		case StockStatusLow:
			m.StockIssues.UnderStock++
		case StockStatusOver:
			m.StockIssues.OverStock++
		case StockStatusOut:
			m.StockIssues.OutOfStock++
		}
	}

	m.AccuracyRate = AccuracyRate(m.CountedItems, m.TotalVariances)
	m.AverageCompletionTime = averageCompletionHours(sessions)
	return m
}

// averageCompletionHours averages updated_at - created_at over completed sessions
// 完了セッションの平均所要時間
func averageCompletionHours(sessions []InventoryCount) float64 {
	total := 0.0
	n := 0
	for _, s := range sessions {
		if !s.IsCompleted() {
			continue
		}
		total += s.CompletionHours()
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// groupByCount indexes enriched items by their session ID
func groupByCount(items []EnhancedInventoryItem) map[string][]EnhancedInventoryItem {
	grouped := make(map[string][]EnhancedInventoryItem)
	for _, it := range items {
		grouped[it.CountID] = append(grouped[it.CountID], it)
	}
	return grouped
}

// sessionAccuracy computes accuracy from the session's lines, falling back to its header counters
// セッション精度（明細がない場合はヘッダーの件数を使用）
func sessionAccuracy(s InventoryCount, items []EnhancedInventoryItem) float64 {
	if len(items) == 0 {
		return AccuracyRate(s.TotalItemsCount, s.VarianceCount)
	}
	counted, variances := 0, 0
	for _, it := range items {
		if !it.IsCounted() {
			continue
		}
		counted++
		if it.HasVariance() {
			variances++
		}
	}
	return AccuracyRate(counted, variances)
}
