package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailyFixture() Snapshot {
	date := day(2024, 3, 15)
	voided := completedCount("d3", sp("team-a"), date, 1)
	voided.IsVoided = true

	return Snapshot{
		Counts: []InventoryCount{
			completedCount("d1", sp("team-a"), date, 1),
			completedCount("d2", sp("team-b"), date, 2),
			voided,
			completedCount("d4", sp("team-a"), day(2024, 3, 14), 1),
		},
		CountItems: []InventoryCountItem{
			countLine("l1", "d1", "i1", fp(10), fp(10)),
			countLine("l2", "d1", "i1", fp(10), nil),
			countLine("l3", "d2", "ghost-item-123", fp(1), fp(3)),
			countLine("l4", "d3", "i1", fp(10), fp(1)),
			countLine("l5", "d4", "i1", fp(10), fp(2)),
		},
		Items: []InventoryItem{pricedItem("i1", "Widget", 10)},
		Teams: []Team{{ID: "team-a", Name: "Alpha"}, {ID: "team-b", Name: "Bravo"}},
	}
}

// TestComputeDailyMetrics は日次分析のテスト
func TestComputeDailyMetrics(t *testing.T) {
	res := ComputeDailyMetrics(DailyInput{
		Snapshot:    dailyFixture(),
		Filter:      SessionFilter{Date: day(2024, 3, 15)},
		CountedOnly: true,
	})

	assert.Equal(t, 2, res.Metrics.SessionCount)
	assert.Equal(t, 3, res.Metrics.TotalItems)
	assert.Equal(t, 2, res.Metrics.CountedItems)
	assert.Equal(t, 1, res.Metrics.TotalVariances)
	assert.InDelta(t, 50, res.Metrics.AccuracyRate, 1e-9)

	assert.Len(t, res.ItemsData.Items, 2)
	assert.Equal(t, ItemsSummary{Total: 3, Counted: 2, WithVariance: 1, RequiresAttention: 2}, res.ItemsData.Summary)
	assert.Equal(t, []string{"ghost-item-123"}, res.MissingReferences)

	// 全ビューが同じセッション集合から算出される
	sessions, items := 0, 0
	for _, team := range res.ChartData.TeamPerformance {
		sessions += team.Sessions
		items += team.TotalItems
	}
	assert.Equal(t, res.Metrics.SessionCount, sessions)
	assert.Equal(t, res.Metrics.TotalItems, items)
	assert.Len(t, res.ChartData.VarianceBreakdown, 2)
}

func TestComputeDailyMetrics_Selection(t *testing.T) {
	res := ComputeDailyMetrics(DailyInput{
		Snapshot: dailyFixture(),
		Filter:   SessionFilter{Date: day(2024, 3, 15), Selection: []string{"d2"}},
	})

	assert.Equal(t, 1, res.Metrics.SessionCount)
	assert.Equal(t, 1, res.Metrics.TotalItems)
	require.Len(t, res.ItemsData.Items, 1)
	assert.Equal(t, "Item ghost-it", res.ItemsData.Items[0].Item.Name)
	require.Len(t, res.ChartData.TeamPerformance, 1)
	assert.Equal(t, "Bravo", res.ChartData.TeamPerformance[0].TeamName)
}

func TestComputeDailyMetrics_NoSessions(t *testing.T) {
	res := ComputeDailyMetrics(DailyInput{
		Snapshot: dailyFixture(),
		Filter:   SessionFilter{Date: day(2024, 1, 1)},
	})

	assert.Equal(t, 0, res.Metrics.SessionCount)
	assert.Equal(t, 100.0, res.Metrics.AccuracyRate)
	assert.Empty(t, res.ItemsData.Items)
	assert.Empty(t, res.ChartData.VarianceBreakdown)
	assert.Nil(t, res.MissingReferences)
}

func enhancedFixture() EnhancedInput {
	inProgress := InventoryCount{ID: "s6", TeamID: sp("team-a"), CountDate: day(2024, 3, 20), Status: CountStatusInProgress}
	voided := completedCount("s5", sp("team-a"), day(2024, 3, 19), 1)
	voided.IsVoided = true

	return EnhancedInput{
		Snapshot: Snapshot{
			Counts: []InventoryCount{
				completedCount("s1", sp("team-a"), day(2024, 3, 18), 2),
				completedCount("s2", sp("team-a"), day(2024, 3, 10), 4),
				completedCount("s3", sp("team-b"), day(2024, 2, 25), 3),
				completedCount("s4", sp("team-a"), day(2024, 1, 5), 1),
				voided,
				inProgress,
			},
			CountItems: []InventoryCountItem{
				countLine("s1-1", "s1", "i1", fp(10), fp(9)),
				countLine("s1-2", "s1", "i2", fp(5), fp(5)),
				countLine("s2-1", "s2", "i1", fp(10), fp(10)),
				countLine("s2-2", "s2", "i2", fp(5), fp(4)),
				countLine("s3-1", "s3", "i1", fp(10), fp(12)),
				countLine("s4-1", "s4", "i1", fp(10), fp(10)),
				countLine("s5-1", "s5", "i1", fp(10), fp(0)),
			},
			Items: []InventoryItem{
				{ID: "i1", Name: "Widget", CategoryName: "Tools", UnitCost: fp(10)},
				{ID: "i2", Name: "Washer", CategoryName: "Parts", UnitCost: fp(2)},
			},
			Teams: []Team{{ID: "team-a", Name: "Alpha"}, {ID: "team-b", Name: "Bravo"}},
			Transactions: []Transaction{
				{ID: "t1", ItemID: "i1", Type: TransactionTypeReceipt, Quantity: 3, UnitCost: 5, TransactionDate: day(2024, 3, 1)},
				{ID: "t2", ItemID: "i1", Type: TransactionTypeIssue, Quantity: 4, UnitCost: 5, TransactionDate: day(2024, 1, 1)},
			},
		},
		Now:        day(2024, 3, 20),
		WindowDays: 30,
	}
}

// TestComputeEnhancedAnalytics は拡張分析のテスト
func TestComputeEnhancedAnalytics(t *testing.T) {
	res := ComputeEnhancedAnalytics(enhancedFixture())
	m := res.Metrics

	assert.InDelta(t, 40, m.AccuracyRate, 1e-9)
	assert.Equal(t, 3, m.TotalVariances)
	assert.InDelta(t, 3, m.AverageCompletionTime, 1e-9)
	assert.InDelta(t, 200, m.MonthlyComparison, 1e-9)
	assert.Equal(t, TrendUp, m.TrendDirection)

	t.Run("財務指標", func(t *testing.T) {
		f := m.Financial
		assert.InDelta(t, 328, f.TotalInventoryValue, 1e-9)
		assert.InDelta(t, 32, f.TotalVarianceCost, 1e-9)
		assert.InDelta(t, 12, f.CostSavings, 1e-9)
		assert.InDelta(t, 20, f.MostExpensiveVariance, 1e-9)
		assert.InDelta(t, 20, f.TotalCostImpact, 1e-9)
		assert.InDelta(t, 65.6, f.AverageItemValue, 1e-9)
		assert.InDelta(t, 15, f.TransactionValue, 1e-9)
	})

	t.Run("チーム実績", func(t *testing.T) {
		require.Len(t, m.TeamPerformance, 2)
		assert.Equal(t, "Alpha", m.TeamPerformance[0].TeamName)
		assert.Equal(t, 2, m.TeamPerformance[0].CountCompletions)
		assert.InDelta(t, 50, m.TeamPerformance[0].Accuracy, 1e-9)
		assert.Equal(t, TrendStable, m.TeamPerformance[0].ImprovementTrend)
		assert.Equal(t, "Bravo", m.TeamPerformance[1].TeamName)
		assert.InDelta(t, 0, m.TeamPerformance[1].Accuracy, 1e-9)
	})

	t.Run("直近比較", func(t *testing.T) {
		require.Len(t, m.RecentComparisons, 3)

		first := m.RecentComparisons[0]
		assert.Equal(t, "s1", first.CurrentCount.ID)
		require.NotNil(t, first.PreviousCount)
		assert.Equal(t, "s2", first.PreviousCount.ID)
		assert.InDelta(t, -8, first.TotalValueChange, 1e-9)
		assert.InDelta(t, 0, first.AccuracyImprovement, 1e-9)

		second := m.RecentComparisons[1]
		assert.InDelta(t, -12, second.TotalValueChange, 1e-9)
		assert.InDelta(t, 50, second.AccuracyImprovement, 1e-9)
		require.Len(t, second.ItemComparisons, 2)
		assert.True(t, second.ItemComparisons[0].HasPrevious)
		assert.False(t, second.ItemComparisons[1].HasPrevious)

		last := m.RecentComparisons[2]
		assert.Nil(t, last.PreviousCount)
		assert.Equal(t, 0.0, last.AccuracyImprovement)
		assert.InDelta(t, 120, last.TotalValueChange, 1e-9)
	})

	t.Run("チャート", func(t *testing.T) {
		c := res.ChartData

		require.Len(t, c.FinancialTrends, FinancialTrendDays)
		assert.Equal(t, "Mar 20", c.FinancialTrends[FinancialTrendDays-1].Date)
		assert.True(t, c.FinancialTrends[FinancialTrendDays-1].InsufficientData)
		mar18 := c.FinancialTrends[FinancialTrendDays-3]
		assert.Equal(t, "Mar 18", mar18.Date)
		assert.False(t, mar18.InsufficientData)
		assert.InDelta(t, 100, mar18.InventoryValue, 1e-9)

		require.Len(t, c.TeamComparison, 2)
		assert.Equal(t, "Alpha", c.TeamComparison[0].Team)

		require.Len(t, c.CostAnalysis, 2)
		assert.Equal(t, "Tools", c.CostAnalysis[0].Category)
		assert.InDelta(t, 310, c.CostAnalysis[0].TotalValue, 1e-9)
		assert.InDelta(t, 30, c.CostAnalysis[0].VarianceCost, 1e-9)
		assert.InDelta(t, 100.0/3, c.CostAnalysis[0].Accuracy, 1e-9)
		assert.Equal(t, "Parts", c.CostAnalysis[1].Category)

		require.Len(t, c.MonthlyPerformance, MonthlyPerformanceMonths)
		assert.Equal(t, "Oct 2023", c.MonthlyPerformance[0].Month)
		assert.True(t, c.MonthlyPerformance[0].InsufficientData)
		jan := c.MonthlyPerformance[3]
		assert.Equal(t, "Jan 2024", jan.Month)
		assert.Equal(t, 1, jan.Sessions)
		assert.Equal(t, 100.0, jan.Accuracy)
		mar := c.MonthlyPerformance[5]
		assert.Equal(t, 2, mar.Sessions)
		assert.Equal(t, 1, mar.TeamCount)
	})
}

func TestComputeEnhancedAnalytics_IncludeVoided(t *testing.T) {
	in := enhancedFixture()
	in.IncludeVoided = true

	res := ComputeEnhancedAnalytics(in)
	assert.Equal(t, 4, res.Metrics.TotalVariances)
	assert.Equal(t, 3, res.Metrics.TeamPerformance[0].CountCompletions)
}

func TestComputeEnhancedAnalytics_Empty(t *testing.T) {
	res := ComputeEnhancedAnalytics(EnhancedInput{Now: day(2024, 3, 20)})

	assert.Equal(t, 100.0, res.Metrics.AccuracyRate)
	assert.Equal(t, TrendStable, res.Metrics.TrendDirection)
	assert.Empty(t, res.Metrics.TeamPerformance)
	assert.Empty(t, res.Metrics.RecentComparisons)
	for _, p := range res.ChartData.MonthlyPerformance {
		assert.True(t, p.InsufficientData)
	}
}

func TestEnhancedFetchRange(t *testing.T) {
	r := EnhancedFetchRange(day(2024, 3, 20))
	assert.Equal(t, "2023-10-01", r.From.Format(FileDateLayout))
	assert.Equal(t, day(2024, 3, 20), r.To)
}
