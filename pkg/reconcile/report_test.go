package reconcile

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportNow = day(2024, 3, 16)

func exportFixture() ExportInput {
	c1 := completedCount("c1", sp("team-a"), day(2024, 3, 15), 2)
	c2 := InventoryCount{ID: "c2", CountDate: day(2024, 3, 15), Status: CountStatusInProgress}

	return ExportInput{
		Counts: []InventoryCount{c1, c2},
		CountItems: []InventoryCountItem{
			countLine("l1", "c1", "i1", fp(20), fp(20)), // 差異なし
			countLine("l2", "c1", "i2", fp(50), fp(30)), // 致命的差異 −80
			countLine("l3", "c2", "i1", fp(10), fp(30)), // 致命的差異 +200
			countLine("l4", "c2", "i1", fp(0), fp(0)),   // 在庫切れ
		},
		Items: []InventoryItem{
			{ID: "i1", Name: "Widget", SKU: "W-1", CategoryName: "Tools", UnitCost: fp(10), MinimumThreshold: fp(5), MaximumThreshold: fp(100)},
			{ID: "i2", Name: "Gadget", PurchasePrice: fp(4)},
		},
		Teams: []Team{{ID: "team-a", Name: "Night Shift"}},
	}
}

func rowsByLabel(rows [][]string) map[string]string {
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		if r[0] != "" {
			out[r[0]] = r[1]
		}
	}
	return out
}

// TestGenerateExport_Summary はサマリーレポートのテスト
func TestGenerateExport_Summary(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportSummary}, exportNow)
	require.NoError(t, err)

	assert.Equal(t, "inventory-summary-export-2024-03-16.csv", export.Filename)
	assert.Equal(t, []string{"Metric", "Value"}, export.Headers)

	values := rowsByLabel(export.Rows)
	assert.Equal(t, "4", values["Total Items Counted"])
	assert.Equal(t, "$500.00", values["Total Pre-Count Value"])
	assert.Equal(t, "$620.00", values["Total Actual Value"])
	assert.Equal(t, "$280.00", values["Total Variance Cost"])
	assert.Equal(t, "$200.00", values["Positive Variance Cost"])
	assert.Equal(t, "$80.00", values["Negative Variance Cost"])
	assert.Equal(t, "2", values["Items Above Variance Threshold (5%)"])
	assert.Equal(t, "2", values["Acceptable Variance (≤5%)"])
	assert.Equal(t, "2", values["Critical Variance (>25%)"])
	assert.Equal(t, "1", values["Out of Stock Items"])
	assert.Equal(t, "3", values["Normal Stock Items"])
	assert.Equal(t, "2", values["Number of Counts"])
	assert.Equal(t, "03/15/2024, 03/15/2024", values["Count Dates"])

	assert.Equal(t, ExportMetadata{
		ExportType:        ReportSummary,
		CountDate:         "2024-03-15",
		TeamName:          "All Teams",
		TotalItems:        4,
		TotalVarianceCost: 280,
		CriticalItems:     3,
		VarianceThreshold: DefaultVarianceThreshold,
		GeneratedAt:       "2024-03-16 12:00:00",
	}, export.Metadata)
}

func TestGenerateExport_SummaryThreshold(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportSummary, VarianceThreshold: fp(50)}, exportNow)
	require.NoError(t, err)

	assert.Equal(t, "1", rowsByLabel(export.Rows)["Items Above Variance Threshold (50%)"])
	assert.Equal(t, 50.0, export.Metadata.VarianceThreshold)
}

func TestGenerateExport_Detailed(t *testing.T) {
	t.Run("基本列のみ", func(t *testing.T) {
		export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportDetailed}, exportNow)
		require.NoError(t, err)

		assert.Len(t, export.Headers, 12)
		require.Len(t, export.Rows, 4)
		for _, row := range export.Rows {
			assert.Len(t, row, len(export.Headers))
		}
	})

	t.Run("財務・在庫分析列", func(t *testing.T) {
		export, err := GenerateExport(exportFixture(), ExportOptions{
			Type:                 ReportDetailed,
			IncludeFinancials:    true,
			IncludeStockAnalysis: true,
		}, exportNow)
		require.NoError(t, err)

		assert.Len(t, export.Headers, 22)
		assert.Equal(t, "Unit Cost", export.Headers[12])
		assert.Equal(t, "Requires Attention", export.Headers[21])

		gadget := export.Rows[1]
		require.Len(t, gadget, 22)
		assert.Equal(t, []string{
			"Gadget", "N/A", "Uncategorized", "N/A", "units",
			"50", "30", "-20", "40.0%", "N/A", "Unknown", "",
			"$4.00", "$200.00", "$120.00", "$-80.00", "$4.00",
			"0", "0", "Normal", "Critical", "Yes",
		}, gadget)
	})
}

func TestGenerateExport_Exceptions(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportExceptions}, exportNow)
	require.NoError(t, err)

	require.Len(t, export.Rows, 3)
	assert.Equal(t, "Critical Variance", export.Rows[0][2])
	assert.Equal(t, "Investigate count accuracy", export.Rows[0][8])
	assert.Equal(t, "Critical Shortage", export.Rows[2][2])
	assert.Equal(t, "Reorder immediately", export.Rows[2][8])
	assert.Equal(t, "Out of Stock", export.Rows[2][7])
}

func TestGenerateExport_TeamPerformance(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportTeamPerformance}, exportNow)
	require.NoError(t, err)

	require.Len(t, export.Rows, 2)
	assert.Equal(t, []string{"team-a", "2", "50.0%", "20.0%", "$80.00", "1", "2.0h", "Needs Improvement"}, export.Rows[0])
	assert.Equal(t, []string{"unassigned", "2", "50.0%", "100.0%", "$200.00", "1", "N/A", "Needs Improvement"}, export.Rows[1])
}

// TestGenerateExport_FinancialImpact は累積影響と構成比の整合性を確認
func TestGenerateExport_FinancialImpact(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportFinancialImpact}, exportNow)
	require.NoError(t, err)

	require.Len(t, export.Rows, 4)
	assert.Equal(t, "$200.00", export.Rows[0][4])
	assert.Equal(t, "High", export.Rows[0][5])
	assert.Equal(t, "Medium", export.Rows[1][5])
	assert.Equal(t, "Low", export.Rows[3][5])

	// 累積影響は単調増加し、最終行は合計と一致
	previous := decimal.Zero
	for _, row := range export.Rows {
		cumulative := decimal.RequireFromString(strings.TrimPrefix(row[6], "$"))
		assert.True(t, cumulative.GreaterThanOrEqual(previous))
		previous = cumulative
	}
	assert.Equal(t, "$280.00", export.Rows[3][6])
	assert.Equal(t, FormatMoney(export.Metadata.TotalVarianceCost), export.Rows[3][6])

	share := decimal.Zero
	for _, row := range export.Rows {
		share = share.Add(decimal.RequireFromString(strings.TrimSuffix(row[7], "%")))
	}
	assert.True(t, share.Equal(decimal.NewFromInt(100)), "構成比の合計: %s", share)
}

func TestGenerateExport_Filters(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportExceptions, TeamID: "team-a"}, exportNow)
	require.NoError(t, err)
	assert.Equal(t, "inventory-exceptions-export-Night-Shift-2024-03-16.csv", export.Filename)
	assert.Equal(t, "Night Shift", export.Metadata.TeamName)
	assert.Equal(t, 2, export.Metadata.TotalItems)

	export, err = GenerateExport(exportFixture(), ExportOptions{Type: ReportDetailed, CountID: "c2"}, exportNow)
	require.NoError(t, err)
	assert.Len(t, export.Rows, 2)

	export, err = GenerateExport(exportFixture(), ExportOptions{Type: ReportDetailed, CountID: "missing"}, exportNow)
	require.NoError(t, err)
	assert.Empty(t, export.Rows)
	assert.Equal(t, "N/A", export.Metadata.CountDate)
}

// TestGenerateExport_VoidedSessions は無効化済みセッションの除外テスト
func TestGenerateExport_VoidedSessions(t *testing.T) {
	voided := completedCount("c3", sp("team-a"), day(2024, 3, 15), 1)
	voided.IsVoided = true

	in := exportFixture()
	in.Counts = append(in.Counts, voided)
	in.CountItems = append(in.CountItems, countLine("l5", "c3", "i1", fp(10), fp(100))) // +900

	baseline, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportFinancialImpact}, exportNow)
	require.NoError(t, err)

	t.Run("既定では除外", func(t *testing.T) {
		export, err := GenerateExport(in, ExportOptions{Type: ReportFinancialImpact}, exportNow)
		require.NoError(t, err)

		assert.Len(t, export.Rows, len(baseline.Rows))
		assert.Equal(t, 4, export.Metadata.TotalItems)
		assert.Equal(t, 280.0, export.Metadata.TotalVarianceCost)
		assert.Equal(t, baseline.Metadata.CriticalItems, export.Metadata.CriticalItems)
		assert.Equal(t, "$280.00", export.Rows[len(export.Rows)-1][6])

		// 日次分析と同じ集計になる
		daily := ComputeDailyMetrics(DailyInput{
			Snapshot: Snapshot{Counts: in.Counts, CountItems: in.CountItems, Items: in.Items, Teams: in.Teams},
			Filter:   SessionFilter{Date: day(2024, 3, 15)},
		})
		assert.Equal(t, daily.Metrics.TotalItems, export.Metadata.TotalItems)
		assert.InDelta(t, daily.Metrics.TotalVarianceCost, export.Metadata.TotalVarianceCost, 0.001)
	})

	t.Run("指定時は含める", func(t *testing.T) {
		export, err := GenerateExport(in, ExportOptions{Type: ReportFinancialImpact, IncludeVoided: true}, exportNow)
		require.NoError(t, err)

		assert.Len(t, export.Rows, len(baseline.Rows)+1)
		assert.Equal(t, 5, export.Metadata.TotalItems)
		assert.Equal(t, 1180.0, export.Metadata.TotalVarianceCost)
		assert.Equal(t, baseline.Metadata.CriticalItems+1, export.Metadata.CriticalItems)
	})

	t.Run("セッション指定でも除外", func(t *testing.T) {
		export, err := GenerateExport(in, ExportOptions{Type: ReportDetailed, CountID: "c3"}, exportNow)
		require.NoError(t, err)
		assert.Empty(t, export.Rows)
	})
}

func TestGenerateExport_UnassignedTeamFilter(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportDetailed, TeamID: UnassignedTeamID}, exportNow)
	require.NoError(t, err)
	assert.Len(t, export.Rows, 2)
	assert.Equal(t, 2, export.Metadata.TotalItems)
}

func TestGenerateExport_InvalidOptions(t *testing.T) {
	_, err := GenerateExport(exportFixture(), ExportOptions{Type: "pivot"}, exportNow)
	assert.True(t, IsValidationError(err))

	_, err = GenerateExport(exportFixture(), ExportOptions{Type: ReportSummary, VarianceThreshold: fp(-1)}, exportNow)
	assert.True(t, IsValidationError(err))
}

func TestExport_WriteCSV(t *testing.T) {
	export, err := GenerateExport(exportFixture(), ExportOptions{Type: ReportExceptions}, exportNow)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, export.Headers, records[0])
	assert.Equal(t, export.Rows[0], records[1])
}

func TestImpactLevelAndRating(t *testing.T) {
	assert.Equal(t, "Critical", ImpactLevel(-501))
	assert.Equal(t, "High", ImpactLevel(500))
	assert.Equal(t, "Medium", ImpactLevel(100))
	assert.Equal(t, "Low", ImpactLevel(25))

	assert.Equal(t, "Needs Improvement", PerformanceRating(69.9))
	assert.Equal(t, "Good", PerformanceRating(70))
	assert.Equal(t, "Very Good", PerformanceRating(85))
	assert.Equal(t, "Excellent", PerformanceRating(95))
}

func BenchmarkGenerateExport_FinancialImpact(b *testing.B) {
	in := exportFixture()
	opts := ExportOptions{Type: ReportFinancialImpact}
	for i := 0; i < b.N; i++ {
		if _, err := GenerateExport(in, opts, exportNow); err != nil {
			b.Fatal(err)
		}
	}
}
