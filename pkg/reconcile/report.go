package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReportType defines the shape of an export
// エクスポートの種類を定義
type ReportType string

const (
	ReportDetailed        ReportType = "detailed"         // 明細
	ReportSummary         ReportType = "summary"          // サマリー
	ReportExceptions      ReportType = "exceptions"       // 要対応項目
	ReportTeamPerformance ReportType = "team-performance" // チーム実績
	ReportFinancialImpact ReportType = "financial-impact" // 財務影響
)

// DefaultVarianceThreshold is the summary threshold used when none is given (percent)
const DefaultVarianceThreshold = 5.0

// ExportOptions controls which records an export covers and which columns it carries
// エクスポート対象と列構成の指定
type ExportOptions struct {
	Type                 ReportType `json:"type" validate:"required,oneof=detailed summary exceptions team-performance financial-impact"`
	CountID              string     `json:"count_id,omitempty" validate:"omitempty,max=255"`
	TeamID               string     `json:"team_id,omitempty" validate:"omitempty,max=255"`
	VarianceThreshold    *float64   `json:"variance_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	IncludeFinancials    bool       `json:"include_financials"`
	IncludeStockAnalysis bool       `json:"include_stock_analysis"`
	IncludeVoided        bool       `json:"include_voided"`
}

// Threshold returns the variance threshold or DefaultVarianceThreshold
func (o ExportOptions) Threshold() float64 {
	if o.VarianceThreshold == nil {
		return DefaultVarianceThreshold
	}
	return *o.VarianceThreshold
}

// ExportInput is the full source snapshot an export is generated from
// エクスポート生成元のデータスナップショット
type ExportInput struct {
	Counts           []InventoryCount
	CountItems       []InventoryCountItem
	Items            []InventoryItem
	Teams            []Team
	FallbackUnitCost float64
}

// ExportMetadata describes a generated export
// エクスポートのメタデータ
type ExportMetadata struct {
	ExportID          string     `json:"export_id,omitempty"`
	ExportType        ReportType `json:"export_type"`
	CountDate         string     `json:"count_date"`
	TeamName          string     `json:"team_name"`
	TotalItems        int        `json:"total_items"`
	TotalVarianceCost float64    `json:"total_variance_cost"`
	CriticalItems     int        `json:"critical_items"`
	VarianceThreshold float64    `json:"variance_threshold"`
	GeneratedAt       string     `json:"generated_at"`
}

// Export is a rendered report: display strings only, not meant for re-ingestion
// 表示用文字列で構成されたレポート
type Export struct {
	Filename string         `json:"filename"`
	Headers  []string       `json:"headers"`
	Rows     [][]string     `json:"rows"`
	Metadata ExportMetadata `json:"metadata"`
}

// WriteCSV writes the header row followed by all data rows
// CSV形式で書き出し
func (e *Export) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(e.Headers); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}
	if err := cw.WriteAll(e.Rows); err != nil {
		return fmt.Errorf("CSV行の書き込みに失敗しました: %w", err)
	}
	return nil
}

// GenerateExport renders a report of the requested type.
// Sessions are narrowed by CountID and TeamID before enrichment; now stamps the filename and metadata.
// 指定タイプのレポートを生成
func GenerateExport(in ExportInput, opts ExportOptions, now time.Time) (*Export, error) {
	if err := ValidateExportOptions(opts); err != nil {
		return nil, err
	}

	counts := selectExportCounts(in.Counts, opts)
	items := NewEnricher(in.FallbackUnitCost).EnrichAll(counts, in.CountItems, NewItemIndex(in.Items))

	var headers []string
	var rows [][]string
	switch opts.Type {
	case ReportDetailed:
		headers, rows = detailedReport(items, opts)
	case ReportSummary:
		headers, rows = summaryReport(items, counts, opts.Threshold())
	case ReportExceptions:
		headers, rows = exceptionsReport(items)
	case ReportTeamPerformance:
		headers, rows = teamPerformanceReport(items, counts)
	case ReportFinancialImpact:
		headers, rows = financialImpactReport(items)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportType, opts.Type)
	}

	teamName := "All Teams"
	if opts.TeamID != "" {
		teamName = NewTeamDirectory(in.Teams).Name(opts.TeamID)
	}

	totalCost, critical := 0.0, 0
	for _, it := range items {
		totalCost += abs(it.VarianceCost)
		if it.RequiresAttention {
			critical++
		}
	}

	return &Export{
		Filename: ExportFilename(opts.Type, opts.TeamID, teamName, now),
		Headers:  headers,
		Rows:     rows,
		Metadata: ExportMetadata{
			ExportType:        opts.Type,
			CountDate:         exportCountDate(counts),
			TeamName:          teamName,
			TotalItems:        len(items),
			TotalVarianceCost: totalCost,
			CriticalItems:     critical,
			VarianceThreshold: opts.Threshold(),
			GeneratedAt:       now.Format(GeneratedAtLayout),
		},
	}, nil
}

// ExportFilename builds inventory-{type}-export{-team}-{yyyy-MM-dd}.csv.
// The team suffix is present only when a team filter is active.
// ファイル名を生成（チーム指定時のみチーム名を付与）
func ExportFilename(t ReportType, teamID, teamName string, now time.Time) string {
	suffix := ""
	if teamID != "" {
		suffix = "-" + strings.Join(strings.Fields(teamName), "-")
	}
	return fmt.Sprintf("inventory-%s-export%s-%s.csv", t, suffix, now.Format(FileDateLayout))
}

// ImpactLevel grades an absolute variance cost
func ImpactLevel(varianceCost float64) string {
	c := abs(varianceCost)
	switch {
	case c > 500:
		return "Critical"
	case c > 100:
		return "High"
	case c > 25:
		return "Medium"
	default:
		return "Low"
	}
}

// PerformanceRating grades a team accuracy percentage
func PerformanceRating(accuracy float64) string {
	switch {
	case accuracy < 70:
		return "Needs Improvement"
	case accuracy < 85:
		return "Good"
	case accuracy < 95:
		return "Very Good"
	default:
		return "Excellent"
	}
}

// ExceptionIssue returns the issue type and required action for an item.
// The first matching rule wins; ok is false when no rule applies.
// 要対応項目の問題種別と対応内容を判定
func ExceptionIssue(it EnhancedInventoryItem) (issue, action string, ok bool) {
	switch {
	case it.VarianceCategory == VarianceCritical:
		return "Critical Variance", "Investigate count accuracy", true
	case it.StockStatus == StockStatusOut || it.StockStatus == StockStatusLow:
		return "Critical Shortage", "Reorder immediately", true
	case it.StockStatus == StockStatusOver:
		return "Overstock", "Review ordering patterns", true
	case abs(it.VarianceCost) > AttentionCostThreshold:
		return "High Financial Impact", "Verify count and investigate", true
	}
	return "", "", false
}

// ExportFilter returns the session filter an export selects with.
// Exports span a date range, so the day predicate is left open.
// エクスポート対象セッションの選択条件
func (o ExportOptions) ExportFilter() SessionFilter {
	f := SessionFilter{IncludeVoided: o.IncludeVoided}
	if o.TeamID != "" {
		teamID := o.TeamID
		f.TeamID = &teamID
	}
	if o.CountID != "" {
		f.Selection = []string{o.CountID}
	}
	return f
}

func selectExportCounts(counts []InventoryCount, opts ExportOptions) []InventoryCount {
	return opts.ExportFilter().Apply(counts)
}

func exportCountDate(counts []InventoryCount) string {
	if len(counts) == 0 {
		return "N/A"
	}
	first := counts[0].CountDate
	for _, c := range counts[1:] {
		if !SameDay(first, c.CountDate) {
			return "Multiple Dates"
		}
	}
	return first.Format(FileDateLayout)
}

var (
	detailedBaseHeaders = []string{
		"Item Name", "SKU", "Category", "Location", "Unit of Measure",
		"Pre-Count Stock", "Actual Count", "Variance Qty", "Variance %",
		"Count Date", "Counted By", "Notes",
	}
	detailedFinancialHeaders = []string{
		"Unit Cost", "Pre-Count Value", "Actual Value", "Variance Cost", "Purchase Price",
	}
	detailedStockHeaders = []string{
		"Min Threshold", "Max Threshold", "Stock Status", "Variance Category", "Requires Attention",
	}
)

// detailedReport fixes the column set from the options before any row is built
func detailedReport(items []EnhancedInventoryItem, opts ExportOptions) ([]string, [][]string) {
	headers := append([]string{}, detailedBaseHeaders...)
	if opts.IncludeFinancials {
		headers = append(headers, detailedFinancialHeaders...)
	}
	if opts.IncludeStockAnalysis {
		headers = append(headers, detailedStockHeaders...)
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		row := make([]string, 0, len(headers))
		row = append(row,
			it.Item.Name,
			orDefault(it.Item.SKU, "N/A"),
			orDefault(it.Item.CategoryName, "Uncategorized"),
			orDefault(it.Item.Location, "N/A"),
			orDefault(it.Item.UnitOfMeasure, "units"),
			FormatQuantity(it.PreCountStock),
			FormatOptionalQuantity(it.ActualQuantity),
			FormatQuantity(it.VarianceQuantity),
			FormatPercent(it.VariancePercentage),
			FormatCountedAt(it.CountedAt),
			orDefault(it.CountedBy, "Unknown"),
			it.Notes,
		)
		if opts.IncludeFinancials {
			purchase := 0.0
			if it.Item.PurchasePrice != nil {
				purchase = *it.Item.PurchasePrice
			}
			row = append(row,
				FormatMoney(it.UnitCost),
				FormatMoney(it.TotalPreCountValue),
				FormatMoney(it.TotalActualValue),
				FormatMoney(it.VarianceCost),
				FormatMoney(purchase),
			)
		}
		if opts.IncludeStockAnalysis {
			row = append(row,
				FormatOptionalQuantity(it.Item.MinimumThreshold),
				FormatOptionalQuantity(it.Item.MaximumThreshold),
				it.StockStatus.Message(),
				it.VarianceCategory.Label(),
				yesNo(it.RequiresAttention),
			)
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func summaryReport(items []EnhancedInventoryItem, counts []InventoryCount, threshold float64) ([]string, [][]string) {
	var preValue, actualValue, totalCost, positive, negative float64
	aboveThreshold := 0
	categories := make(map[VarianceCategory]int)
	statuses := make(map[StockStatus]int)

	for _, it := range items {
		preValue += it.TotalPreCountValue
		actualValue += it.TotalActualValue
		totalCost += abs(it.VarianceCost)
		if it.VarianceCost > 0 {
			positive += it.VarianceCost
		} else {
			negative += -it.VarianceCost
		}
		if it.VariancePercentage > threshold {
			aboveThreshold++
		}
		categories[it.VarianceCategory]++
		statuses[it.StockStatus]++
	}

	dates := make([]string, 0, len(counts))
	for _, c := range counts {
		dates = append(dates, c.CountDate.Format(SummaryDateLayout))
	}

	blank := []string{"", ""}
	rows := [][]string{
		{"Total Items Counted", fmt.Sprint(len(items))},
		{"Total Pre-Count Value", FormatMoney(preValue)},
		{"Total Actual Value", FormatMoney(actualValue)},
		{"Total Variance Cost", FormatMoney(totalCost)},
		{"Positive Variance Cost", FormatMoney(positive)},
		{"Negative Variance Cost", FormatMoney(negative)},
		{fmt.Sprintf("Items Above Variance Threshold (%s%%)", FormatQuantity(threshold)), fmt.Sprint(aboveThreshold)},
		blank,
		{"Variance Analysis", ""},
		{"Acceptable Variance (≤5%)", fmt.Sprint(categories[VarianceAcceptable])},
		{"Minor Variance (5-15%)", fmt.Sprint(categories[VarianceMinor])},
		{"Significant Variance (15-25%)", fmt.Sprint(categories[VarianceSignificant])},
		{"Critical Variance (>25%)", fmt.Sprint(categories[VarianceCritical])},
		blank,
		{"Stock Level Analysis", ""},
		{"Out of Stock Items", fmt.Sprint(statuses[StockStatusOut])},
		{"Under Stock Items", fmt.Sprint(statuses[StockStatusLow])},
		{"Over Stock Items", fmt.Sprint(statuses[StockStatusOver])},
		{"Normal Stock Items", fmt.Sprint(statuses[StockStatusNormal])},
		blank,
		{"Count Information", ""},
		{"Number of Counts", fmt.Sprint(len(counts))},
		{"Count Dates", strings.Join(dates, ", ")},
	}
	return []string{"Metric", "Value"}, rows
}

func exceptionsReport(items []EnhancedInventoryItem) ([]string, [][]string) {
	headers := []string{
		"Item Name", "SKU", "Issue Type", "Pre-Count Stock", "Actual Count",
		"Variance", "Variance Cost", "Stock Status", "Action Required",
	}

	var rows [][]string
	for _, it := range items {
		if !it.RequiresAttention {
			continue
		}
		issue, action, ok := ExceptionIssue(it)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			it.Item.Name,
			orDefault(it.Item.SKU, "N/A"),
			issue,
			FormatQuantity(it.PreCountStock),
			FormatOptionalQuantity(it.ActualQuantity),
			FormatQuantity(it.VarianceQuantity),
			FormatMoney(it.VarianceCost),
			it.StockStatus.Message(),
			action,
		})
	}
	return headers, rows
}

func teamPerformanceReport(items []EnhancedInventoryItem, counts []InventoryCount) ([]string, [][]string) {
	headers := []string{
		"Team ID", "Items Counted", "Accuracy Rate", "Avg Variance %",
		"Total Variance Cost", "Critical Items", "Count Completion Time", "Performance Rating",
	}

	sessions := make(map[string][]InventoryCount)
	for _, c := range counts {
		key := TeamKey(c.TeamID)
		sessions[key] = append(sessions[key], c)
	}
	keys := make([]string, 0, len(sessions))
	for k := range sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	byCount := groupByCount(items)
	var rows [][]string
	for _, key := range keys {
		var lines []EnhancedInventoryItem
		for _, c := range sessions[key] {
			lines = append(lines, byCount[c.ID]...)
		}
		if len(lines) == 0 {
			continue
		}

		acceptable, critical := 0, 0
		pctSum, costSum := 0.0, 0.0
		for _, it := range lines {
			switch it.VarianceCategory {
			case VarianceAcceptable:
				acceptable++
			case VarianceCritical:
				critical++
			}
			pctSum += it.VariancePercentage
			costSum += abs(it.VarianceCost)
		}
		n := float64(len(lines))
		accuracy := float64(acceptable) / n * 100

		completion := "N/A"
		for _, c := range sessions[key] {
			if c.IsCompleted() {
				completion = FormatHours(averageCompletionHours(sessions[key]))
				break
			}
		}

		rows = append(rows, []string{
			key,
			fmt.Sprint(len(lines)),
			FormatPercent(accuracy),
			FormatPercent(pctSum / n),
			FormatMoney(costSum),
			fmt.Sprint(critical),
			completion,
			PerformanceRating(accuracy),
		})
	}
	return headers, rows
}

// financialImpactReport sorts by absolute variance cost and accumulates in one pass
func financialImpactReport(items []EnhancedInventoryItem) ([]string, [][]string) {
	headers := []string{
		"Item Name", "Category", "Pre-Count Value", "Actual Value", "Variance Cost",
		"Impact Level", "Cumulative Impact", "Percentage of Total",
	}

	sorted := make([]EnhancedInventoryItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return abs(sorted[i].VarianceCost) > abs(sorted[j].VarianceCost)
	})

	total := decimal.Zero
	for _, it := range sorted {
		total = total.Add(decimal.NewFromFloat(abs(it.VarianceCost)))
	}

	hundred := decimal.NewFromInt(100)
	cumulative := decimal.Zero
	rows := make([][]string, 0, len(sorted))
	for _, it := range sorted {
		cost := decimal.NewFromFloat(abs(it.VarianceCost))
		cumulative = cumulative.Add(cost)

		share := decimal.Zero
		if total.IsPositive() {
			share = cost.Div(total).Mul(hundred)
		}

		rows = append(rows, []string{
			it.Item.Name,
			orDefault(it.Item.CategoryName, "Uncategorized"),
			FormatMoney(it.TotalPreCountValue),
			FormatMoney(it.TotalActualValue),
			FormatMoney(it.VarianceCost),
			ImpactLevel(it.VarianceCost),
			FormatMoneyDecimal(cumulative),
			FormatPercentDecimal(share),
		})
	}
	return headers, rows
}
