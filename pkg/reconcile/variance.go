package reconcile

import "math"

// Variance band upper edges in percent. Each band is closed at its upper edge.
// 差異分類の上限値（%）。各区分は上限を含む
const (
	AcceptableVarianceMax  = 5.0
	MinorVarianceMax       = 15.0
	SignificantVarianceMax = 25.0
)

const (
	// AttentionCostThreshold is the absolute variance cost above which an item needs attention
	// 差異金額の絶対値がこれを超えると要対応
	AttentionCostThreshold = 100.0

	// VarianceEpsilon is the smallest variance quantity counted as a variance
	VarianceEpsilon = 0.01

	// DefaultFallbackUnitCost is used when neither unit cost nor purchase price is known
	DefaultFallbackUnitCost = 15.0
)

// VarianceResult holds the outcome of classifying one counted line
// 棚卸明細1件の差異分類結果
type VarianceResult struct {
	Quantity   float64          `json:"quantity"`   // 差異数量
	Percentage float64          `json:"percentage"` // 差異率（%）
	Cost       float64          `json:"cost"`       // 差異金額
	Category   VarianceCategory `json:"category"`   // 差異分類
}

// ClassifyVariance computes variance quantity, percentage, cost and category.
// The percentage is taken against preCountStock and is 0 when preCountStock is 0.
// 棚卸前在庫を基準に差異を計算・分類
func ClassifyVariance(preCountStock, actual, unitCost float64) VarianceResult {
	qty := actual - preCountStock

	pct := 0.0
	if preCountStock > 0 {
		pct = math.Abs(qty) / preCountStock * 100
	}

	return VarianceResult{
		Quantity:   qty,
		Percentage: pct,
		Cost:       qty * unitCost,
		Category:   CategorizeVariance(pct),
	}
}

// CategorizeVariance maps a variance percentage onto its severity band
// 差異率を重大度区分に変換
func CategorizeVariance(pct float64) VarianceCategory {
	switch {
	case pct <= AcceptableVarianceMax:
		return VarianceAcceptable
	case pct <= MinorVarianceMax:
		return VarianceMinor
	case pct <= SignificantVarianceMax:
		return VarianceSignificant
	default:
		return VarianceCritical
	}
}

// EvaluateStockStatus returns the stock status of a counted quantity.
// Priority: out, low, over, normal. A nil or non-positive threshold is treated as unconfigured.
// 実数量と閾値から在庫状態を判定（在庫切れ > 低在庫 > 過剰 > 正常）
func EvaluateStockStatus(actual float64, minimum, maximum *float64) StockStatus {
	if actual == 0 {
		return StockStatusOut
	}
	if thresholdSet(minimum) && actual < *minimum {
		return StockStatusLow
	}
	if thresholdSet(maximum) && actual > *maximum {
		return StockStatusOver
	}
	return StockStatusNormal
}

// AccuracyRate returns (counted - variances) / counted * 100, or 100 when nothing was counted.
// 精度を計算（カウント0件の場合は100%とみなす）
func AccuracyRate(counted, variances int) float64 {
	if counted <= 0 {
		return 100
	}
	return float64(counted-variances) / float64(counted) * 100
}

func thresholdSet(v *float64) bool {
	return v != nil && *v > 0
}
