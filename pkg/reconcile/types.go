// Package reconcile provides inventory count reconciliation and variance analytics
package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem represents an item master record
// 商品マスタのレコードを表現（外部ストア所有、読み取り専用）
type InventoryItem struct {
	ID               string   `json:"id" db:"id"`                               // 商品ID
	SKU              string   `json:"sku" db:"sku"`                             // SKU
	Name             string   `json:"name" db:"name"`                           // 商品名
	CategoryName     string   `json:"category_name" db:"category_name"`         // カテゴリ名
	UnitOfMeasure    string   `json:"unit_of_measure" db:"unit_of_measure"`     // 単位
	UnitCost         *float64 `json:"unit_cost" db:"unit_cost"`                 // 単価
	PurchasePrice    *float64 `json:"purchase_price" db:"purchase_price"`       // 仕入価格
	CurrentStock     float64  `json:"current_stock" db:"current_stock"`         // 現在庫
	MinimumThreshold *float64 `json:"minimum_threshold" db:"minimum_threshold"` // 最小在庫閾値
	MaximumThreshold *float64 `json:"maximum_threshold" db:"maximum_threshold"` // 最大在庫閾値
	Location         string   `json:"location" db:"location"`                   // 保管場所
}

// InventoryCount represents a single count session
// 棚卸セッションを表現
type InventoryCount struct {
	ID              string      `json:"id" db:"id"`                               // セッションID
	TeamID          *string     `json:"team_id" db:"team_id"`                     // チームID（未割当の場合nil）
	CountDate       time.Time   `json:"count_date" db:"count_date"`               // 棚卸日
	Status          CountStatus `json:"status" db:"status"`                       // ステータス
	IsVoided        bool        `json:"is_voided" db:"is_voided"`                 // 論理削除フラグ
	TotalItemsCount int         `json:"total_items_count" db:"total_items_count"` // 対象商品数
	VarianceCount   int         `json:"variance_count" db:"variance_count"`       // 差異件数
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`               // 作成日時
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`               // 更新日時
	Notes           string      `json:"notes" db:"notes"`                         // 備考
}

// CountStatus defines the lifecycle state of a count session
// 棚卸セッションの状態を定義
type CountStatus string

const (
	CountStatusInProgress CountStatus = "in_progress" // 実施中
	CountStatusCompleted  CountStatus = "completed"   // 完了
)

// IsCompleted reports whether the session has been finalized
func (c InventoryCount) IsCompleted() bool {
	return c.Status == CountStatusCompleted
}

// CompletionHours returns updated_at - created_at in hours
// 完了までの所要時間（時間）を返す
func (c InventoryCount) CompletionHours() float64 {
	d := c.UpdatedAt.Sub(c.CreatedAt)
	if d < 0 {
		return 0
	}
	return d.Hours()
}

// InventoryCountItem represents one counted line of a session
// セッション内の1商品分の棚卸明細を表現
type InventoryCountItem struct {
	ID              string     `json:"id" db:"id"`                               // 明細ID
	CountID         string     `json:"count_id" db:"count_id"`                   // セッションID
	ItemID          string     `json:"item_id" db:"item_id"`                     // 商品ID
	ActualQuantity  *float64   `json:"actual_quantity" db:"actual_quantity"`     // 実数量（未カウントの場合nil）
	InStockQuantity *float64   `json:"in_stock_quantity" db:"in_stock_quantity"` // 棚卸前の帳簿在庫
	CountedAt       *time.Time `json:"counted_at" db:"counted_at"`               // カウント日時
	CountedBy       string     `json:"counted_by" db:"counted_by"`               // カウント担当者
	Notes           string     `json:"notes" db:"notes"`                         // 備考
}

// IsCounted reports whether an actual quantity has been recorded
func (ci InventoryCountItem) IsCounted() bool {
	return ci.ActualQuantity != nil
}

// Team is an entry of the team directory
type Team struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Transaction represents a stock movement used by enhanced analytics
// 在庫移動記録を表現
type Transaction struct {
	ID              string          `json:"id" db:"id"`                             // トランザクションID
	ItemID          string          `json:"item_id" db:"item_id"`                   // 商品ID
	TeamID          *string         `json:"team_id" db:"team_id"`                   // チームID
	Type            TransactionType `json:"transaction_type" db:"transaction_type"` // 種別
	Quantity        float64         `json:"quantity" db:"quantity"`                 // 数量
	UnitCost        float64         `json:"unit_cost" db:"unit_cost"`               // 単価
	TransactionDate time.Time       `json:"transaction_date" db:"transaction_date"` // 取引日
}

// TransactionType defines the type of stock movement
// 在庫移動のタイプを定義
type TransactionType string

const (
	TransactionTypeReceipt    TransactionType = "receipt"    // 入庫
	TransactionTypeIssue      TransactionType = "issue"      // 出庫
	TransactionTypeTransfer   TransactionType = "transfer"   // 移動
	TransactionTypeAdjustment TransactionType = "adjustment" // 調整
)

// VarianceCategory classifies the severity of a count variance
// 棚卸差異の重大度を分類
type VarianceCategory string

const (
	VarianceAcceptable  VarianceCategory = "acceptable"  // 許容範囲（5%以下）
	VarianceMinor       VarianceCategory = "minor"       // 軽微（15%以下）
	VarianceSignificant VarianceCategory = "significant" // 重大（25%以下）
	VarianceCritical    VarianceCategory = "critical"    // 致命的（25%超）
)

// Label returns the capitalized display label
func (c VarianceCategory) Label() string {
	switch c {
	case VarianceAcceptable:
		return "Acceptable"
	case VarianceMinor:
		return "Minor"
	case VarianceSignificant:
		return "Significant"
	case VarianceCritical:
		return "Critical"
	}
	return string(c)
}

// StockStatus describes the health of a counted quantity against thresholds
// 閾値に対する在庫状態を表現
type StockStatus string

const (
	StockStatusOut    StockStatus = "out"    // 在庫切れ
	StockStatusLow    StockStatus = "low"    // 低在庫
	StockStatusOver   StockStatus = "over"   // 過剰在庫
	StockStatusNormal StockStatus = "normal" // 正常
)

// Message returns the human readable status used in exports
func (s StockStatus) Message() string {
	switch s {
	case StockStatusOut:
		return "Out of Stock"
	case StockStatusLow:
		return "Low Stock"
	case StockStatusOver:
		return "Overstock"
	case StockStatusNormal:
		return "Normal"
	}
	return string(s)
}

// OutOfRange reports whether the status needs follow-up
func (s StockStatus) OutOfRange() bool {
	return s == StockStatusOut || s == StockStatusLow || s == StockStatusOver
}

// Trend is the three-valued improvement signal
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// EnhancedInventoryItem is a count line joined with its item master and derived analysis
// 商品マスタと結合し分析値を付与した棚卸明細
type EnhancedInventoryItem struct {
	InventoryCountItem

	Item               InventoryItem    `json:"item"`                 // 結合済み商品（欠損時はプレースホルダー）
	TeamID             *string          `json:"team_id"`              // 所属セッションのチーム
	CountDate          time.Time        `json:"count_date"`           // 所属セッションの棚卸日
	UnitCost           float64          `json:"unit_cost"`            // 解決済み単価
	PreCountStock      float64          `json:"pre_count_stock"`      // 棚卸前在庫
	VarianceQuantity   float64          `json:"variance_quantity"`    // 差異数量
	VariancePercentage float64          `json:"variance_percentage"`  // 差異率（%）
	VarianceCost       float64          `json:"variance_cost"`        // 差異金額
	TotalPreCountValue float64          `json:"total_pre_count_value"` // 棚卸前評価額
	TotalActualValue   float64          `json:"total_actual_value"`   // 実在庫評価額
	VarianceCategory   VarianceCategory `json:"variance_category"`    // 差異分類
	StockStatus        StockStatus      `json:"stock_status"`         // 在庫状態
	RequiresAttention  bool             `json:"requires_attention"`   // 要対応フラグ
	MissingReference   bool             `json:"missing_reference"`    // 商品マスタ欠損
}

// HasVariance reports a counted line whose variance exceeds the epsilon
func (e EnhancedInventoryItem) HasVariance() bool {
	return e.IsCounted() && abs(e.VarianceQuantity) > VarianceEpsilon
}

// TeamPerformanceMetrics summarizes one team's counts within a window
// チーム単位の棚卸実績
type TeamPerformanceMetrics struct {
	TeamID           string  `json:"team_id"`
	TeamName         string  `json:"team_name"`
	Accuracy         float64 `json:"accuracy"`        // 平均精度（%）
	CompletionTime   float64 `json:"completion_time"` // 平均所要時間（時間）
	CountCompletions int     `json:"count_completions"`
	VarianceCost     float64 `json:"variance_cost"`
	InventoryValue   float64 `json:"inventory_value"`
	ImprovementTrend Trend   `json:"improvement_trend"`
}

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// NewExportID generates a new export identifier
// 新しいエクスポートIDを生成
func NewExportID() string {
	return uuid.New().String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
