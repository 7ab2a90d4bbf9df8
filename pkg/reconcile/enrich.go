package reconcile

// ItemIndex is a read-only snapshot of the item master keyed by item ID
// 商品IDをキーとした商品マスタのスナップショット
type ItemIndex map[string]InventoryItem

// NewItemIndex builds an index from an item list
func NewItemIndex(items []InventoryItem) ItemIndex {
	idx := make(ItemIndex, len(items))
	for _, item := range items {
		idx[item.ID] = item
	}
	return idx
}

// Enricher joins count lines with item master data
// 棚卸明細と商品マスタを結合する
type Enricher struct {
	FallbackUnitCost float64 // 単価・仕入価格が未設定の場合の単価
}

// NewEnricher creates an enricher; a non-positive fallback uses DefaultFallbackUnitCost
// 新しいエンリッチャーを作成
func NewEnricher(fallbackUnitCost float64) Enricher {
	if fallbackUnitCost <= 0 {
		fallbackUnitCost = DefaultFallbackUnitCost
	}
	return Enricher{FallbackUnitCost: fallbackUnitCost}
}

// UnitCost resolves unit_cost, then purchase_price, then the fallback.
// Zero prices count as absent.
// 単価を解決（単価 → 仕入価格 → フォールバック）
func (e Enricher) UnitCost(item InventoryItem) float64 {
	if item.UnitCost != nil && *item.UnitCost > 0 {
		return *item.UnitCost
	}
	if item.PurchasePrice != nil && *item.PurchasePrice > 0 {
		return *item.PurchasePrice
	}
	return e.fallback()
}

// Enrich produces the derived record for a single count line.
// A dangling item reference yields a placeholder item instead of failing.
// 棚卸明細1件を分析済みレコードに変換（商品欠損時はプレースホルダーを使用）
func (e Enricher) Enrich(ci InventoryCountItem, idx ItemIndex, count InventoryCount) EnhancedInventoryItem {
	item, ok := idx[ci.ItemID]
	if !ok {
		item = placeholderItem(ci.ItemID)
	}

	unitCost := e.UnitCost(item)

	preCount := item.CurrentStock
	if ci.InStockQuantity != nil {
		preCount = *ci.InStockQuantity
	}

	actual := 0.0
	if ci.ActualQuantity != nil {
		actual = *ci.ActualQuantity
	}

	v := ClassifyVariance(preCount, actual, unitCost)
	status := EvaluateStockStatus(actual, item.MinimumThreshold, item.MaximumThreshold)

	return EnhancedInventoryItem{
		InventoryCountItem: ci,
		Item:               item,
		TeamID:             count.TeamID,
		CountDate:          count.CountDate,
		UnitCost:           unitCost,
		PreCountStock:      preCount,
		VarianceQuantity:   v.Quantity,
		VariancePercentage: v.Percentage,
		VarianceCost:       v.Cost,
		TotalPreCountValue: preCount * unitCost,
		TotalActualValue:   actual * unitCost,
		VarianceCategory:   v.Category,
		StockStatus:        status,
		RequiresAttention:  requiresAttention(v, status),
		MissingReference:   !ok,
	}
}

// EnrichAll enriches every count line that belongs to one of the given sessions.
// Lines of other sessions are dropped; input order is preserved.
// 指定セッションに属する明細をすべて変換
func (e Enricher) EnrichAll(sessions []InventoryCount, countItems []InventoryCountItem, idx ItemIndex) []EnhancedInventoryItem {
	byID := make(map[string]InventoryCount, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}

	enriched := make([]EnhancedInventoryItem, 0, len(countItems))
	for _, ci := range countItems {
		count, ok := byID[ci.CountID]
		if !ok {
			continue
		}
		enriched = append(enriched, e.Enrich(ci, idx, count))
	}
	return enriched
}

// MissingReferences returns the distinct item IDs that had no master record
func MissingReferences(items []EnhancedInventoryItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, it := range items {
		if it.MissingReference && !seen[it.ItemID] {
			seen[it.ItemID] = true
			ids = append(ids, it.ItemID)
		}
	}
	return ids
}

// EnrichmentStats summarizes one enrichment pass
// 明細付加処理の集計
type EnrichmentStats struct {
	Lines        int      // 付加済み明細数
	MissingLines int      // 商品マスタに存在しない商品を参照する明細数
	MissingItems []string // 見つからなかった商品ID（重複なし）
}

// NewEnrichmentStats counts enriched lines and the lines with a missing item reference
func NewEnrichmentStats(items []EnhancedInventoryItem) EnrichmentStats {
	stats := EnrichmentStats{Lines: len(items), MissingItems: MissingReferences(items)}
	for _, it := range items {
		if it.MissingReference {
			stats.MissingLines++
		}
	}
	return stats
}

func (e Enricher) fallback() float64 {
	if e.FallbackUnitCost > 0 {
		return e.FallbackUnitCost
	}
	return DefaultFallbackUnitCost
}

func requiresAttention(v VarianceResult, status StockStatus) bool {
	return v.Category == VarianceCritical ||
		status.OutOfRange() ||
		abs(v.Cost) > AttentionCostThreshold
}

func placeholderItem(itemID string) InventoryItem {
	short := itemID
	if len(short) > 8 {
		short = short[:8]
	}
	return InventoryItem{
		ID:   itemID,
		Name: "Item " + short,
	}
}
