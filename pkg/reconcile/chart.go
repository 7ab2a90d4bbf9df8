package reconcile

import "sort"

const (
	// DefaultBreakdownLimit is the number of sessions shown in the variance breakdown
	DefaultBreakdownLimit = 5

	// RepresentativeDeltas is the number of item deltas carried per breakdown session
	RepresentativeDeltas = 5
)

// CategoryValue is the counted value of one item category
// カテゴリ別の実在庫評価額
type CategoryValue struct {
	Category  string  `json:"category"`
	Value     float64 `json:"value"`
	ItemCount int     `json:"item_count"`
}

// ItemDelta is one line's observed variance
type ItemDelta struct {
	ItemID           string  `json:"item_id"`
	ItemName         string  `json:"item_name"`
	VarianceQuantity float64 `json:"variance_quantity"`
	VarianceCost     float64 `json:"variance_cost"`
}

// SessionVariance is a session of the variance breakdown with its largest real deltas.
// InsufficientData is set when the session has no line items to draw deltas from.
// 差異件数上位セッションと代表的な明細差異
type SessionVariance struct {
	CountID          string      `json:"count_id"`
	TeamName         string      `json:"team_name"`
	VarianceCount    int         `json:"variance_count"`
	Deltas           []ItemDelta `json:"deltas"`
	InsufficientData bool        `json:"insufficient_data"`
}

// TeamDailyPerformance is one team's activity on the analysed day
// チーム別の当日実績
type TeamDailyPerformance struct {
	TeamID       string  `json:"team_id"`
	TeamName     string  `json:"team_name"`
	Sessions     int     `json:"sessions"`
	TotalItems   int     `json:"total_items"`
	CountedItems int     `json:"counted_items"`
	Variances    int     `json:"variances"`
	Accuracy     float64 `json:"accuracy"`
}

// DailyChartData groups the chart series of a single day
type DailyChartData struct {
	CategoryBreakdown []CategoryValue        `json:"category_breakdown"`
	VarianceBreakdown []SessionVariance      `json:"variance_breakdown"`
	TeamPerformance   []TeamDailyPerformance `json:"team_performance"`
}

// ProjectDailyCharts shapes a day's filtered sessions and items into chart series.
// limit caps the variance breakdown; non-positive uses DefaultBreakdownLimit.
// 当日のセッションと明細からチャート用データを生成
func ProjectDailyCharts(sessions []InventoryCount, items []EnhancedInventoryItem, teams []Team, limit int) DailyChartData {
	if limit <= 0 {
		limit = DefaultBreakdownLimit
	}
	dir := NewTeamDirectory(teams)
	byCount := groupByCount(items)

	return DailyChartData{
		CategoryBreakdown: categoryBreakdown(items),
		VarianceBreakdown: varianceBreakdown(sessions, byCount, dir, limit),
		TeamPerformance:   teamDaily(sessions, byCount, dir),
	}
}

func categoryBreakdown(items []EnhancedInventoryItem) []CategoryValue {
	index := make(map[string]int)
	out := []CategoryValue{}
	for _, it := range items {
		if !it.IsCounted() {
			continue
		}
		name := orDefault(it.Item.CategoryName, "Uncategorized")
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, CategoryValue{Category: name})
		}
		out[i].Value += it.TotalActualValue
		out[i].ItemCount++
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func varianceBreakdown(sessions []InventoryCount, byCount map[string][]EnhancedInventoryItem, dir TeamDirectory, limit int) []SessionVariance {
	ranked := make([]InventoryCount, len(sessions))
	copy(ranked, sessions)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].VarianceCount != ranked[j].VarianceCount {
			return ranked[i].VarianceCount > ranked[j].VarianceCount
		}
		return NewerThan(ranked[i], ranked[j])
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]SessionVariance, 0, len(ranked))
	for _, s := range ranked {
		lines := byCount[s.ID]
		sv := SessionVariance{
			CountID:          s.ID,
			TeamName:         dir.Name(TeamKey(s.TeamID)),
			VarianceCount:    s.VarianceCount,
			Deltas:           []ItemDelta{},
			InsufficientData: len(lines) == 0,
		}

		var varied []EnhancedInventoryItem
		for _, it := range lines {
			if it.HasVariance() {
				varied = append(varied, it)
			}
		}
		sort.SliceStable(varied, func(i, j int) bool {
			return abs(varied[i].VarianceCost) > abs(varied[j].VarianceCost)
		})
		if len(varied) > RepresentativeDeltas {
			varied = varied[:RepresentativeDeltas]
		}
		for _, it := range varied {
			sv.Deltas = append(sv.Deltas, ItemDelta{
				ItemID:           it.ItemID,
				ItemName:         it.Item.Name,
				VarianceQuantity: it.VarianceQuantity,
				VarianceCost:     it.VarianceCost,
			})
		}
		out = append(out, sv)
	}
	return out
}

func teamDaily(sessions []InventoryCount, byCount map[string][]EnhancedInventoryItem, dir TeamDirectory) []TeamDailyPerformance {
	index := make(map[string]int)
	out := []TeamDailyPerformance{}
	for _, s := range sessions {
		key := TeamKey(s.TeamID)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, TeamDailyPerformance{TeamID: key, TeamName: dir.Name(key)})
		}
		t := &out[i]
		t.Sessions++
		for _, it := range byCount[s.ID] {
			t.TotalItems++
			if !it.IsCounted() {
				continue
			}
			t.CountedItems++
			if it.HasVariance() {
				t.Variances++
			}
		}
	}
	for i := range out {
		out[i].Accuracy = AccuracyRate(out[i].CountedItems, out[i].Variances)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TeamName < out[j].TeamName
	})
	return out
}
