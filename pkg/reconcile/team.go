package reconcile

import (
	"sort"
	"time"
)

const (
	// DefaultTeamWindowDays is the rolling window used for team performance
	DefaultTeamWindowDays = 30

	// TrendThreshold is the accuracy difference in percentage points that counts as a change
	// 改善傾向と判定する精度差（ポイント）
	TrendThreshold = 2.0

	// UnassignedTeamID buckets sessions without a team
	UnassignedTeamID = "unassigned"
)

// TeamWindow selects which sessions feed the team aggregator
// チーム集計の対象期間と条件
type TeamWindow struct {
	Now           time.Time // 基準時刻
	Days          int       // 遡る日数（0以下の場合は30日）
	IncludeVoided bool      // 無効化済みセッションを含める
}

// Cutoff returns the earliest count date inside the window
func (w TeamWindow) Cutoff() time.Time {
	days := w.Days
	if days <= 0 {
		days = DefaultTeamWindowDays
	}
	return w.Now.AddDate(0, 0, -days)
}

// Includes reports whether a session takes part in team aggregation.
// The window is closed at both ends: [Cutoff, Now].
func (w TeamWindow) Includes(s InventoryCount) bool {
	if !s.IsCompleted() {
		return false
	}
	if s.IsVoided && !w.IncludeVoided {
		return false
	}
	return !s.CountDate.Before(w.Cutoff()) && !s.CountDate.After(w.Now)
}

// TeamDirectory resolves team names by ID
type TeamDirectory map[string]string

// NewTeamDirectory builds a directory from a team list
func NewTeamDirectory(teams []Team) TeamDirectory {
	dir := make(TeamDirectory, len(teams))
	for _, t := range teams {
		dir[t.ID] = t.Name
	}
	return dir
}

// Name returns the display name of a team
// チーム表示名を返す（未登録の場合は "Team <id>"）
func (d TeamDirectory) Name(teamID string) string {
	if teamID == UnassignedTeamID || teamID == "" {
		return "Unassigned"
	}
	if name, ok := d[teamID]; ok && name != "" {
		return name
	}
	return "Team " + teamID
}

// TeamKey returns the grouping key of a session
func TeamKey(teamID *string) string {
	if teamID == nil || *teamID == "" {
		return UnassignedTeamID
	}
	return *teamID
}

type teamAccumulator struct {
	sessions       []InventoryCount
	accuracy       map[string]float64
	totalAccuracy  float64
	totalHours     float64
	varianceCost   float64
	inventoryValue float64
}

// AggregateTeamPerformance computes per-team metrics over completed sessions in the window.
// Teams without a completed session in the window are omitted.
// ウィンドウ内の完了セッションからチーム別実績を算出（対象セッションのないチームは含めない）
func AggregateTeamPerformance(sessions []InventoryCount, items []EnhancedInventoryItem, teams []Team, w TeamWindow) []TeamPerformanceMetrics {
	dir := NewTeamDirectory(teams)
	byCount := groupByCount(items)

	acc := make(map[string]*teamAccumulator)
	for _, s := range sessions {
		if !w.Includes(s) {
			continue
		}
		key := TeamKey(s.TeamID)
		a, ok := acc[key]
		if !ok {
			a = &teamAccumulator{accuracy: make(map[string]float64)}
			acc[key] = a
		}

		lines := byCount[s.ID]
		sessionAcc := sessionAccuracy(s, lines)

		a.sessions = append(a.sessions, s)
		a.accuracy[s.ID] = sessionAcc
		a.totalAccuracy += sessionAcc
		a.totalHours += s.CompletionHours()
		for _, it := range lines {
			a.varianceCost += abs(it.VarianceCost)
			a.inventoryValue += it.TotalActualValue
		}
	}

	result := make([]TeamPerformanceMetrics, 0, len(acc))
	for key, a := range acc {
		n := len(a.sessions)
		result = append(result, TeamPerformanceMetrics{
			TeamID:           key,
			TeamName:         dir.Name(key),
			Accuracy:         a.totalAccuracy / float64(n),
			CompletionTime:   a.totalHours / float64(n),
			CountCompletions: n,
			VarianceCost:     a.varianceCost,
			InventoryValue:   a.inventoryValue,
			ImprovementTrend: a.trend(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TeamName != result[j].TeamName {
			return result[i].TeamName < result[j].TeamName
		}
		return result[i].TeamID < result[j].TeamID
	})
	return result
}

func (a *teamAccumulator) trend() Trend {
	recent, previous, ok := MostRecentTwo(a.sessions)
	if !ok {
		return TrendStable
	}
	return CompareAccuracy(a.accuracy[recent.ID], a.accuracy[previous.ID])
}

// CompareAccuracy turns the accuracy change between two sessions into a trend
// 2セッション間の精度差から傾向を判定
func CompareAccuracy(recent, previous float64) Trend {
	diff := recent - previous
	switch {
	case diff > TrendThreshold:
		return TrendUp
	case diff < -TrendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}

// NewerThan orders sessions most recent first: count_date desc, then created_at desc, then id asc
// セッションの新しさを比較（棚卸日 → 作成日時 → ID）
func NewerThan(a, b InventoryCount) bool {
	if !a.CountDate.Equal(b.CountDate) {
		return a.CountDate.After(b.CountDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// MostRecentTwo selects the two most recent sessions without sorting the input
// 入力を並べ替えずに最新2セッションを選択
func MostRecentTwo(sessions []InventoryCount) (recent, previous InventoryCount, ok bool) {
	if len(sessions) < 2 {
		return InventoryCount{}, InventoryCount{}, false
	}
	first, second := sessions[0], sessions[1]
	if NewerThan(second, first) {
		first, second = second, first
	}
	for _, s := range sessions[2:] {
		switch {
		case NewerThan(s, first):
			first, second = s, first
		case NewerThan(s, second):
			second = s
		}
	}
	return first, second, true
}

// SortNewestFirst returns a copy of sessions ordered by NewerThan
func SortNewestFirst(sessions []InventoryCount) []InventoryCount {
	sorted := make([]InventoryCount, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return NewerThan(sorted[i], sorted[j])
	})
	return sorted
}
