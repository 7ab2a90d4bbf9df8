package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accuracyLines builds ten counted lines of which the given number carry a variance
func accuracyLines(countID string, variances int) []InventoryCountItem {
	lines := make([]InventoryCountItem, 0, 10)
	for i := 0; i < 10; i++ {
		actual := 10.0
		if i < variances {
			actual = 9
		}
		lines = append(lines, countLine(countID+"-"+string(rune('0'+i)), countID, "item", fp(10), fp(actual)))
	}
	return lines
}

// TestAggregateTeamPerformance はチーム実績集計のテスト
func TestAggregateTeamPerformance(t *testing.T) {
	now := day(2024, 3, 31)
	teams := []Team{{ID: "team-a", Name: "Alpha"}, {ID: "team-b", Name: "Bravo"}}

	older := completedCount("a1", sp("team-a"), now.AddDate(0, 0, -10), 2)
	newer := completedCount("a2", sp("team-a"), now.AddDate(0, 0, -2), 4)
	bravo := completedCount("b1", sp("team-b"), now.AddDate(0, 0, -5), 1)
	unassigned := completedCount("u1", nil, now.AddDate(0, 0, -3), 1)
	outside := completedCount("a0", sp("team-a"), now.AddDate(0, 0, -45), 1)
	inProgress := InventoryCount{ID: "a3", TeamID: sp("team-a"), CountDate: now, Status: CountStatusInProgress}

	sessions := []InventoryCount{older, newer, bravo, unassigned, outside, inProgress}
	var lines []InventoryCountItem
	lines = append(lines, accuracyLines("a1", 1)...) // 90%
	lines = append(lines, accuracyLines("a2", 0)...) // 100%
	lines = append(lines, accuracyLines("b1", 2)...) // 80%
	items := NewEnricher(0).EnrichAll(sessions, lines, NewItemIndex([]InventoryItem{pricedItem("item", "Item", 10)}))

	result := AggregateTeamPerformance(sessions, items, teams, TeamWindow{Now: now, Days: 30})
	require.Len(t, result, 3)

	alpha, bravoResult, unassignedResult := result[0], result[1], result[2]

	assert.Equal(t, "Alpha", alpha.TeamName)
	assert.Equal(t, 2, alpha.CountCompletions)
	assert.InDelta(t, 95, alpha.Accuracy, 1e-9)
	assert.InDelta(t, 3, alpha.CompletionTime, 1e-9)
	assert.InDelta(t, 10, alpha.VarianceCost, 1e-9)
	assert.InDelta(t, 1990, alpha.InventoryValue, 1e-9)
	assert.Equal(t, TrendUp, alpha.ImprovementTrend)

	assert.Equal(t, "Bravo", bravoResult.TeamName)
	assert.InDelta(t, 80, bravoResult.Accuracy, 1e-9)
	assert.Equal(t, TrendStable, bravoResult.ImprovementTrend)

	assert.Equal(t, UnassignedTeamID, unassignedResult.TeamID)
	assert.Equal(t, "Unassigned", unassignedResult.TeamName)
	// 明細なし・ヘッダー件数0の場合は100%
	assert.Equal(t, 100.0, unassignedResult.Accuracy)
}

func TestAggregateTeamPerformance_VoidedExcluded(t *testing.T) {
	now := day(2024, 3, 31)
	voided := completedCount("v1", sp("team-a"), now.AddDate(0, 0, -1), 1)
	voided.IsVoided = true

	assert.Empty(t, AggregateTeamPerformance([]InventoryCount{voided}, nil, nil, TeamWindow{Now: now}))

	result := AggregateTeamPerformance([]InventoryCount{voided}, nil, nil, TeamWindow{Now: now, IncludeVoided: true})
	require.Len(t, result, 1)
	assert.Equal(t, "Team team-a", result[0].TeamName)
}

func TestTeamWindow_Includes(t *testing.T) {
	now := day(2024, 3, 31)
	w := TeamWindow{Now: now, Days: 30}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"基準時刻ちょうど", now, true},
		{"期間の開始", now.AddDate(0, 0, -30), true},
		{"期間より前", now.AddDate(0, 0, -31), false},
		{"基準時刻より後", now.Add(time.Minute), false},
		{"翌月", now.AddDate(0, 1, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Includes(completedCount("s", sp("team-a"), tt.date, 1)))
		})
	}

	future := completedCount("f1", sp("team-a"), now.AddDate(0, 1, 0), 1)
	assert.Empty(t, AggregateTeamPerformance([]InventoryCount{future}, nil, nil, w))
}

func TestCompareAccuracy(t *testing.T) {
	assert.Equal(t, TrendUp, CompareAccuracy(95, 90))
	assert.Equal(t, TrendDown, CompareAccuracy(85, 90))
	assert.Equal(t, TrendStable, CompareAccuracy(92, 90))
	assert.Equal(t, TrendStable, CompareAccuracy(88, 90))
}

func TestMostRecentTwo(t *testing.T) {
	base := day(2024, 3, 10)
	a := completedCount("a", nil, base, 1)
	b := completedCount("b", nil, base.AddDate(0, 0, 2), 1)
	c := completedCount("c", nil, base.AddDate(0, 0, 1), 1)
	// 同一日の場合は作成日時が新しい方を優先
	d := completedCount("d", nil, base.AddDate(0, 0, 2), 1)
	d.CreatedAt = b.CreatedAt.Add(time.Minute)

	recent, previous, ok := MostRecentTwo([]InventoryCount{a, b, c, d})
	require.True(t, ok)
	assert.Equal(t, "d", recent.ID)
	assert.Equal(t, "b", previous.ID)

	_, _, ok = MostRecentTwo([]InventoryCount{a})
	assert.False(t, ok)

	sorted := SortNewestFirst([]InventoryCount{a, b, c, d})
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(sorted))
}

func TestTeamDirectory_Name(t *testing.T) {
	dir := NewTeamDirectory([]Team{{ID: "t1", Name: "Night Shift"}})

	assert.Equal(t, "Night Shift", dir.Name("t1"))
	assert.Equal(t, "Team t2", dir.Name("t2"))
	assert.Equal(t, "Unassigned", dir.Name(UnassignedTeamID))
	assert.Equal(t, "Unassigned", dir.Name(""))
	assert.Equal(t, UnassignedTeamID, TeamKey(nil))
	assert.Equal(t, UnassignedTeamID, TeamKey(sp("")))
}
