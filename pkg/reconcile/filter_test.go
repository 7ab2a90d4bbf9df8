package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func filterFixture() []InventoryCount {
	target := day(2024, 3, 15)
	voided := completedCount("c3", sp("team-a"), target, 1)
	voided.IsVoided = true
	return []InventoryCount{
		completedCount("c1", sp("team-a"), target, 1),
		completedCount("c2", sp("team-b"), target.Add(-10*time.Hour), 1),
		voided,
		completedCount("c4", nil, target, 1),
		completedCount("c5", sp("team-a"), day(2024, 3, 14), 1),
	}
}

func ids(counts []InventoryCount) []string {
	out := make([]string, 0, len(counts))
	for _, c := range counts {
		out = append(out, c.ID)
	}
	return out
}

// TestSessionFilter_Apply はセッション選択条件のテスト
func TestSessionFilter_Apply(t *testing.T) {
	counts := filterFixture()
	date := day(2024, 3, 15)

	tests := []struct {
		name   string
		filter SessionFilter
		want   []string
	}{
		{"日付のみ", SessionFilter{Date: date}, []string{"c1", "c2", "c4"}},
		{"無効化済みを含む", SessionFilter{Date: date, IncludeVoided: true}, []string{"c1", "c2", "c3", "c4"}},
		{"チーム指定", SessionFilter{Date: date, TeamID: sp("team-a")}, []string{"c1"}},
		{"空のチーム指定は全チーム", SessionFilter{Date: date, TeamID: sp("")}, []string{"c1", "c2", "c4"}},
		{"セッション選択", SessionFilter{Date: date, Selection: []string{"c2", "c5"}}, []string{"c2"}},
		{"COMBINE", SessionFilter{Date: date, Selection: []string{CombineSelection}}, []string{"c1", "c2", "c4"}},
		{"前日", SessionFilter{Date: day(2024, 3, 14)}, []string{"c5"}},
		{"未割当チーム", SessionFilter{Date: date, TeamID: sp(UnassignedTeamID)}, []string{"c4"}},
		{"日付指定なしは全日付", SessionFilter{TeamID: sp("team-a")}, []string{"c1", "c5"}},
		{"日付指定なしでも無効化済みは除外", SessionFilter{Selection: []string{"c3"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.filter.Apply(counts)))
		})
	}
}

func TestSessionFilter_ConditionsCommute(t *testing.T) {
	counts := filterFixture()
	date := day(2024, 3, 15)

	teamThenSelection := SessionFilter{Date: date, Selection: []string{"c1", "c2"}}.Apply(
		SessionFilter{Date: date, TeamID: sp("team-a")}.Apply(counts))
	selectionThenTeam := SessionFilter{Date: date, TeamID: sp("team-a")}.Apply(
		SessionFilter{Date: date, Selection: []string{"c1", "c2"}}.Apply(counts))
	combined := SessionFilter{Date: date, TeamID: sp("team-a"), Selection: []string{"c1", "c2"}}.Apply(counts)

	assert.Equal(t, ids(combined), ids(teamThenSelection))
	assert.Equal(t, ids(combined), ids(selectionThenTeam))

	// 冪等性
	assert.Equal(t, ids(combined), ids(SessionFilter{Date: date, TeamID: sp("team-a"), Selection: []string{"c1", "c2"}}.Apply(combined)))
}

func TestSameDay(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	ref := time.Date(2024, 3, 15, 0, 0, 0, 0, jst)

	assert.True(t, SameDay(ref, time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC)))
	assert.False(t, SameDay(ref, time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC)))
}
