package reconcile

import "time"

// CombineSelection is the selection sentinel meaning "all sessions matching date and team"
// 選択を無視し、日付・チーム条件に合う全セッションを対象とする指定
const CombineSelection = "COMBINE"

// SessionFilter selects the count sessions that take part in an analysis.
// Every consumer (metrics, item listing, charts) goes through Matches so totals agree across views.
// 分析対象セッションの選択条件（全ビュー共通の判定）
type SessionFilter struct {
	Date          time.Time // 対象日（同一暦日で判定、ゼロ値は全日付）
	TeamID        *string   // チームID（nilの場合は全チーム、unassignedはチーム未設定）
	IncludeVoided bool      // 無効化済みセッションを含める
	Selection     []string  // 選択セッションID（空またはCOMBINEで全件）
}

// Matches reports whether a session satisfies all four predicates
// 4条件すべてを満たすかを判定
func (f SessionFilter) Matches(c InventoryCount) bool {
	return f.matchesDate(c) && f.matchesTeam(c) && f.matchesVoided(c) && f.matchesSelection(c)
}

// Apply returns the sessions that match, preserving input order
func (f SessionFilter) Apply(counts []InventoryCount) []InventoryCount {
	out := make([]InventoryCount, 0, len(counts))
	for _, c := range counts {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// SameDay compares calendar days in the location of ref
// refのタイムゾーンで同一暦日かを判定
func SameDay(ref, t time.Time) bool {
	t = t.In(ref.Location())
	ry, rm, rd := ref.Date()
	ty, tm, td := t.Date()
	return ry == ty && rm == tm && rd == td
}

func (f SessionFilter) matchesDate(c InventoryCount) bool {
	return f.Date.IsZero() || SameDay(f.Date, c.CountDate)
}

func (f SessionFilter) matchesTeam(c InventoryCount) bool {
	if f.TeamID == nil || *f.TeamID == "" {
		return true
	}
	return TeamKey(c.TeamID) == *f.TeamID
}

func (f SessionFilter) matchesVoided(c InventoryCount) bool {
	return f.IncludeVoided || !c.IsVoided
}

func (f SessionFilter) matchesSelection(c InventoryCount) bool {
	if len(f.Selection) == 0 {
		return true
	}
	for _, id := range f.Selection {
		if id == CombineSelection || id == c.ID {
			return true
		}
	}
	return false
}
