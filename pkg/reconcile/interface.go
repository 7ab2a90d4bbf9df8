package reconcile

import (
	"context"
	"time"
)

// Store defines the external store the engine reads its source records from
// 棚卸元データを提供する外部ストアのインターフェースを定義
type Store interface {
	// 棚卸セッション - Count sessions
	ListCounts(ctx context.Context, organizationID string, dateRange DateRange, teamID *string) ([]InventoryCount, error)
	ListCountItems(ctx context.Context, countID string) ([]InventoryCountItem, error)

	// マスタデータ - Master data
	ListItems(ctx context.Context, organizationID string) ([]InventoryItem, error)
	ListTeams(ctx context.Context, organizationID string) ([]Team, error)

	// 在庫移動 - Stock transactions
	ListTransactions(ctx context.Context, organizationID string, dateRange DateRange) ([]Transaction, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Analyzer defines the caller-facing analysis operations
// 呼び出し側に公開する分析操作のインターフェースを定義
type Analyzer interface {
	DailyMetrics(ctx context.Context, req DailyRequest) (*DailyResult, error)
	EnhancedAnalytics(ctx context.Context, req AnalyticsRequest) (*EnhancedResult, error)
	Export(ctx context.Context, req ExportRequest) (*Export, error)
	Ping(ctx context.Context) error
}

// Recorder receives operational measurements from the service
// サービスの計測値を受け取るインターフェース
type Recorder interface {
	ObserveAnalysis(operation string, duration time.Duration, err error)
	AddEnrichedItems(n int)
	AddMissingReferences(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAnalysis(string, time.Duration, error) {}
func (nopRecorder) AddEnrichedItems(int)                         {}
func (nopRecorder) AddMissingReferences(int)                     {}

// Clock returns the current time; injected so analyses are reproducible
type Clock func() time.Time
