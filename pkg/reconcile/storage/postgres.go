package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
)

// PostgreSQLStore implements the reconcile.Store interface using PostgreSQL
// PostgreSQLを使用したStoreインターフェースの実装
type PostgreSQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// reconcile.Storeを実装することを明示
var _ reconcile.Store = (*PostgreSQLStore)(nil)

// PoolConfig holds connection pool settings
// 接続プール設定
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgreSQLStore creates a new PostgreSQL store instance
// 新しいPostgreSQLストアインスタンスを作成
func NewPostgreSQLStore(dsn string, pool PoolConfig, logger *zap.Logger) (*PostgreSQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 10
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return NewPostgreSQLStoreFromDB(db, logger), nil
}

// NewPostgreSQLStoreFromDB wraps an existing connection
func NewPostgreSQLStoreFromDB(db *sqlx.DB, logger *zap.Logger) *PostgreSQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStore{db: db, logger: logger}
}

// ListCounts lists the count sessions of an organization within a date range
// 期間内の棚卸セッション一覧を取得
func (s *PostgreSQLStore) ListCounts(ctx context.Context, organizationID string, dateRange reconcile.DateRange, teamID *string) ([]reconcile.InventoryCount, error) {
	query := `
		SELECT id, team_id, count_date, status, is_voided, total_items_count, variance_count,
		       created_at, updated_at, COALESCE(notes, '') AS notes
		FROM inventory_counts
		WHERE organization_id = $1
		  AND count_date BETWEEN $2 AND $3
		  AND ($4::text IS NULL OR team_id = $4)
		ORDER BY count_date DESC, created_at DESC, id`

	var counts []reconcile.InventoryCount
	if err := s.db.SelectContext(ctx, &counts, query, organizationID, dateRange.From, dateRange.To, teamID); err != nil {
		return nil, fmt.Errorf("棚卸セッション一覧取得に失敗しました: %w", err)
	}

	s.logger.Debug("棚卸セッションを取得しました",
		zap.String("organization_id", organizationID),
		zap.Int("count", len(counts)),
	)
	return counts, nil
}

// ListCountItems lists the line items of a count session
// 棚卸セッションの明細一覧を取得
func (s *PostgreSQLStore) ListCountItems(ctx context.Context, countID string) ([]reconcile.InventoryCountItem, error) {
	query := `
		SELECT id, count_id, item_id, actual_quantity, in_stock_quantity, counted_at,
		       COALESCE(counted_by, '') AS counted_by, COALESCE(notes, '') AS notes
		FROM inventory_count_items
		WHERE count_id = $1
		ORDER BY id`

	var items []reconcile.InventoryCountItem
	if err := s.db.SelectContext(ctx, &items, query, countID); err != nil {
		return nil, fmt.Errorf("棚卸明細取得に失敗しました: %w", err)
	}
	return items, nil
}

// ListItems lists the item master of an organization
// 商品マスタ一覧を取得
func (s *PostgreSQLStore) ListItems(ctx context.Context, organizationID string) ([]reconcile.InventoryItem, error) {
	query := `
		SELECT i.id, COALESCE(i.sku, '') AS sku, i.name,
		       COALESCE(c.name, '') AS category_name,
		       COALESCE(u.name, '') AS unit_of_measure,
		       i.unit_cost, i.purchase_price, i.current_stock,
		       i.minimum_threshold, i.maximum_threshold,
		       COALESCE(i.location, '') AS location
		FROM inventory_items i
		LEFT JOIN inventory_categories c ON c.id = i.category_id
		LEFT JOIN inventory_units u ON u.id = i.base_unit_id
		WHERE i.organization_id = $1
		ORDER BY i.name`

	var items []reconcile.InventoryItem
	if err := s.db.SelectContext(ctx, &items, query, organizationID); err != nil {
		return nil, fmt.Errorf("商品一覧取得に失敗しました: %w", err)
	}
	return items, nil
}

// ListTeams lists the team directory of an organization
// チーム一覧を取得
func (s *PostgreSQLStore) ListTeams(ctx context.Context, organizationID string) ([]reconcile.Team, error) {
	query := `
		SELECT id, name
		FROM teams
		WHERE organization_id = $1
		ORDER BY name`

	var teams []reconcile.Team
	if err := s.db.SelectContext(ctx, &teams, query, organizationID); err != nil {
		return nil, fmt.Errorf("チーム一覧取得に失敗しました: %w", err)
	}
	return teams, nil
}

// ListTransactions lists stock movements within a date range
// 期間内の在庫移動履歴を取得
func (s *PostgreSQLStore) ListTransactions(ctx context.Context, organizationID string, dateRange reconcile.DateRange) ([]reconcile.Transaction, error) {
	query := `
		SELECT id, item_id, team_id, transaction_type, quantity,
		       COALESCE(unit_cost, 0) AS unit_cost, transaction_date
		FROM inventory_transactions
		WHERE organization_id = $1
		  AND transaction_date BETWEEN $2 AND $3
		ORDER BY transaction_date DESC`

	var txs []reconcile.Transaction
	if err := s.db.SelectContext(ctx, &txs, query, organizationID, dateRange.From, dateRange.To); err != nil {
		return nil, fmt.Errorf("在庫移動履歴取得に失敗しました: %w", err)
	}
	return txs, nil
}

// Ping checks the database connection
// データベース接続を確認
func (s *PostgreSQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}
