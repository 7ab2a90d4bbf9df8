package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReconcile/internal/config"
)

// migration is one SQL file on disk
type migration struct {
	Filename string
	Path     string
	Content  []byte
	Checksum string
}

// appliedMigration is a row of schema_migrations
type appliedMigration struct {
	Filename string `db:"filename"`
	Checksum string `db:"checksum"`
}

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	logger.Info("zaiReconcile マイグレーション実行ツール")

	// データベース接続
	logger.Info("データベースに接続中",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)

	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// 接続テスト
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("データベースpingに失敗しました", zap.Error(err))
	}

	// マイグレーションディレクトリの確認
	migrationDir := "migrations"
	if len(os.Args) > 1 {
		migrationDir = os.Args[1]
	}

	if _, err := os.Stat(migrationDir); os.IsNotExist(err) {
		logger.Fatal("マイグレーションディレクトリが見つかりません", zap.String("dir", migrationDir))
	}

	// マイグレーション履歴テーブルの作成
	if err := createMigrationTable(ctx, db); err != nil {
		logger.Fatal("マイグレーション履歴テーブル作成に失敗しました", zap.Error(err))
	}

	migrations, err := loadMigrations(migrationDir)
	if err != nil {
		logger.Fatal("マイグレーションファイル読み込みに失敗しました", zap.Error(err))
	}

	// マイグレーション実行
	applied, err := runMigrations(ctx, db, migrations, logger)
	if err != nil {
		logger.Fatal("マイグレーション実行に失敗しました", zap.Error(err))
	}

	logger.Info("すべてのマイグレーションが完了しました", zap.Int("applied", applied))
}

// createMigrationTable マイグレーション履歴テーブルを作成
func createMigrationTable(ctx context.Context, db *sqlx.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) NOT NULL UNIQUE,
			executed_at TIMESTAMP NOT NULL DEFAULT NOW(),
			checksum VARCHAR(64) NOT NULL
		)`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("マイグレーション履歴テーブル作成エラー: %w", err)
	}
	return nil
}

// loadMigrations reads the *.sql files of dir sorted by filename
func loadMigrations(dir string) ([]migration, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("マイグレーションファイル検索エラー: %w", err)
	}
	sort.Strings(files)

	migrations := make([]migration, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("ファイル読み込みエラー %s: %w", file, err)
		}
		migrations = append(migrations, migration{
			Filename: filepath.Base(file),
			Path:     file,
			Content:  content,
			Checksum: calculateChecksum(content),
		})
	}
	return migrations, nil
}

// runMigrations マイグレーションを実行し、適用件数を返す
func runMigrations(ctx context.Context, db *sqlx.DB, migrations []migration, logger *zap.Logger) (int, error) {
	if len(migrations) == 0 {
		logger.Info("マイグレーションファイルが見つかりません")
		return 0, nil
	}

	filenames := make([]string, len(migrations))
	for i, m := range migrations {
		filenames[i] = m.Filename
	}

	// 実行済みマイグレーションを取得
	executed, err := getExecutedMigrations(ctx, db, filenames)
	if err != nil {
		return 0, fmt.Errorf("実行済みマイグレーション取得エラー: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if checksum, ok := executed[m.Filename]; ok {
			if checksum != m.Checksum {
				logger.Warn("実行済みマイグレーションの内容が変更されています",
					zap.String("filename", m.Filename),
					zap.String("recorded", checksum),
					zap.String("current", m.Checksum),
				)
			}
			logger.Debug("スキップ (実行済み)", zap.String("filename", m.Filename))
			continue
		}

		logger.Info("実行中", zap.String("filename", m.Filename))
		if err := applyMigration(ctx, db, m); err != nil {
			return applied, err
		}
		applied++
		logger.Info("完了", zap.String("filename", m.Filename))
	}

	return applied, nil
}

func applyMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始エラー %s: %w", m.Filename, err)
	}

	if _, err := tx.ExecContext(ctx, string(m.Content)); err != nil {
		tx.Rollback()
		return fmt.Errorf("マイグレーション実行エラー %s: %w", m.Filename, err)
	}

	// マイグレーション履歴に記録
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename, checksum) VALUES ($1, $2)",
		m.Filename, m.Checksum,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("マイグレーション履歴記録エラー %s: %w", m.Filename, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットエラー %s: %w", m.Filename, err)
	}
	return nil
}

// getExecutedMigrations returns filename -> checksum for the given files already applied
func getExecutedMigrations(ctx context.Context, db *sqlx.DB, filenames []string) (map[string]string, error) {
	var rows []appliedMigration
	if err := db.SelectContext(ctx, &rows,
		"SELECT filename, checksum FROM schema_migrations WHERE filename = ANY($1)",
		pq.Array(filenames),
	); err != nil {
		return nil, err
	}

	executed := make(map[string]string, len(rows))
	for _, r := range rows {
		executed[r.Filename] = r.Checksum
	}
	return executed, nil
}

// calculateChecksum ファイル内容のSHA-256チェックサムを計算
func calculateChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
