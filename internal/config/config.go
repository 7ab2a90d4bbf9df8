package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
// データベース設定を保持
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// EngineConfig holds analysis engine configuration
// 分析エンジン設定を保持
type EngineConfig struct {
	FallbackUnitCost        float64 `yaml:"fallback_unit_cost"`
	TeamWindowDays          int     `yaml:"team_window_days"`
	IncludeVoidedInTeamStat bool    `yaml:"include_voided_in_team_stat"`
	BreakdownLimit          int     `yaml:"breakdown_limit"`
	FetchConcurrency        int     `yaml:"fetch_concurrency"`
	ExportWindowDays        int     `yaml:"export_window_days"`
}

// CacheConfig holds analytics cache configuration
// 分析結果キャッシュ設定を保持
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisURL      string        `yaml:"redis_url"`
	RedisHost     string        `yaml:"redis_host"`
	RedisPort     string        `yaml:"redis_port"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, ファイルパス
}

// Default returns the built-in configuration
// 既定の設定を返す
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "reconcile",
			Password:        "password",
			DBName:          "reconcile_db",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		API: APIConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
		},
		Engine: EngineConfig{
			FallbackUnitCost: reconcile.DefaultFallbackUnitCost,
			TeamWindowDays:   reconcile.DefaultTeamWindowDays,
			BreakdownLimit:   reconcile.DefaultBreakdownLimit,
			FetchConcurrency: 8,
			ExportWindowDays: 30,
		},
		Cache: CacheConfig{
			RedisHost: "127.0.0.1",
			RedisPort: "6379",
			TTL:       time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load loads configuration from .env, an optional YAML file and environment variables.
// Later sources override earlier ones.
// .env、YAMLファイル（CONFIG_FILE）、環境変数の順に設定を読み込み
func Load() (*Config, error) {
	// .envファイルは存在しない場合も許容
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}

	return cfg, nil
}

// loadFile merges a YAML file into the configuration
// YAMLファイルの内容を設定にマージ
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.API.Port = getEnvAsInt("API_PORT", c.API.Port)
	c.API.ReadTimeout = getEnvAsDuration("API_READ_TIMEOUT", c.API.ReadTimeout)
	c.API.WriteTimeout = getEnvAsDuration("API_WRITE_TIMEOUT", c.API.WriteTimeout)
	c.API.IdleTimeout = getEnvAsDuration("API_IDLE_TIMEOUT", c.API.IdleTimeout)
	c.API.EnableCORS = getEnvAsBool("API_ENABLE_CORS", c.API.EnableCORS)
	c.API.EnableMetrics = getEnvAsBool("API_ENABLE_METRICS", c.API.EnableMetrics)

	c.Engine.FallbackUnitCost = getEnvAsFloat("ENGINE_FALLBACK_UNIT_COST", c.Engine.FallbackUnitCost)
	c.Engine.TeamWindowDays = getEnvAsInt("ENGINE_TEAM_WINDOW_DAYS", c.Engine.TeamWindowDays)
	c.Engine.IncludeVoidedInTeamStat = getEnvAsBool("ENGINE_INCLUDE_VOIDED_IN_TEAM_STAT", c.Engine.IncludeVoidedInTeamStat)
	c.Engine.BreakdownLimit = getEnvAsInt("ENGINE_BREAKDOWN_LIMIT", c.Engine.BreakdownLimit)
	c.Engine.FetchConcurrency = getEnvAsInt("ENGINE_FETCH_CONCURRENCY", c.Engine.FetchConcurrency)
	c.Engine.ExportWindowDays = getEnvAsInt("ENGINE_EXPORT_WINDOW_DAYS", c.Engine.ExportWindowDays)

	c.Cache.Enabled = getEnvAsBool("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisHost = getEnv("REDIS_HOST", c.Cache.RedisHost)
	c.Cache.RedisPort = getEnv("REDIS_PORT", c.Cache.RedisPort)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvAsInt("REDIS_DB", c.Cache.RedisDB)
	c.Cache.TTL = getEnvAsDuration("CACHE_TTL", c.Cache.TTL)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LOG_OUTPUT", c.Logging.Output)
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	// データベース設定チェック
	if c.Database.Host == "" {
		return fmt.Errorf("データベースホストが指定されていません")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("無効なデータベースポート: %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("データベースユーザーが指定されていません")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("データベース名が指定されていません")
	}

	// API設定チェック
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("無効なAPIポート: %d", c.API.Port)
	}

	// エンジン設定チェック
	if c.Engine.FallbackUnitCost < 0 {
		return fmt.Errorf("フォールバック単価は0以上である必要があります: %v", c.Engine.FallbackUnitCost)
	}
	if c.Engine.TeamWindowDays < 0 {
		return fmt.Errorf("チーム集計期間は0以上である必要があります: %d", c.Engine.TeamWindowDays)
	}
	if c.Engine.FetchConcurrency <= 0 {
		return fmt.Errorf("明細取得の並列数は1以上である必要があります: %d", c.Engine.FetchConcurrency)
	}

	// キャッシュ設定チェック
	if c.Cache.Enabled && c.Cache.RedisURL == "" && c.Cache.RedisHost == "" {
		return fmt.Errorf("キャッシュが有効ですがRedisの接続先が指定されていません")
	}

	// ログ設定チェック
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("無効なログレベル: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("無効なログフォーマット: %s", c.Logging.Format)
	}

	return nil
}

// DSN generates PostgreSQL Data Source Name
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// ServiceConfig converts the engine section into the analysis service configuration
// 分析サービス用の設定に変換
func (c *Config) ServiceConfig() *reconcile.Config {
	return &reconcile.Config{
		FallbackUnitCost:        c.Engine.FallbackUnitCost,
		TeamWindowDays:          c.Engine.TeamWindowDays,
		IncludeVoidedInTeamStat: c.Engine.IncludeVoidedInTeamStat,
		BreakdownLimit:          c.Engine.BreakdownLimit,
		FetchConcurrency:        c.Engine.FetchConcurrency,
		ExportWindowDays:        c.Engine.ExportWindowDays,
	}
}

// BuildLogger builds a zap logger from the logging section
// ログ設定からzapロガーを構築
func (l LoggingConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル: %s", l.Level)
	}

	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = l.Format

	if l.Output != "" {
		zc.OutputPaths = []string{l.Output}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの構築に失敗しました: %w", err)
	}
	return logger, nil
}

// ヘルパー関数

// getEnv gets environment variable with default value
// デフォルト値付きで環境変数を取得
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
// デフォルト値付きで環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets environment variable as float64 with default value
// デフォルト値付きで環境変数を浮動小数点数として取得
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean with default value
// デフォルト値付きで環境変数をbooleanとして取得
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration with default value
// デフォルト値付きで環境変数をdurationとして取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
