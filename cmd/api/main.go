package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReconcile/internal/cache"
	"github.com/nemonet1337/zaiReconcile/internal/config"
	"github.com/nemonet1337/zaiReconcile/internal/metrics"
	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
	"github.com/nemonet1337/zaiReconcile/pkg/reconcile/storage"
)

type contextKey string

const requestIDKey contextKey = "request_id"

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// データベース接続
	store, err := storage.NewPostgreSQLStore(cfg.DSN(), storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// 分析サービス初期化
	collector := metrics.NewCollector()
	service := reconcile.NewService(store, collector, logger, cfg.ServiceConfig())

	analyticsCache, err := cache.NewAnalyticsCache(cfg.Cache)
	if err != nil {
		logger.Warn("キャッシュを無効化して起動します", zap.Error(err))
		analyticsCache = cache.NewNoopAnalyticsCache()
	}
	defer analyticsCache.Close()

	var metricsHandler http.Handler
	if cfg.API.EnableMetrics {
		metricsHandler = collector.Handler()
	}

	// HTTPハンドラー設定
	handlers := NewHandlers(service, analyticsCache, metricsHandler, logger)
	router := setupRouter(handlers, cfg.API.EnableCORS)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("棚卸分析APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// setupRouter sets up HTTP routes.
// CORS wraps the whole router so preflight requests are answered before method matching.
// HTTPルートを設定
func setupRouter(handlers *Handlers, enableCORS bool) http.Handler {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/metrics", handlers.Metrics).Methods("GET")

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()
	org := api.PathPrefix("/organizations/{orgId}").Subrouter()

	// 棚卸分析
	org.HandleFunc("/daily-metrics", handlers.DailyMetrics).Methods("GET")
	org.HandleFunc("/analytics", handlers.Analytics).Methods("GET")

	// エクスポート
	org.HandleFunc("/exports", handlers.CreateExport).Methods("POST")

	// キャッシュ管理
	org.HandleFunc("/cache", handlers.InvalidateCache).Methods("DELETE")

	router.Use(requestIDMiddleware)

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	// CORS設定
	if enableCORS {
		return corsMiddleware(router)
	}
	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware propagates X-Request-ID, generating one when absent
// リクエストIDを付与するミドルウェア
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// リクエスト処理
			next.ServeHTTP(rec, r)

			requestID, _ := r.Context().Value(requestIDKey).(string)
			if requestID == "" {
				requestID = rec.Header().Get("X-Request-ID")
			}

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.Int("status", rec.status),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
