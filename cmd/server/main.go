// QueKou 人力缺口分析引擎服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/quekou/quekou/internal/config"
	"github.com/quekou/quekou/internal/database"
	"github.com/quekou/quekou/internal/handler"
	"github.com/quekou/quekou/internal/metrics"
	"github.com/quekou/quekou/internal/middleware"
	"github.com/quekou/quekou/internal/repository"
	"github.com/quekou/quekou/internal/security"
	"github.com/quekou/quekou/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	// 打印版本信息
	fmt.Printf("QueKou 人力缺口分析引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	// 数据库可选：连接失败时降级为仅接受内联数据
	var (
		recordRepo *repository.RecordRepository
		resultRepo *repository.ResultRepository
	)
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Warn().Err(err).Msg("数据库连接失败，以内联数据模式启动")
	} else {
		defer db.Close()
		recordRepo = repository.NewRecordRepository(db)
		resultRepo = repository.NewResultRepository(db)
	}

	// 创建处理器
	analysisHandler := handler.NewAnalysisHandler(cfg.Analysis, recordRepo, resultRepo)
	dataHandler := handler.NewDataHandler(recordRepo, resultRepo)

	// 创建 HTTP 服务器
	mux := http.NewServeMux()

	// ========================================
	// 系统端点
	// ========================================

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Health(ctx); err != nil {
				status = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"%s","service":"quekou"}`, status)
	})

	// 版本信息端点
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// ========================================
	// API v1 端点
	// ========================================

	// API 根路由
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"message": "QueKou 人力缺口分析引擎 API v1",
			"endpoints": {
				"analysis": {
					"run": "POST /api/v1/analysis/run",
					"normalize": "POST /api/v1/analysis/normalize",
					"validate": "POST /api/v1/analysis/validate",
					"baseline": "POST /api/v1/analysis/baseline",
					"runs": "GET /api/v1/analysis/runs",
					"run_detail": "GET /api/v1/analysis/runs/{id}"
				},
				"data": {
					"import": "POST /api/v1/data/import"
				}
			}
		}`))
	})

	// 缺口分析 API
	mux.HandleFunc("/api/v1/analysis/run", analysisHandler.Run)

	// 排班规范化 API
	mux.HandleFunc("/api/v1/analysis/normalize", analysisHandler.Normalize)

	// 排班冲突检测 API
	mux.HandleFunc("/api/v1/analysis/validate", analysisHandler.Validate)

	// 需求基线估算 API
	mux.HandleFunc("/api/v1/analysis/baseline", analysisHandler.Baseline)

	// 历史运行 API
	mux.HandleFunc("/api/v1/analysis/runs", dataHandler.ListRuns)
	mux.HandleFunc("/api/v1/analysis/runs/", dataHandler.GetRun)

	// 数据导入 API
	mux.HandleFunc("/api/v1/data/import", dataHandler.Import)

	// ========================================
	// 监控端点
	// ========================================

	// Prometheus 指标端点
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// ========================================
	// 中间件
	// ========================================

	// API 密钥认证：API_KEYS 为空时以开放模式运行
	keyManager := security.NewManager()
	if cfg.API.Keys != "" {
		keys, err := security.ParseKeySpec(cfg.API.Keys)
		if err != nil {
			logger.Fatal().Err(err).Msg("API密钥配置无效")
		}
		for _, key := range keys {
			if err := keyManager.Register(key); err != nil {
				logger.Fatal().Err(err).Msg("API密钥注册失败")
			}
		}
		logger.Info().Int("keys", keyManager.Len()).Msg("API密钥认证已启用")
	}
	auth := middleware.Auth(middleware.AuthConfig{
		Manager:   keyManager,
		SkipPaths: []string{"/health", "/version", cfg.Metrics.Path},
	})

	// 中间件执行顺序：requestID -> recovery -> rateLimit -> cors -> auth -> logging -> handler
	rateLimiter := NewRateLimiter(float64(cfg.API.RateLimit))
	root := requestIDMiddleware(
		middleware.Recovery(
			rateLimitMiddleware(rateLimiter,
				corsMiddleware(
					middleware.SecurityHeaders(
						auth(loggingMiddleware(mux)))))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * cfg.API.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Str("api_docs", fmt.Sprintf("http://localhost:%d/api/v1/", cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}

// requestIDMiddleware 请求ID追踪中间件
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), "request_id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware 日志中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID, _ := r.Context().Value("request_id").(string)

		// 包装ResponseWriter以捕获状态码
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("请求处理")

		metrics.RecordRequestMetrics(r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RateLimiter 简单的令牌桶限流器
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // 每秒添加的令牌数
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 100
	}
	return &RateLimiter{
		tokens:     requestsPerSecond,
		maxTokens:  requestsPerSecond * 2, // 允许突发流量
		refillRate: requestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// rateLimitMiddleware 限流中间件
func rateLimitMiddleware(limiter *RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   true,
				"code":    "RATE_LIMITED",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware CORS中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
