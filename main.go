package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/handler"
	"github.com/TIANLI0/MaskKit/middleware"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting MaskKit server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	cache := newCache(cfg)
	defer cache.Close()

	fetcher := service.NewHTTPFetcher(&cfg.Fetch)
	pipeline := service.NewPipeline(&cfg.Pipeline, fetcher)

	// 初始化Handler
	maskHandler := handler.NewMaskHandler(cfg, cache, pipeline)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := handler.NewRouter(maskHandler, handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		BuildID:   BuildID,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	}, middleware.Logger(), middleware.CORS())

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}

// newCache 优先使用 Redis，连接失败时退回进程内缓存
func newCache(cfg *config.Config) service.ResultCache {
	if !cfg.Redis.Enabled {
		utils.Logger.Info("redis disabled, using in-memory cache")
		return service.NewMemoryCache(cfg.Redis.TTL)
	}

	redisCache := service.NewRedisCache(&cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, using in-memory cache", zap.Error(err))
		_ = redisCache.Close()
		return service.NewMemoryCache(cfg.Redis.TTL)
	}

	utils.Logger.Info("redis connected successfully")
	return redisCache
}
