package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shorturl-service/internal/config"
	"shorturl-service/internal/handler"
	"shorturl-service/internal/middleware"
	"shorturl-service/internal/repository"
	"shorturl-service/internal/service"
	"shorturl-service/internal/shortcode"
	"shorturl-service/pkg/database"
	auth "shorturl-service/pkg/jwt"
	"shorturl-service/pkg/logger"
	"shorturl-service/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisClient "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title 短链接服务 API
// @version 1.0
// @description 短链接创建、跳转、别名、访问上限和访问统计
// @BasePath /

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintln(os.Stderr, "配置加载失败:", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	defer func() {
		_ = logger.Logger.Sync()
	}()
	sugaredLogger := zap.S()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Infof("✅ 数据库连接成功 (%s)", cfg.Database.Driver)

	links := repository.NewLinkStore(db)
	tx := repository.NewGormTransactor(db)

	var ledger repository.VisitLedger = repository.NewVisitLedger(db)
	if cfg.Ledger.Backend == config.LedgerRedis {
		var rdb *redisClient.Client
		rdb, err = redis.NewRedisClient(&redis.Options{
			Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
		})
		if err != nil {
			sugaredLogger.Fatalf("Redis 连接失败: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
			}
		}()
		ledger = repository.NewRedisVisitLedger(rdb)
		sugaredLogger.Info("✅ 访问统计使用 Redis")
	}

	// 短码是否被占用以完整短链接判断
	generator := shortcode.NewGenerator(cfg.URL.CodeLength, func(ctx context.Context, code string) (bool, error) {
		link, err := links.FindByShortURL(ctx, cfg.URL.ShortURL(code))
		return link != nil, err
	}, sugaredLogger)
	generator.Start()
	defer generator.Stop()
	sugaredLogger.Info("✅ 短码生成器已启动")

	svc := service.NewShortURLService(links, ledger, tx, generator, cfg, sugaredLogger)

	var tokenManager *auth.TokenManager
	if cfg.Auth.Secret != "" {
		tokenManager = auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.ExpirationHours)
		sugaredLogger.Info("✅ 管理接口已启用 JWT 鉴权")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		sugaredLogger.Fatalf("可信代理配置无效: %v", err)
	}
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics())
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	if cfg.Docs.Enabled {
		router.StaticFile("/swagger-spec/openapi.yaml", cfg.Docs.Spec)
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger-spec/openapi.yaml")))
	}

	urlHandler := handler.NewShortLinkHandler(svc, sugaredLogger)
	handler.RegisterRoutes(router, urlHandler, middleware.AdminAuth(tokenManager))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		sugaredLogger.Infof("🚀 服务启动成功, 短链接前缀 %s", cfg.URL.Domain)
		if cfg.Docs.Enabled {
			sugaredLogger.Infof("📚 Swagger 文档地址: http://localhost:%d/swagger/index.html", cfg.Server.Port)
		}
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugaredLogger.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugaredLogger.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		sugaredLogger.Errorf("服务关闭失败: %v", err)
	}
	sugaredLogger.Info("服务已退出")
}
