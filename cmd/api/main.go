package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NewsHarvest/internal/api"
	"github.com/LJTian/NewsHarvest/internal/config"
	"github.com/LJTian/NewsHarvest/internal/harvest"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/scheduler"
	"github.com/LJTian/NewsHarvest/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel)
	defer log.Sync()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log)
	if err != nil {
		log.Fatal("init store failed", logger.Error(err))
	}
	store.Delimiter = cfg.BulkDelimiter

	// 确保各个数据源存在
	if err := harvest.RegisterSources(store, harvest.SourceConfig(cfg, nil)); err != nil {
		log.Fatal("register sources failed", logger.Error(err))
	}

	svc, err := harvest.FromConfig(cfg, harvest.Deps{
		Loader:    store,
		PageCache: store.PageCache(),
		Logger:    log,
	})
	if err != nil {
		log.Fatal("init harvest service failed", logger.Error(err))
	}

	// 定时任务来自 CRON_JOBS；为空时只提供查询与手动触发
	jobs, err := config.ParseJobs(cfg.CronJobs)
	if err != nil {
		log.Fatal("parse CRON_JOBS failed", logger.Error(err))
	}
	s, err := scheduler.New(cfg.CronSpec, jobs, svc, log)
	if err != nil {
		log.Fatal("init scheduler failed", logger.Error(err))
	}
	s.Start()

	// API
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(store, svc, log)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}
	go func() {
		log.Info("starting api server", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server exit", logger.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", logger.Error(err))
	}
	select {
	case <-s.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("harvest round still running at exit")
	}
}

// basicAuthMiddleware 为整个站点增加一个简单的 Basic Auth 访问密码。
// 仅当配置了 APP_BASIC_USER / APP_BASIC_PASS 时启用。
// /health 不做认证，便于健康检查。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
