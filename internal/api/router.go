package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/harvest"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/pipeline"
	"github.com/LJTian/NewsHarvest/internal/storage"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// Store 查询接口，storage.Store 满足
type Store interface {
	ListSources(ctx context.Context) ([]storage.NewsSource, error)
	ListArticles(ctx context.Context, term, source string, limit int) ([]storage.Article, error)
	Ping(ctx context.Context) error
}

type Harvester interface {
	Harvest(ctx context.Context, task harvest.Task) (*harvest.Result, error)
}

type Server struct {
	store     Store
	harvester Harvester
	log       logger.Logger
}

func NewServer(store Store, h Harvester, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{store: store, harvester: h, log: log}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sources", s.listSources)
		v1.GET("/articles", s.listArticles)
		v1.POST("/harvest", s.harvest)
	}
}

// health 数据库或 Redis 不可用时返回 503，status 为 degraded
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listSources(c *gin.Context) {
	items, err := s.store.ListSources(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) listArticles(c *gin.Context) {
	term := c.Query("term")
	source := c.Query("source")
	if source != "" {
		kind, err := collector.ParseKind(source)
		if err != nil {
			badRequest(c, err)
			return
		}
		source = string(kind)
	}

	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.ListArticles(c.Request.Context(), term, source, limit)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

type harvestRequest struct {
	Term   string `json:"term"`
	Source string `json:"source"`
	Pages  []int  `json:"pages"`
	Save   bool   `json:"save"`
}

// harvest 同步执行一次采集。输入错误 400，数据源整体不可用 502
func (s *Server) harvest(c *gin.Context) {
	var body harvestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if len(body.Pages) == 0 {
		body.Pages = []int{1}
	}

	task := harvest.Task{
		Request: pipeline.Request{Term: body.Term, Kind: collector.Kind(body.Source), Pages: body.Pages},
		Save:    body.Save,
	}
	if kind, err := collector.ParseKind(body.Source); err == nil {
		task.Kind = kind
	}

	res, err := s.harvester.Harvest(c.Request.Context(), task)
	if err != nil {
		var runErr *pipeline.RunError
		var pageErr *collector.InvalidPageError
		switch {
		case errors.As(err, &runErr):
			s.log.Warn("harvest request failed", logger.String("term", body.Term), logger.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{
				"code":    "source_unavailable",
				"message": err.Error(),
			})
		case errors.As(err, &pageErr),
			errors.Is(err, pipeline.ErrEmptyTerm),
			errors.Is(err, pipeline.ErrNoPages),
			errors.Is(err, collector.ErrUnknownSource):
			badRequest(c, err)
		case errors.Is(err, collector.ErrMissingAPIKey):
			s.log.Error("harvest source not configured", logger.String("source", string(task.Kind)), logger.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":    "source_not_configured",
				"message": err.Error(),
			})
		default:
			s.internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    res,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "bad_request",
		"message": err.Error(),
	})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request failed", logger.String("path", c.FullPath()), logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}
