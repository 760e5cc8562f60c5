package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewsSource 描述一个新闻来源，ID 与记录中的 news_source_id 一致
type NewsSource struct {
	ID      uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Code    string `gorm:"size:64;uniqueIndex" json:"code"` // 例如: bbc, guardian
	Name    string `gorm:"size:128" json:"name"`
	BaseURL string `gorm:"size:256" json:"baseUrl"`
	Status  string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Article 一条入库的文章；同一搜索词下按 URL 幂等
type Article struct {
	ID           uint           `gorm:"primaryKey" json:"pk"`
	SearchTerm   string         `gorm:"size:256;not null;uniqueIndex:idx_term_url,priority:1" json:"searchTerm"`
	RecordID     int            `json:"id"`
	ArticleTitle string         `gorm:"size:1024;not null" json:"articleTitle"`
	ArticleDate  datatypes.Date `gorm:"index" json:"articleDate"`
	SourceURL    string         `gorm:"size:1024;not null;uniqueIndex:idx_term_url,priority:2" json:"sourceUrl"`
	ArticleText  string         `gorm:"type:text;not null" json:"articleText"`
	NewsSourceID int            `gorm:"index" json:"newsSourceId"`
	Negative     float64        `json:"negative"`
	Positive     float64        `json:"positive"`

	CreatedAt time.Time `json:"createdAt"`
}

const (
	listCacheTTL     = 5 * time.Minute
	defaultListLimit = 20
	maxListLimit     = 1000
)

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Delimiter BulkLoad 中间流使用的分隔符
	Delimiter rune

	log logger.Logger
}

func NewStore(dsn, redisAddr string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&NewsSource{}, &Article{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed", logger.String("addr", redisAddr), logger.Error(err))
	}

	return &Store{DB: db, Redis: rdb, Delimiter: '|', log: log}, nil
}

// EnsureSource 确保某个新闻来源存在
func (s *Store) EnsureSource(id int, code, name, baseURL string) (*NewsSource, error) {
	src := &NewsSource{}
	if err := s.DB.Where("code = ?", code).First(src).Error; err == nil {
		return src, nil
	}

	src = &NewsSource{
		ID:      uint(id),
		Code:    code,
		Name:    name,
		BaseURL: baseURL,
		Status:  "active",
	}
	if err := s.DB.Create(src).Error; err != nil {
		return nil, err
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]NewsSource, error) {
	var list []NewsSource
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func listCacheKey(term, source string, limit int) string {
	return fmt.Sprintf("articles:list:%s:%s:%d", strings.TrimSpace(term), source, limit)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

// ListArticles 按搜索词与来源 code 返回文章，均可为空；结果缓存 5 分钟
func (s *Store) ListArticles(ctx context.Context, term, source string, limit int) ([]Article, error) {
	limit = clampLimit(limit)
	cacheKey := listCacheKey(term, source, limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Article
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	db := s.DB.WithContext(ctx).Model(&Article{})
	if term = strings.TrimSpace(term); term != "" {
		db = db.Where("search_term = ?", term)
	}
	if source != "" {
		db = db.Where("news_source_id = (?)", s.DB.Model(&NewsSource{}).Select("id").Where("code = ?", source))
	}

	var list []Article
	if err := db.Order("article_date DESC").Order("record_id ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}
