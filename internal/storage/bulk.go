package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/LJTian/NewsHarvest/internal/export"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/sentiment"
	"github.com/jackc/pgx/v5/stdlib"
)

const stagingTable = "article_staging"

// 中间流的列：导出列 + search_term
var stagingColumns = append(append([]string(nil), sentiment.Columns...), "search_term")

const createStagingSQL = `CREATE TEMP TABLE ` + stagingTable + ` (
	id integer,
	article_title text,
	article_date date,
	source_url text,
	article_text text,
	news_source_id integer,
	negative double precision,
	positive double precision,
	search_term text
) ON COMMIT DROP`

const insertFromStagingSQL = `INSERT INTO articles
	(search_term, record_id, article_title, article_date, source_url, article_text, news_source_id, negative, positive, created_at)
SELECT search_term, id, article_title, article_date, source_url, article_text, news_source_id, negative, positive, now()
FROM ` + stagingTable + `
ON CONFLICT (search_term, source_url) DO NOTHING`

// csv 格式下未加引号的空字段会被读成 NULL，文本列必须保持空串
var notNullColumns = []string{"article_title", "source_url", "article_text", "search_term"}

// copySQL COPY 语句，分隔符与 export.Writer 一致
func copySQL(delim rune) string {
	if delim == 0 {
		delim = export.DefaultDelimiter
	}
	d := strings.ReplaceAll(string(delim), "'", "''")
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT csv, HEADER true, DELIMITER '%s', FORCE_NOT_NULL (%s))",
		stagingTable, strings.Join(stagingColumns, ", "), d, strings.Join(notNullColumns, ", "))
}

func stagingRows(term string, records []sentiment.ScoredRecord) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		row := r.Values()
		for j := range row {
			row[j] = toValidUTF8(row[j])
		}
		rows[i] = append(row, term)
	}
	return rows
}

// BulkLoad 把记录写成分隔符文本，经 COPY 进入临时表后插入 articles。
// 同一搜索词下已存在的 URL 会被跳过，返回实际插入的行数
func (s *Store) BulkLoad(ctx context.Context, term string, records []sentiment.ScoredRecord) (int64, error) {
	term = strings.TrimSpace(term)
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	if err := export.NewWriter(&buf, s.Delimiter).WriteTable(stagingColumns, stagingRows(term, records)); err != nil {
		return 0, fmt.Errorf("encode staging rows: %w", err)
	}

	sqlDB, err := s.DB.DB()
	if err != nil {
		return 0, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var inserted int64
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		tx, err := sc.Conn().Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, createStagingSQL); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}
		copied, err := tx.Conn().PgConn().CopyFrom(ctx, &buf, copySQL(s.Delimiter))
		if err != nil {
			return fmt.Errorf("copy into staging: %w", err)
		}
		tag, err := tx.Exec(ctx, insertFromStagingSQL)
		if err != nil {
			return fmt.Errorf("insert from staging: %w", err)
		}
		inserted = tag.RowsAffected()
		s.logOrNop().Debug("bulk load",
			logger.String("term", term),
			logger.Int("copied", int(copied.RowsAffected())),
			logger.Int("inserted", int(inserted)),
		)
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) logOrNop() logger.Logger {
	if s.log == nil {
		return logger.NewNop()
	}
	return s.log
}
