package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// supportsRowLock 方言是否支持 SELECT ... FOR UPDATE
// sqlite 不支持该语法，事务内的库级写锁已经足够
func supportsRowLock(db *gorm.DB) bool {
	return rowLockSupportedByDialect(dbDialectName(db))
}

func rowLockSupportedByDialect(dialect string) bool {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return true
	default:
		return false
	}
}

func likeOperatorByDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		// postgres 的 LIKE 区分大小写，检索统一用 ILIKE
		return "ILIKE"
	default:
		return "LIKE"
	}
}

// buildKeywordCondition 构建多列关键字模糊匹配条件，返回条件串与参数列表。
func buildKeywordCondition(db *gorm.DB, keyword string, columns ...string) (string, []interface{}) {
	return buildKeywordConditionByDialect(dbDialectName(db), keyword, columns...)
}

func buildKeywordConditionByDialect(dialect, keyword string, columns ...string) (string, []interface{}) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || len(columns) == 0 {
		return "", nil
	}
	operator := likeOperatorByDialect(dialect)
	like := "%" + keyword + "%"

	parts := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		trimmed := strings.TrimSpace(column)
		if trimmed == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", trimmed, operator))
		args = append(args, like)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
