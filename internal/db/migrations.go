// internal/db/migrations.go
package db

import (
	"fmt"

	"gorm.io/gorm"
)

// tokenIndexStatement — DDL уникальности old_token для диалекта. Пустая строка —
// диалекту хватает unique-индекса, который AutoMigrate создаёт из тега модели.
func tokenIndexStatement(dialect string) (string, error) {
	switch dialect {
	case "mysql":
		// NULL-значения в unique-индексе MySQL не конфликтуют; индекс из тега
		// модели достаточен, дублировать его руками не нужно
		return "", nil

	case "postgres":
		return `CREATE UNIQUE INDEX IF NOT EXISTS ux_users_old_token ON "users" ("old_token") WHERE "old_token" IS NOT NULL`, nil

	case "sqlite":
		return `CREATE UNIQUE INDEX IF NOT EXISTS ux_users_old_token ON users (old_token) WHERE old_token IS NOT NULL`, nil

	default:
		return "", fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// MigrateTokenIndexes — partial unique index на old_token поверх AutoMigrate
// там, где он нужен (уникальность только для не-NULL значений).
func MigrateTokenIndexes(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	stmt, err := tokenIndexStatement(db.Dialector.Name())
	if err != nil || stmt == "" {
		return err
	}
	return db.Exec(stmt).Error
}
