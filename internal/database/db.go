// Package database はローカルデータベース接続とマイグレーション管理を提供する。
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// dbFileName はローカルデータベースのファイル名。
const dbFileName = "watchdeck.db"

// Open はdataPath配下のSQLiteデータベース接続を開く。
// ディレクトリが存在しない場合は作成する。
// SQLiteはファイルローカルな単一ユーザーストアであり、同時書き込みを
// 前提としないため、接続数は1に制限する。
func Open(dataPath string) (*sql.DB, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("データディレクトリの作成に失敗しました: %w", err)
	}

	db, err := sql.Open("sqlite3", DSN(dataPath))
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗しました: %w", err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

// DSN はdataPathからSQLite接続文字列を構築する。
func DSN(dataPath string) string {
	return filepath.Join(dataPath, dbFileName) + "?_busy_timeout=5000&_foreign_keys=on"
}
