package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStateRepo はSQLiteを使用した状態リポジトリ。
type SQLiteStateRepo struct {
	db *sql.DB
}

// NewSQLiteStateRepo はSQLiteStateRepoを生成する。
func NewSQLiteStateRepo(db *sql.DB) *SQLiteStateRepo {
	return &SQLiteStateRepo{db: db}
}

// Get は指定キーのエントリを取得する。存在しない場合は("", false, nil)を返す。
func (r *SQLiteStateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM local_state WHERE key = ?`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("状態エントリの取得に失敗しました: %w", err)
	}

	return value, true, nil
}

// Set は指定キーにエントリを冪等にUPSERTする。
func (r *SQLiteStateRepo) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_state (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
		     value = excluded.value,
		     updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("状態エントリの保存に失敗しました: %w", err)
	}

	return nil
}

// Delete は指定キーのエントリを削除する。冪等: 存在しない場合でもエラーにならない。
func (r *SQLiteStateRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM local_state WHERE key = ?`,
		key,
	)
	if err != nil {
		return fmt.Errorf("状態エントリの削除に失敗しました: %w", err)
	}

	return nil
}
