// Package cache はフェッチ結果ページのTTL付きキャッシュを提供する。
//
// キャッシュはクエリ形状全体（コンテンツ種別フィルタ+両カテゴリのページカーソル）を
// キーとする。同一ページ番号でもカテゴリ構成が異なれば別の結果セットになるため、
// カテゴリ単独ではキーにしない。
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/watchdeck/internal/model"
)

// DefaultTTL はキャッシュエントリの既定の有効期間。
const DefaultTTL = 5 * time.Minute

// Key はクエリ形状からキャッシュキーを構築する。
// 形式: {コンテンツ種別}-movies-{映画ページ}-tv-{TVページ}
func Key(contentType model.ContentType, moviePage, tvPage int) string {
	return fmt.Sprintf("%s-movies-%d-tv-%d", contentType, moviePage, tvPage)
}

// entry はキャッシュされた1クエリ分の結果と作成時刻を保持する。
type entry struct {
	Items     []model.Item `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
}

// Store はキー付き・タイムスタンプ付きのフェッチ結果キャッシュ。
// TTLを超過したエントリは呼び出し元に返さない（次回アクセス時の遅延削除と
// 定期スイープの両方で回収される）。
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time // テスト時に差し替え可能
}

// NewStore は指定TTLのStoreを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テスト専用。
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// TTL はこのStoreのエントリ有効期間を返す。
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get はキーに対応するエントリを返す。
// エントリが存在しないか期限切れの場合は(nil, false)を返し、
// 期限切れエントリは副作用として削除する。
func (s *Store) Get(key string) ([]model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.CreatedAt) >= s.ttl {
		delete(s.entries, key)
		return nil, false
	}
	return e.Items, true
}

// Put はキーに対してエントリを現在時刻のタイムスタンプで保存する。
// 既存エントリは上書きする。
func (s *Store) Put(key string, items []model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		Items:     items,
		CreatedAt: s.now(),
	}
}

// Sweep は指定時刻を基準にTTLを超過した全エントリを削除し、削除件数を返す。
// 長時間のセッションでメモリが無制限に増加しないよう、TTLと同じ間隔で
// 定期実行されることを想定している。
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.CreatedAt) >= s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len は現在保持しているエントリ数を返す（期限切れ判定は行わない）。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// serialized はストア全体の永続化フォーマット。
type serialized struct {
	Entries map[string]entry `json:"entries"`
}

// Serialize はストア全体をテキストブロブにシリアライズする。
func (s *Store) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := json.Marshal(serialized{Entries: s.entries})
	if err != nil {
		return nil, fmt.Errorf("キャッシュのシリアライズに失敗しました: %w", err)
	}
	return blob, nil
}

// Restore はシリアライズされたブロブからストアを復元する。
// タイムスタンプが復元できないエントリ（ゼロ値）は一度もキャッシュされて
// いないものとして破棄する。復元時点でTTLを超過しているエントリも破棄する。
func (s *Store) Restore(blob []byte) error {
	var data serialized
	if err := json.Unmarshal(blob, &data); err != nil {
		return fmt.Errorf("キャッシュの復元に失敗しました: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range data.Entries {
		if e.CreatedAt.IsZero() {
			continue
		}
		if now.Sub(e.CreatedAt) >= s.ttl {
			continue
		}
		s.entries[key] = e
	}
	return nil
}
