// Package annotation はアイテムへのローカル注釈（レーティングとコメント）を管理する。
//
// 注釈はサーバーへ送信されず、ユーザーのローカルストレージにのみ永続化される。
// レーティングは即時に永続化し、コメントは連続入力の揺れを吸収するため
// デバウンス後にサニタイズして永続化する。
package annotation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/watchdeck/internal/model"
	"github.com/hitoshi/watchdeck/internal/repository"
	"github.com/hitoshi/watchdeck/internal/security"
)

// DefaultDebounce はコメント永続化の既定のデバウンス間隔。
const DefaultDebounce = 300 * time.Millisecond

// Store はアイテムID別の注釈を保持し、ローカルストレージと同期する。
type Store struct {
	repo     repository.StateRepository
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	ratings  map[string]model.Rating
	comments map[string]string
	timers   map[string]*time.Timer
	closed   bool
}

// NewStore はStoreの新しいインスタンスを生成する。
// debounceが0以下の場合はDefaultDebounceを使用する。
func NewStore(repo repository.StateRepository, logger *slog.Logger, debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Store{
		repo:     repo,
		logger:   logger,
		debounce: debounce,
		ratings:  make(map[string]model.Rating),
		comments: make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
}

// Load は永続化済みの注釈マップを復元する。
// 形式検証に失敗したエントリは空の状態にフォールバックし、ストレージから削除する。
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.repo.Get(ctx, repository.KeyRatings)
	if err != nil {
		return err
	}
	if ok {
		if m, valid := security.RestoreIfValid(raw, security.ValidateRatingMap, s.logger); valid {
			s.mu.Lock()
			for id, v := range m {
				if r := model.Rating(v); r != model.RatingUnrated {
					s.ratings[id] = r
				}
			}
			s.mu.Unlock()
		} else {
			_ = s.repo.Delete(ctx, repository.KeyRatings)
		}
	}

	raw, ok, err = s.repo.Get(ctx, repository.KeyComments)
	if err != nil {
		return err
	}
	if ok {
		if m, valid := security.RestoreIfValid(raw, security.ValidateCommentMap, s.logger); valid {
			s.mu.Lock()
			for id, text := range m {
				if text != "" {
					s.comments[id] = text
				}
			}
			s.mu.Unlock()
		} else {
			_ = s.repo.Delete(ctx, repository.KeyComments)
		}
	}

	return nil
}

// SetRating はアイテムのレーティングを設定して即時に永続化する。
// RatingUnrated（空文字列）の設定はエントリの削除を意味する。
// 同一アイテムへの連続設定は最後の値が勝つ。
func (s *Store) SetRating(ctx context.Context, itemID string, rating model.Rating) error {
	if !rating.Valid() {
		return model.NewValidationError("不正なレーティングタグです: " + string(rating))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if rating == model.RatingUnrated {
		delete(s.ratings, itemID)
	} else {
		s.ratings[itemID] = rating
	}

	return s.persistRatingsLocked(ctx)
}

// SetComment はアイテムのコメントを設定する。設定値はメモリ上と永続化の両方に
// 即時反映され、デバウンス間隔の経過後に正規化（トリム・切り詰め）パスが
// 保存値を引き直す。デバウンス中の再設定は待機中の正規化を破棄して間隔を
// 引き直す（アイテム単位のデバウンス）。
func (s *Store) SetComment(ctx context.Context, itemID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if text == "" {
		delete(s.comments, itemID)
	} else {
		s.comments[itemID] = text
	}
	if t, ok := s.timers[itemID]; ok {
		t.Stop()
	}
	s.timers[itemID] = time.AfterFunc(s.debounce, func() {
		s.flushComment(ctx, itemID)
	})

	if err := s.persistCommentsLocked(ctx); err != nil {
		s.logger.Warn("コメントの保存に失敗しました",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}

// flushComment はデバウンス満了後のコメントを正規化して永続化し直す。
// Timer.Stopは実行開始済みのコールバックを止められないため、
// Closeとの競合はロック下のclosed判定で打ち切る。Close後は何も書き込まない。
func (s *Store) flushComment(ctx context.Context, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	delete(s.timers, itemID)
	if text, ok := s.comments[itemID]; ok {
		sanitized := security.SanitizeText(text)
		if sanitized == "" {
			delete(s.comments, itemID)
		} else {
			s.comments[itemID] = sanitized
		}
	}

	if err := s.persistCommentsLocked(ctx); err != nil {
		s.logger.Warn("コメントの保存に失敗しました",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}

// Annotation はアイテムに紐づく注釈を返す。
// 未評価・コメント未設定のフィールドはゼロ値のまま返す。
func (s *Store) Annotation(itemID string) model.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Annotation{
		ItemID:  itemID,
		Rating:  s.ratings[itemID],
		Comment: s.comments[itemID],
	}
}

// Rating はアイテムのレーティングを返す。未評価の場合はRatingUnrated。
func (s *Store) Rating(itemID string) model.Rating {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratings[itemID]
}

// Comment はアイテムのコメントを返す。未設定の場合は空文字列。
func (s *Store) Comment(itemID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments[itemID]
}

// RatingMap は全レーティングのコピーを返す。
func (s *Store) RatingMap() map[string]model.Rating {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]model.Rating, len(s.ratings))
	for id, r := range s.ratings {
		m[id] = r
	}
	return m
}

// CommentMap は全コメントのコピーを返す。
func (s *Store) CommentMap() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]string, len(s.comments))
	for id, text := range s.comments {
		m[id] = text
	}
	return m
}

// Close は待機中の全デバウンスタイマーを停止し、コメントを即時に永続化する。
// 永続化はロックを保持したまま行うため、実行中のデバウンスコールバックがあれば
// その完了を待ってからクローズする。Closeの復帰後に書き込みは発生しない。
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	pending := len(s.timers) > 0
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	for id, text := range s.comments {
		s.comments[id] = security.SanitizeText(text)
	}

	if pending {
		return s.persistCommentsLocked(ctx)
	}
	return nil
}

// persistRatingsLocked はレーティングマップをJSONとして永続化する。
// 呼び出し元がs.muを保持していること。
func (s *Store) persistRatingsLocked(ctx context.Context) error {
	m := make(map[string]string, len(s.ratings))
	for id, r := range s.ratings {
		m[id] = string(r)
	}

	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, repository.KeyRatings, string(blob))
}

// persistCommentsLocked はコメントマップをJSONとして永続化する。
// 呼び出し元がs.muを保持していること。
func (s *Store) persistCommentsLocked(ctx context.Context) error {
	m := make(map[string]string, len(s.comments))
	for id, text := range s.comments {
		m[id] = text
	}

	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, repository.KeyComments, string(blob))
}
