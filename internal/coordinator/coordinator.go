// Package coordinator はリモートカタログへのリクエスト発行を調停する。
//
// バッチ間の最小間隔の強制（レート制限）、単調増加のリクエストエポックの発行、
// 協調的キャンセルを提供する。エポックは後続の呼び出しに追い越された
// レスポンスを検出して破棄するための仕組みで、呼び出し元（集約層）が
// 開始時に捕捉した値とコミット時の現在値を比較して判定する。
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/watchdeck/internal/model"
)

const (
	// errorBodyExcerptLen はエラーボディがJSONとしてパースできない場合に
	// メッセージへ含める先頭の文字数。
	errorBodyExcerptLen = 100
	// userAgent は外部リクエストのUser-Agentヘッダ。
	userAgent = "Watchdeck/1.0 Catalog Browser"
)

// MetricsRecorder はバッチ実行のメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordBatchSuccess()
	RecordBatchFailure()
	RecordHTTPStatus(statusCode int)
	RecordBatchLatency(duration time.Duration)
}

// Coordinator はカテゴリ/ページ単位のフェッチバッチを発行する。
// 直前のバッチからMinInterval以上経過していない場合、残り時間だけ
// バッチ全体の発行を遅延させる（バッチ間隔のみを保証する単純な
// レートリミッタであり、リクエスト単位のトークンバケットではない）。
type Coordinator struct {
	client      *http.Client
	limiter     *rate.Limiter
	token       string
	maxBodySize int64
	logger      *slog.Logger
	metrics     MetricsRecorder
	epoch       atomic.Int64
}

// New はCoordinatorの新しいインスタンスを生成する。
// minIntervalはバッチ間の最小間隔、tokenはBearerアクセストークンを指定する。
func New(
	client *http.Client,
	minInterval time.Duration,
	token string,
	maxBodySize int64,
	logger *slog.Logger,
	metrics MetricsRecorder,
) *Coordinator {
	return &Coordinator{
		client:      client,
		limiter:     rate.NewLimiter(rate.Every(minInterval), 1),
		token:       token,
		maxBodySize: maxBodySize,
		logger:      logger,
		metrics:     metrics,
	}
}

// NextEpoch は新しいリクエストエポックを発行する。
// フェッチ操作の開始時に呼び出し、返り値を操作の完了まで保持すること。
func (c *Coordinator) NextEpoch() int64 {
	return c.epoch.Add(1)
}

// CurrentEpoch は現在のリクエストエポックを返す。
// 捕捉済みのエポックと一致しない場合、そのレスポンスは陳腐化しており
// 破棄しなければならない（エラーではなく静かに捨てる）。
func (c *Coordinator) CurrentEpoch() int64 {
	return c.epoch.Load()
}

// Schedule はurlsの全リクエストを1バッチとして並行発行し、
// urlsと同じ順序でレスポンスボディを返す。
//
// 発行前にバッチ間の最小間隔を強制する。バッチ内のいずれかが非成功
// ステータスを返した場合はバッチ全体を失敗とし、部分適用はしない。
// コンテキストのキャンセル時は進行中の全リクエストを中断し、部分結果を
// 破棄してAbortedエラーを返す（ユーザー可視のエラーにしてはならない）。
func (c *Coordinator) Schedule(ctx context.Context, urls []string) ([][]byte, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	batchID := uuid.New().String()
	start := time.Now()

	// バッチ間隔の強制。直前のバッチから間隔が不足している場合はここで待機する。
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewAbortedError()
	}

	bodies := make([][]byte, len(urls))
	errs := make([]error, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			bodies[i], errs[i] = c.fetchOne(ctx, u)
		}(i, u)
	}
	wg.Wait()

	duration := time.Since(start)

	// キャンセルが発火していた場合、部分結果はすべて破棄する
	if ctx.Err() != nil {
		c.logger.Info("バッチはキャンセルされました",
			slog.String("batch_id", batchID),
			slog.Int("url_count", len(urls)),
		)
		return nil, model.NewAbortedError()
	}

	// インデックス順で最初の失敗をバッチ全体の失敗として扱う
	for _, err := range errs {
		if err == nil {
			continue
		}
		c.metrics.RecordBatchFailure()
		c.logger.Error("バッチの取得に失敗しました",
			slog.String("batch_id", batchID),
			slog.Int("url_count", len(urls)),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return nil, err
	}

	c.metrics.RecordBatchSuccess()
	c.metrics.RecordBatchLatency(duration)
	c.logger.Info("バッチの取得が完了しました",
		slog.String("batch_id", batchID),
		slog.Int("url_count", len(urls)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return bodies, nil
}

// fetchOne は1リクエストを実行してレスポンスボディを返す。
func (c *Coordinator) fetchOne(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, model.NewAbortedError()
		}
		return nil, model.NewUpstreamError(err.Error())
	}
	defer resp.Body.Close()

	c.metrics.RecordHTTPStatus(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewAbortedError()
		}
		return nil, model.NewUpstreamError(fmt.Sprintf("レスポンスボディの読み取りに失敗しました: %s", err.Error()))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewUpstreamError(extractErrorMessage(resp.StatusCode, body))
	}

	return body, nil
}

// extractErrorMessage は非成功レスポンスから人間可読のメッセージを抽出する。
// エラーボディを構造化データ（status_message）としてパースし、
// 失敗した場合は先頭100文字の生テキスト抜粋にフォールバックする。
func extractErrorMessage(statusCode int, body []byte) string {
	var parsed struct {
		StatusMessage string `json:"status_message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.StatusMessage != "" {
		return fmt.Sprintf("(%d) %s", statusCode, parsed.StatusMessage)
	}

	// マルチバイト文字の途中で切らないよう、バイト数ではなく文字数で切り詰める
	excerpt := string(body)
	if runes := []rune(excerpt); len(runes) > errorBodyExcerptLen {
		excerpt = string(runes[:errorBodyExcerptLen])
	}
	return fmt.Sprintf("(%d) サーバーから不正なレスポンスを受信しました: %s...", statusCode, excerpt)
}
