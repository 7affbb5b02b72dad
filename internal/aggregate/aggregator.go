package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hitoshi/watchdeck/internal/cache"
	"github.com/hitoshi/watchdeck/internal/model"
	"github.com/hitoshi/watchdeck/internal/repository"
	"github.com/hitoshi/watchdeck/internal/security"
	"github.com/hitoshi/watchdeck/internal/tmdb"
)

// Scheduler はリクエストバッチの発行とエポック管理のインターフェース。
type Scheduler interface {
	// NextEpoch は新しいリクエストエポックを発行する。
	NextEpoch() int64
	// CurrentEpoch は現在のリクエストエポックを返す。
	CurrentEpoch() int64
	// Schedule はurlsの全リクエストを1バッチとして発行し、同じ順序でボディを返す。
	Schedule(ctx context.Context, urls []string) ([][]byte, error)
}

// MetricsRecorder は集約処理のメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordStaleDropped()
	RecordItemsMerged(count int)
}

// State は集約層の観測可能な状態のスナップショット。
type State struct {
	// Items は正準の結果一覧（マージ・重複排除・ランキング済み）。
	Items []model.Item
	// Loading は新規取得が進行中かどうか。
	Loading bool
	// LoadingMore は追加ロードが進行中かどうか。
	LoadingMore bool
	// Err は直近の取得失敗。成功時とキャンセル時はnil。
	Err *model.AppError
	// ContentType はアクティブなコンテンツ種別フィルタ。
	ContentType model.ContentType
	// ResultFilter はアクティブな結果フィルタ。
	ResultFilter model.ResultFilter
	// MoviePage / TVPage はカテゴリ別のページカーソル。
	MoviePage int
	TVPage    int
	// TotalMoviePages / TotalTVPages はカテゴリ別の既知の総ページ数。
	// 各カテゴリの先頭ページのレスポンスからのみ更新される。
	TotalMoviePages int
	TotalTVPages    int
	// CanLoadMore はいずれかのアクティブカテゴリに未取得ページが残っているか。
	CanLoadMore bool
}

// Aggregator はカテゴリ別ページ取得の状態機械。
//
// 新規取得・追加ロード・フィルタ切り替えを調停し、結果一覧を
// マージ・重複排除・スコア降順ランキングした正準形で保持する。
// 取得開始時に捕捉したエポックがコミット時の現在エポックと一致しない
// レスポンスは陳腐化しており、状態を変更せず静かに破棄する。
type Aggregator struct {
	scheduler Scheduler
	catalog   *tmdb.Client
	cache     *cache.Store
	repo      repository.StateRepository
	metrics   MetricsRecorder
	logger    *slog.Logger

	pagesPerFreshLoad int

	mu             sync.Mutex
	items          []model.Item
	loading        bool
	loadingMore    bool
	err            *model.AppError
	contentType    model.ContentType
	resultFilter   model.ResultFilter
	moviePage      int
	tvPage         int
	totalMoviePage int
	totalTVPage    int
	cancelInFlight context.CancelFunc
	onChange       func()
}

// New はAggregatorの新しいインスタンスを生成する。
func New(
	scheduler Scheduler,
	catalog *tmdb.Client,
	cacheStore *cache.Store,
	repo repository.StateRepository,
	metrics MetricsRecorder,
	logger *slog.Logger,
	pagesPerFreshLoad int,
) *Aggregator {
	if pagesPerFreshLoad <= 0 {
		pagesPerFreshLoad = 1
	}
	return &Aggregator{
		scheduler:         scheduler,
		catalog:           catalog,
		cache:             cacheStore,
		repo:              repo,
		metrics:           metrics,
		logger:            logger,
		pagesPerFreshLoad: pagesPerFreshLoad,
		contentType:       model.ContentTypeAll,
		resultFilter:      model.ResultFilterAll,
		moviePage:         1,
		tvPage:            1,
	}
}

// OnChange は状態変更時に呼ばれるコールバックを登録する。
// コールバックはロック外で呼び出される。
func (a *Aggregator) OnChange(fn func()) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Snapshot は現在の状態のコピーを返す。
func (a *Aggregator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	items := make([]model.Item, len(a.items))
	copy(items, a.items)

	return State{
		Items:           items,
		Loading:         a.loading,
		LoadingMore:     a.loadingMore,
		Err:             a.err,
		ContentType:     a.contentType,
		ResultFilter:    a.resultFilter,
		MoviePage:       a.moviePage,
		TVPage:          a.tvPage,
		TotalMoviePages: a.totalMoviePage,
		TotalTVPages:    a.totalTVPage,
		CanLoadMore:     a.canLoadMoreLocked(),
	}
}

// FilteredItems はアクティブな結果フィルタとレーティングマップに基づく
// 表示用の一覧を返す。正準一覧は変更しない。
func (a *Aggregator) FilteredItems(ratings map[string]model.Rating) []model.Item {
	a.mu.Lock()
	items := a.items
	filter := a.resultFilter
	a.mu.Unlock()

	return FilterByRating(items, ratings, filter)
}

// Fetch は新規取得を実行する。キャッシュが有効で強制更新でない場合は
// キャッシュから返し、リモートへのリクエストは発行しない。
//
// appendMode=trueの場合は現在のカーソル位置の1ページを既存一覧に
// マージする（追加ロードの内部経路）。
func (a *Aggregator) Fetch(ctx context.Context, appendMode, forceRefresh bool) error {
	epoch := a.scheduler.NextEpoch()

	a.mu.Lock()
	if a.cancelInFlight != nil {
		a.cancelInFlight()
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancelInFlight = cancel
	ct := a.contentType
	moviePage := a.moviePage
	tvPage := a.tvPage
	a.mu.Unlock()

	key := cache.Key(ct, moviePage, tvPage)

	// キャッシュ参照は強制更新時も行う。期限切れエントリの遅延削除を兼ねる。
	cached, ok := a.cache.Get(key)
	if !appendMode && ok && !forceRefresh {
		a.metrics.RecordCacheHit()
		a.mu.Lock()
		a.items = cached
		a.loading = false
		a.err = nil
		a.mu.Unlock()
		a.notify()
		return nil
	}
	if !appendMode {
		a.metrics.RecordCacheMiss()
	}

	a.mu.Lock()
	if appendMode {
		a.loadingMore = true
	} else {
		a.loading = true
	}
	a.err = nil
	a.mu.Unlock()
	a.notify()

	pages := a.pagesPerFreshLoad
	if appendMode {
		pages = 1
	}

	type pageRequest struct {
		category model.Category
		first    bool // カテゴリ内の先頭ページ（総ページ数の取得元）
	}
	var (
		urls []string
		reqs []pageRequest
	)
	if ct.IncludesMovies() {
		for i := 0; i < pages; i++ {
			urls = append(urls, a.catalog.DiscoverURL(model.CategoryMovie, moviePage+i))
			reqs = append(reqs, pageRequest{category: model.CategoryMovie, first: i == 0})
		}
	}
	if ct.IncludesTV() {
		for i := 0; i < pages; i++ {
			urls = append(urls, a.catalog.DiscoverURL(model.CategoryTV, tvPage+i))
			reqs = append(reqs, pageRequest{category: model.CategoryTV, first: i == 0})
		}
	}

	bodies, err := a.scheduler.Schedule(ctx, urls)
	if err != nil {
		return a.commitFailure(ctx, epoch, appendMode, err)
	}

	var (
		batch          []model.Item
		totalMoviePage = -1
		totalTVPage    = -1
	)
	for i, body := range bodies {
		resp, perr := a.catalog.ParseDiscoverResponse(body)
		if perr != nil {
			return a.commitFailure(ctx, epoch, appendMode, perr)
		}
		if reqs[i].first {
			if reqs[i].category == model.CategoryMovie {
				totalMoviePage = resp.TotalPages
			} else {
				totalTVPage = resp.TotalPages
			}
		}
		batch = append(batch, a.catalog.NormalizeAll(resp.Results, reqs[i].category)...)
	}

	if appendMode {
		return a.commitAppend(ctx, epoch, batch, totalMoviePage, totalTVPage)
	}
	return a.commitFresh(ctx, epoch, key, batch, totalMoviePage, totalTVPage)
}

// commitFresh は新規取得の結果を正準一覧としてコミットする。
// エポックが追い越されているか、コンテキストがキャンセル済みの場合は
// 状態を変更せず静かに破棄する。
func (a *Aggregator) commitFresh(ctx context.Context, epoch int64, key string, batch []model.Item, totalMoviePage, totalTVPage int) error {
	SortByScoreDesc(batch)
	batch = DedupeByID(batch)

	a.mu.Lock()
	if a.stale(ctx, epoch) {
		a.mu.Unlock()
		a.metrics.RecordStaleDropped()
		return nil
	}
	a.items = batch
	a.loading = false
	a.err = nil
	a.applyTotalPagesLocked(totalMoviePage, totalTVPage)
	a.mu.Unlock()

	a.metrics.RecordItemsMerged(len(batch))
	a.cache.Put(key, batch)
	a.persistSession(ctx)
	a.notify()
	return nil
}

// commitAppend は追加ロードの結果を既存一覧にマージしてコミットする。
// 既存アイテムが重複排除で優先され、マージ後に再ランキングする。
func (a *Aggregator) commitAppend(ctx context.Context, epoch int64, batch []model.Item, totalMoviePage, totalTVPage int) error {
	SortByScoreDesc(batch)
	batch = DedupeByID(batch)

	a.mu.Lock()
	if a.stale(ctx, epoch) {
		a.mu.Unlock()
		a.metrics.RecordStaleDropped()
		return nil
	}
	combined := make([]model.Item, 0, len(a.items)+len(batch))
	combined = append(combined, a.items...)
	combined = append(combined, batch...)
	combined = DedupeByID(combined)
	SortByScoreDesc(combined)

	a.items = combined
	a.loadingMore = false
	a.err = nil
	a.applyTotalPagesLocked(totalMoviePage, totalTVPage)
	a.mu.Unlock()

	a.metrics.RecordItemsMerged(len(combined))
	a.persistSession(ctx)
	a.notify()
	return nil
}

// commitFailure は取得失敗をコミットする。キャンセル（Aborted）は
// ユーザー可視のエラーにせず、ローディングフラグの解除のみ行う。
func (a *Aggregator) commitFailure(ctx context.Context, epoch int64, appendMode bool, err error) error {
	a.mu.Lock()
	if a.stale(ctx, epoch) {
		a.mu.Unlock()
		a.metrics.RecordStaleDropped()
		return nil
	}
	if appendMode {
		a.loadingMore = false
	} else {
		a.loading = false
	}
	if model.IsAborted(err) {
		a.mu.Unlock()
		a.notify()
		return nil
	}

	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		appErr = model.NewUpstreamError(err.Error())
	}
	a.err = appErr
	a.mu.Unlock()

	a.logger.Error("カタログの取得に失敗しました",
		slog.String("error", appErr.Message),
	)
	a.notify()
	return appErr
}

// stale はこの取得の結果を破棄すべきかを判定する。呼び出し元がロックを保持する。
func (a *Aggregator) stale(ctx context.Context, epoch int64) bool {
	return ctx.Err() != nil || a.scheduler.CurrentEpoch() != epoch
}

// applyTotalPagesLocked はカテゴリ別の総ページ数を更新する。
// 負値はそのカテゴリが今回の取得に含まれなかったことを示し、既存値を維持する。
func (a *Aggregator) applyTotalPagesLocked(totalMoviePage, totalTVPage int) {
	if totalMoviePage >= 0 {
		a.totalMoviePage = totalMoviePage
	}
	if totalTVPage >= 0 {
		a.totalTVPage = totalTVPage
	}
}

// LoadMore はアクティブな各カテゴリのページカーソルを進めて次のページ群を取得する。
// 追加ロード可能かどうかの判定（CanLoadMore）は呼び出し元の責務。
func (a *Aggregator) LoadMore(ctx context.Context) error {
	a.mu.Lock()
	if a.contentType.IncludesMovies() {
		a.moviePage += a.pagesPerFreshLoad
	}
	if a.contentType.IncludesTV() {
		a.tvPage += a.pagesPerFreshLoad
	}
	a.mu.Unlock()

	return a.Fetch(ctx, true, false)
}

// CanLoadMore はいずれかのアクティブカテゴリに未取得ページが残っているかを返す。
func (a *Aggregator) CanLoadMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canLoadMoreLocked()
}

func (a *Aggregator) canLoadMoreLocked() bool {
	movies := a.contentType.IncludesMovies() && a.moviePage < a.totalMoviePage
	tv := a.contentType.IncludesTV() && a.tvPage < a.totalTVPage
	return movies || tv
}

// SetContentType はコンテンツ種別フィルタを切り替える。
// 進行中の取得をキャンセルし、ページカーソルをリセットして強制的に再取得する。
// 同一の種別への切り替えは何もしない。
func (a *Aggregator) SetContentType(ctx context.Context, ct model.ContentType) error {
	a.mu.Lock()
	if ct == a.contentType {
		a.mu.Unlock()
		return nil
	}
	if a.cancelInFlight != nil {
		a.cancelInFlight()
		a.cancelInFlight = nil
	}
	a.contentType = ct
	a.moviePage = 1
	a.tvPage = 1
	a.items = nil
	a.mu.Unlock()

	a.persistSession(ctx)
	a.notify()
	return a.Fetch(ctx, false, true)
}

// SetResultFilter は結果フィルタを切り替える。取得は発生しない。
func (a *Aggregator) SetResultFilter(ctx context.Context, f model.ResultFilter) {
	a.mu.Lock()
	a.resultFilter = f
	a.mu.Unlock()

	if err := a.repo.Set(ctx, repository.KeyResultFilter, string(f)); err != nil {
		a.logger.Warn("結果フィルタの保存に失敗しました", slog.String("error", err.Error()))
	}
	a.notify()
}

// Load は永続化済みのセッション状態（フィルタ・カーソル・キャッシュ）を復元する。
// 破損したエントリは既定値にフォールバックし、ストレージから削除する。
func (a *Aggregator) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if raw, ok, err := a.repo.Get(ctx, repository.KeyContentType); err != nil {
		return err
	} else if ok {
		if ct, valid := model.ParseContentType(raw); valid {
			a.contentType = ct
		} else {
			a.logger.Warn("保存されたコンテンツ種別が不正なため破棄します", slog.String("value", raw))
			_ = a.repo.Delete(ctx, repository.KeyContentType)
		}
	}

	if raw, ok, err := a.repo.Get(ctx, repository.KeyResultFilter); err != nil {
		return err
	} else if ok {
		if f, valid := model.ParseResultFilter(raw); valid {
			a.resultFilter = f
		} else {
			a.logger.Warn("保存された結果フィルタが不正なため破棄します", slog.String("value", raw))
			_ = a.repo.Delete(ctx, repository.KeyResultFilter)
		}
	}

	if raw, ok, err := a.repo.Get(ctx, repository.KeyMoviePage); err != nil {
		return err
	} else if ok {
		a.moviePage = security.ValidatePageNumber(raw)
	}
	if raw, ok, err := a.repo.Get(ctx, repository.KeyTVPage); err != nil {
		return err
	} else if ok {
		a.tvPage = security.ValidatePageNumber(raw)
	}

	if raw, ok, err := a.repo.Get(ctx, repository.KeyCachedData); err != nil {
		return err
	} else if ok {
		if rerr := a.cache.Restore([]byte(raw)); rerr != nil {
			a.logger.Warn("保存されたキャッシュが不正なため破棄します", slog.String("error", rerr.Error()))
			_ = a.repo.Delete(ctx, repository.KeyCachedData)
		}
	}

	return nil
}

// persistSession はフィルタ・カーソル・キャッシュをストレージへ保存する。
// 保存失敗はセッション継続を妨げない（警告ログのみ）。
func (a *Aggregator) persistSession(ctx context.Context) {
	a.mu.Lock()
	ct := a.contentType
	moviePage := a.moviePage
	tvPage := a.tvPage
	a.mu.Unlock()

	entries := map[string]string{
		repository.KeyContentType: string(ct),
		repository.KeyMoviePage:   strconv.Itoa(moviePage),
		repository.KeyTVPage:      strconv.Itoa(tvPage),
	}
	if blob, err := a.cache.Serialize(); err == nil {
		entries[repository.KeyCachedData] = string(blob)
	} else {
		a.logger.Warn("キャッシュのシリアライズに失敗しました", slog.String("error", err.Error()))
	}

	for key, value := range entries {
		if err := a.repo.Set(ctx, key, value); err != nil {
			a.logger.Warn("セッション状態の保存に失敗しました",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close は進行中の取得をキャンセルする。
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.cancelInFlight != nil {
		a.cancelInFlight()
		a.cancelInFlight = nil
	}
	a.mu.Unlock()
}

func (a *Aggregator) notify() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}
