package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hitoshi/watchdeck/internal/aggregate"
	"github.com/hitoshi/watchdeck/internal/annotation"
	"github.com/hitoshi/watchdeck/internal/model"
)

// browseSession は対話ブラウズモードのコマンドループ。
// 1行1コマンドを解釈し、集約層と注釈ストアを操作する。
type browseSession struct {
	aggregator *aggregate.Aggregator
	notes      *annotation.Store
	out        io.Writer
}

func newBrowseSession(aggregator *aggregate.Aggregator, notes *annotation.Store, out io.Writer) *browseSession {
	return &browseSession{
		aggregator: aggregator,
		notes:      notes,
		out:        out,
	}
}

// run は入力ストリームのコマンドループを実行する。
// quitコマンド、EOF、またはコンテキストのキャンセルで終了する。
func (s *browseSession) run(ctx context.Context, in io.Reader) {
	s.printList()

	scanner := bufio.NewScanner(in)
	fmt.Fprint(s.out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := s.execute(ctx, scanner.Text()); quit {
			return
		}
		fmt.Fprint(s.out, "> ")
	}
}

// execute は1コマンドを解釈して実行する。終了コマンドの場合はtrueを返す。
func (s *browseSession) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "help":
		s.printHelp()

	case "list":
		s.printList()

	case "counts":
		s.printCounts()

	case "more":
		if !s.aggregator.CanLoadMore() {
			fmt.Fprintln(s.out, "追加で読み込めるページはありません。")
			return false
		}
		if err := s.aggregator.LoadMore(ctx); err != nil {
			s.printError(err)
			return false
		}
		s.printList()

	case "refresh":
		if err := s.aggregator.Fetch(ctx, false, true); err != nil {
			s.printError(err)
			return false
		}
		s.printList()

	case "type":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "使い方: type all|movies|tv")
			return false
		}
		ct, ok := model.ParseContentType(fields[1])
		if !ok {
			fmt.Fprintf(s.out, "不明なコンテンツ種別です: %s\n", fields[1])
			return false
		}
		if err := s.aggregator.SetContentType(ctx, ct); err != nil {
			s.printError(err)
			return false
		}
		s.printList()

	case "filter":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "使い方: filter all|loved|watched|to-watch|pass")
			return false
		}
		f, ok := model.ParseResultFilter(fields[1])
		if !ok {
			fmt.Fprintf(s.out, "不明な結果フィルタです: %s\n", fields[1])
			return false
		}
		s.aggregator.SetResultFilter(ctx, f)
		s.printList()

	case "rate":
		if len(fields) < 3 {
			fmt.Fprintln(s.out, "使い方: rate <アイテムID> loved|watched|pass|clear")
			return false
		}
		tag := fields[2]
		if tag == "clear" {
			tag = ""
		}
		if err := s.notes.SetRating(ctx, fields[1], model.Rating(tag)); err != nil {
			s.printError(err)
			return false
		}
		s.printList()

	case "comment":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "使い方: comment <アイテムID> [本文]")
			return false
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "comment"))
		text = strings.TrimSpace(strings.TrimPrefix(text, fields[1]))
		s.notes.SetComment(ctx, fields[1], text)
		fmt.Fprintf(s.out, "コメントを設定しました: %s\n", fields[1])

	default:
		fmt.Fprintf(s.out, "不明なコマンドです: %s (helpで一覧を表示)\n", fields[0])
	}

	return false
}

// printList はアクティブな結果フィルタを適用した一覧を表示する。
func (s *browseSession) printList() {
	state := s.aggregator.Snapshot()

	if state.Err != nil {
		s.printError(state.Err)
		return
	}
	if state.Loading {
		fmt.Fprintln(s.out, "読み込み中...")
		return
	}

	items := s.aggregator.FilteredItems(s.notes.RatingMap())

	fmt.Fprintf(s.out, "==== %s / %s (%d件) ====\n",
		state.ContentType, state.ResultFilter, len(items))
	for _, item := range items {
		year := "----"
		if item.Year != model.YearUnknown {
			year = fmt.Sprintf("%d", item.Year)
		}
		note := s.notes.Annotation(item.ID)
		mark := " "
		if note.Rating != model.RatingUnrated {
			mark = string(note.Rating[0])
		}
		fmt.Fprintf(s.out, "[%s] %-12s %s  %s (%s)\n",
			mark, item.ID, item.Score, item.Title, year)
		if note.Comment != "" {
			fmt.Fprintf(s.out, "      # %s\n", note.Comment)
		}
	}
	if state.CanLoadMore {
		fmt.Fprintln(s.out, "-- moreで続きを読み込み --")
	}
}

// printCounts は各結果フィルタの該当件数を表示する。
func (s *browseSession) printCounts() {
	state := s.aggregator.Snapshot()
	counts := aggregate.FilterCounts(state.Items, s.notes.RatingMap())

	order := []model.ResultFilter{
		model.ResultFilterAll,
		model.ResultFilterLoved,
		model.ResultFilterWatched,
		model.ResultFilterToWatch,
		model.ResultFilterPass,
	}
	for _, f := range order {
		fmt.Fprintf(s.out, "%-10s %d\n", f, counts[f])
	}
}

func (s *browseSession) printError(err error) {
	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(s.out, "エラー: %s\n", err.Error())
		return
	}

	fmt.Fprintf(s.out, "エラー: %s\n", appErr.Message)
	if appErr.Action != "" {
		fmt.Fprintf(s.out, "対処: %s\n", appErr.Action)
	}
}

func (s *browseSession) printHelp() {
	fmt.Fprint(s.out, `コマンド一覧:
  list                     現在の一覧を表示
  more                     次のページ群を追加読み込み
  refresh                  キャッシュを無視して再取得
  type all|movies|tv       コンテンツ種別を切り替え
  filter all|loved|watched|to-watch|pass
                           結果フィルタを切り替え
  rate <ID> loved|watched|pass|clear
                           レーティングを設定
  comment <ID> [本文]      コメントを設定（空で削除）
  counts                   フィルタ別の件数を表示
  quit                     終了
`)
}
