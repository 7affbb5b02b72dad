// Package aggregate はカテゴリ別ページ結果のマージ・重複排除・ランキングと、
// 取得/追加ロードの状態機械を提供する。
package aggregate

import (
	"sort"

	"github.com/hitoshi/watchdeck/internal/model"
)

// DedupeByID はIDで重複排除した新しいスライスを返す。
// 最初の出現を採用し、相対順序は維持する。冪等な操作である。
func DedupeByID(items []model.Item) []model.Item {
	seen := make(map[string]struct{}, len(items))
	result := make([]model.Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		result = append(result, item)
	}
	return result
}

// SortByScoreDesc はスコア降順でその場で安定ソートする。
// 同スコアの要素はソース順を維持する。
func SortByScoreDesc(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}

// FilterByRating はレーティングマップに基づいて結果一覧を絞り込んだ
// 新しいスライスを返す。正準の一覧と注釈マップからオンデマンドで計算する
// 純粋な導出関数であり、共有状態は変更しない。
func FilterByRating(items []model.Item, ratings map[string]model.Rating, filter model.ResultFilter) []model.Item {
	if filter == model.ResultFilterAll {
		result := make([]model.Item, len(items))
		copy(result, items)
		return result
	}

	result := make([]model.Item, 0, len(items))
	for _, item := range items {
		if matchesFilter(ratings[item.ID], filter) {
			result = append(result, item)
		}
	}
	return result
}

// FilterCounts は各結果フィルタに該当する件数を返す。
func FilterCounts(items []model.Item, ratings map[string]model.Rating) map[model.ResultFilter]int {
	counts := map[model.ResultFilter]int{
		model.ResultFilterAll: len(items),
	}
	for _, item := range items {
		switch ratings[item.ID] {
		case model.RatingLoved:
			counts[model.ResultFilterLoved]++
		case model.RatingWatched:
			counts[model.ResultFilterWatched]++
		case model.RatingPass:
			counts[model.ResultFilterPass]++
		default:
			counts[model.ResultFilterToWatch]++
		}
	}
	return counts
}

// matchesFilter はレーティングが結果フィルタに該当するかを判定する。
func matchesFilter(rating model.Rating, filter model.ResultFilter) bool {
	switch filter {
	case model.ResultFilterLoved:
		return rating == model.RatingLoved
	case model.ResultFilterWatched:
		return rating == model.RatingWatched
	case model.ResultFilterPass:
		return rating == model.RatingPass
	case model.ResultFilterToWatch:
		return rating == model.RatingUnrated
	}
	return true
}
