package repository

import "github.com/hitoshi/leadbox/internal/model"

// ComputeStats は購読者一覧から集計結果を算出する。
// pendingは合計からsuccessとerrorを引いた件数（ステータス未設定を含む）。
func ComputeStats(subs []model.Subscriber) *model.Stats {
	stats := &model.Stats{
		Total:    len(subs),
		BySource: make(map[string]int),
	}

	for _, s := range subs {
		stats.BySource[s.Source]++
		switch s.ConvertKitStatus {
		case model.ForwardStatusSuccess:
			stats.ConvertKit.Success++
		case model.ForwardStatusError:
			stats.ConvertKit.Error++
		}
	}
	stats.ConvertKit.Pending = stats.Total - stats.ConvertKit.Success - stats.ConvertKit.Error

	return stats
}

// filterBySource はsourceが一致する購読者のみを返す。
func filterBySource(subs []model.Subscriber, source string) []model.Subscriber {
	out := make([]model.Subscriber, 0)
	for _, s := range subs {
		if s.Source == source {
			out = append(out, s)
		}
	}
	return out
}
