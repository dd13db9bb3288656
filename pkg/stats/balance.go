package stats

import (
	"sort"

	"github.com/quekou/quekou/pkg/model"
)

// Gini 计算基尼系数，0 表示完全均匀，越接近 1 越集中
// 全零或单元素序列返回 0
func Gini(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var total, weighted float64
	for i, v := range sorted {
		total += v
		weighted += float64(2*(i+1)-n-1) * v
	}
	if total == 0 {
		return 0
	}
	return weighted / (float64(n) * total)
}

// ScopeShares 计算各口径承担的缺口份额，按份额降序排列
func ScopeShares(summaries []model.ScopeSummary) []model.ScopeShare {
	if len(summaries) == 0 {
		return nil
	}

	var total float64
	for _, s := range summaries {
		total += s.ShortageHours
	}

	shares := make([]model.ScopeShare, 0, len(summaries))
	for _, s := range summaries {
		share := model.ScopeShare{Scope: s.Scope, ShortageHours: s.ShortageHours}
		if total > 0 {
			share.SharePct = s.ShortageHours / total * 100
		}
		shares = append(shares, share)
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].ShortageHours != shares[j].ShortageHours {
			return shares[i].ShortageHours > shares[j].ShortageHours
		}
		return shares[i].Scope.Label < shares[j].Scope.Label
	})
	return shares
}
