// Package stats 提供缺口分布统计分析功能
package stats

import (
	"github.com/quekou/quekou/pkg/model"
)

// Analyzer 缺口分布分析器
type Analyzer struct{}

// NewAnalyzer 创建分析器
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze 从全机构缺口矩阵与各岗位汇总生成分布画像
func (a *Analyzer) Analyze(matrix *model.ShortageMatrix, roles []model.ScopeSummary) *model.ShortageProfile {
	if matrix == nil || len(matrix.Dates) == 0 {
		return &model.ShortageProfile{SatisfactionPct: 100}
	}

	slotHours := float64(matrix.SlotMinutes) / 60
	profile := &model.ShortageProfile{}

	var satisfiedHours float64
	dailyShortage := make(map[string]float64, len(matrix.Dates))
	hourlyShortage := make(map[int]float64)

	for slot, row := range matrix.Cells {
		hour := slot * matrix.SlotMinutes / 60 % 24
		for _, cell := range row {
			profile.NeedHours += cell.Need * slotHours
			profile.StaffedHours += float64(cell.Staff) * slotHours

			covered := cell.Need
			if float64(cell.Staff) < cell.Need {
				covered = float64(cell.Staff)
			}
			satisfiedHours += covered * slotHours

			if cell.Shortage > 0 {
				dailyShortage[cell.Date] += cell.Shortage * slotHours
				hourlyShortage[hour] += cell.Shortage * slotHours
				wd := int(model.WeekdayOf(cell.Date))
				profile.WeekdayShortageHours[wd] += cell.Shortage * slotHours
			}
		}
	}

	profile.SatisfactionPct = 100
	if profile.NeedHours > 0 {
		profile.SatisfactionPct = satisfiedHours / profile.NeedHours * 100
	}

	// 峰值按日期序遍历，结果确定
	for _, date := range matrix.Dates {
		if h := dailyShortage[date]; h > profile.PeakDateHours {
			profile.PeakDate = date
			profile.PeakDateHours = h
		}
	}
	for hour := 0; hour < 24; hour++ {
		if h := hourlyShortage[hour]; h > profile.PeakHourHours {
			profile.PeakHour = hour
			profile.PeakHourHours = h
		}
	}

	// 基尼系数覆盖所有分析日期，无缺口的日期计为 0
	daily := make([]float64, 0, len(matrix.Dates))
	for _, date := range matrix.Dates {
		daily = append(daily, dailyShortage[date])
	}
	profile.ConcentrationGini = Gini(daily)

	profile.RoleShares = ScopeShares(roles)
	return profile
}
