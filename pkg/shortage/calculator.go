// Package shortage 由排班矩阵与需求基线计算逐格缺口/富余及汇总
package shortage

import (
	"math"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

// Calculator 缺口计算器
// 时段长度由配置显式传入，任何换算不得使用硬编码的时段时长
type Calculator struct {
	slotMinutes int
}

// NewCalculator 创建缺口计算器
func NewCalculator(slotMinutes int) (*Calculator, error) {
	if slotMinutes <= 0 || 1440%slotMinutes != 0 {
		return nil, errors.InvalidInput("slot_minutes", "必须整除1440")
	}
	return &Calculator{slotMinutes: slotMinutes}, nil
}

// Compute 计算某口径的缺口矩阵
// shortage/excess 为截断后的非负值，net 保留符号（need-staff），富余不会被清零掩盖
func (c *Calculator) Compute(g *model.Grid, baseline *model.NeedBaseline) (*model.ShortageMatrix, error) {
	if g == nil || baseline == nil {
		return nil, errors.ErrEmptyGrid
	}
	if g.Scope.Key() != baseline.Scope.Key() {
		return nil, errors.InvalidInput("baseline",
			"基线口径 "+baseline.Scope.Key()+" 与矩阵口径 "+g.Scope.Key()+" 不匹配")
	}
	if g.SlotMinutes != c.slotMinutes || baseline.SlotMinutes != c.slotMinutes {
		return nil, errors.InvalidInput("slot_minutes", "矩阵、基线与计算器的时段长度不一致")
	}

	slots := g.SlotsPerDay()
	cells := make([][]model.ShortageCell, slots)
	for slot := 0; slot < slots; slot++ {
		cells[slot] = make([]model.ShortageCell, len(g.Dates))
		for i, date := range g.Dates {
			staff := g.At(slot, i)
			need := baseline.NeedAt(g.WeekdayAt(i), slot)
			net := need - float64(staff)

			cells[slot][i] = model.ShortageCell{
				Date:     date,
				Slot:     slot,
				Need:     need,
				Staff:    staff,
				Shortage: math.Max(0, net),
				Excess:   math.Max(0, -net),
				Net:      net,
			}
		}
	}

	return &model.ShortageMatrix{
		Scope:       g.Scope,
		Method:      baseline.Method,
		SlotMinutes: c.slotMinutes,
		Dates:       g.Dates,
		Cells:       cells,
	}, nil
}

// Summarize 汇总缺口矩阵为小时数视图（总计、按日、按月、按小时）
func (c *Calculator) Summarize(m *model.ShortageMatrix) model.ScopeSummary {
	slotHours := float64(m.SlotMinutes) / 60.0

	summary := model.ScopeSummary{
		Scope:                m.Scope,
		DailyShortageHours:   make(map[string]float64),
		MonthlyShortageHours: make(map[string]float64),
		HourlyShortageHours:  make(map[int]float64),
		Status:               model.StatusAccepted,
	}

	for slot := range m.Cells {
		hour := slot * m.SlotMinutes / 60 % 24
		for i := range m.Cells[slot] {
			cell := &m.Cells[slot][i]
			summary.ShortageHours += cell.Shortage * slotHours
			summary.ExcessHours += cell.Excess * slotHours
			summary.NetHours += cell.Net * slotHours
			if cell.Shortage > 0 {
				summary.ShortageCells++
				summary.DailyShortageHours[cell.Date] += cell.Shortage * slotHours
				summary.MonthlyShortageHours[cell.Date[:7]] += cell.Shortage * slotHours
				summary.HourlyShortageHours[hour] += cell.Shortage * slotHours
			}
		}
	}
	return summary
}
