package stats

import (
	"math"
	"testing"

	"github.com/quekou/quekou/pkg/model"
)

// 两天、每日两段（720分钟）的最小矩阵
// 2026-06-01 为周一
func testMatrix() *model.ShortageMatrix {
	return &model.ShortageMatrix{
		Scope:       model.FacilityScope(),
		Method:      "mean",
		SlotMinutes: 720,
		Dates:       []string{"2026-06-01", "2026-06-02"},
		Cells: [][]model.ShortageCell{
			{
				{Date: "2026-06-01", Slot: 0, Need: 2, Staff: 1, Shortage: 1, Net: 1},
				{Date: "2026-06-02", Slot: 0, Need: 1, Staff: 1},
			},
			{
				{Date: "2026-06-01", Slot: 1, Need: 0, Staff: 1, Excess: 1, Net: -1},
				{Date: "2026-06-02", Slot: 1, Need: 2, Staff: 0, Shortage: 2, Net: 2},
			},
		},
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	profile := NewAnalyzer().Analyze(testMatrix(), nil)

	// 需求 5 人段 × 12h = 60h，在岗 3 人段 = 36h，满足 2 人段 = 24h
	if math.Abs(profile.NeedHours-60) > 1e-9 {
		t.Errorf("NeedHours = %f, want 60", profile.NeedHours)
	}
	if math.Abs(profile.StaffedHours-36) > 1e-9 {
		t.Errorf("StaffedHours = %f, want 36", profile.StaffedHours)
	}
	if math.Abs(profile.SatisfactionPct-40) > 1e-9 {
		t.Errorf("SatisfactionPct = %f, want 40", profile.SatisfactionPct)
	}

	// 按日缺口：06-01 为 12h，06-02 为 24h
	if profile.PeakDate != "2026-06-02" || math.Abs(profile.PeakDateHours-24) > 1e-9 {
		t.Errorf("peak date = %s (%f), want 2026-06-02 (24)", profile.PeakDate, profile.PeakDateHours)
	}

	// 按时段缺口：0 点段 12h，12 点段 24h
	if profile.PeakHour != 12 || math.Abs(profile.PeakHourHours-24) > 1e-9 {
		t.Errorf("peak hour = %d (%f), want 12 (24)", profile.PeakHour, profile.PeakHourHours)
	}

	// 按星期：周一 12h、周二 24h
	if math.Abs(profile.WeekdayShortageHours[1]-12) > 1e-9 || math.Abs(profile.WeekdayShortageHours[2]-24) > 1e-9 {
		t.Errorf("weekday shortage = %v", profile.WeekdayShortageHours)
	}

	// {12, 24} 的基尼系数 = 1/6
	if math.Abs(profile.ConcentrationGini-1.0/6) > 1e-9 {
		t.Errorf("ConcentrationGini = %f, want %f", profile.ConcentrationGini, 1.0/6)
	}
}

func TestAnalyzer_Analyze_Empty(t *testing.T) {
	profile := NewAnalyzer().Analyze(nil, nil)
	if profile.SatisfactionPct != 100 {
		t.Errorf("empty matrix satisfaction = %f, want 100", profile.SatisfactionPct)
	}
	if profile.PeakDate != "" || profile.ConcentrationGini != 0 {
		t.Errorf("empty matrix profile = %+v", profile)
	}
}

func TestGini(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{name: "均匀分布", values: []float64{5, 5, 5, 5}, expected: 0},
		{name: "完全集中", values: []float64{0, 0, 0, 12}, expected: 0.75},
		{name: "全零", values: []float64{0, 0, 0}, expected: 0},
		{name: "单元素", values: []float64{7}, expected: 0},
		{name: "两元素", values: []float64{12, 24}, expected: 1.0 / 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Gini(tt.values); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Gini(%v) = %f, expected %f", tt.values, got, tt.expected)
			}
		})
	}

	// 输入切片不被修改
	values := []float64{3, 1, 2}
	Gini(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input mutated: %v", values)
	}
}

func TestScopeShares(t *testing.T) {
	summaries := []model.ScopeSummary{
		{Scope: model.RoleScope("相谈员"), ShortageHours: 1},
		{Scope: model.RoleScope("介护"), ShortageHours: 3},
	}

	shares := ScopeShares(summaries)
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}

	// 按份额降序
	if shares[0].Scope.Label != "介护" || math.Abs(shares[0].SharePct-75) > 1e-9 {
		t.Errorf("shares[0] = %+v, want 介护 75%%", shares[0])
	}
	if shares[1].Scope.Label != "相谈员" || math.Abs(shares[1].SharePct-25) > 1e-9 {
		t.Errorf("shares[1] = %+v, want 相谈员 25%%", shares[1])
	}

	// 缺口全零时份额为零
	zero := ScopeShares([]model.ScopeSummary{
		{Scope: model.RoleScope("介护")},
		{Scope: model.RoleScope("相谈员")},
	})
	for _, s := range zero {
		if s.SharePct != 0 {
			t.Errorf("zero shortage share = %+v", s)
		}
	}

	if ScopeShares(nil) != nil {
		t.Error("nil summaries should produce nil shares")
	}
}
