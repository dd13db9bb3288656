package grid

import (
	"testing"

	"github.com/quekou/quekou/pkg/model"
)

// workingRecords 生成某员工某日 [startSlot, endSlot) 的在岗记录
func workingRecords(staffID, role, employment, date string, startSlot, endSlot int) []model.ShiftRecord {
	var out []model.ShiftRecord
	for slot := startSlot; slot < endSlot; slot++ {
		out = append(out, model.ShiftRecord{
			StaffID:    staffID,
			Role:       role,
			Employment: employment,
			Date:       date,
			Slot:       slot,
			IsWorking:  true,
		})
	}
	return out
}

func TestDatesOf_FillsGaps(t *testing.T) {
	records := []model.ShiftRecord{
		{StaffID: "s1", Date: "2026-06-01"},
		{StaffID: "s1", Date: "2026-06-04"},
	}
	dates := DatesOf(records)

	// 首尾之间的空日也要进入日期列，保证矩阵连续
	if len(dates) != 4 {
		t.Fatalf("got %d dates %v, want 4", len(dates), dates)
	}
	if dates[1] != "2026-06-02" || dates[2] != "2026-06-03" {
		t.Errorf("gap dates missing: %v", dates)
	}
}

func TestBuildScope_CountsOnlyWorkingAndMatching(t *testing.T) {
	b, err := NewBuilder(30)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	records := append(
		workingRecords("s1", "介护", "正社員", "2026-06-01", 18, 20),
		model.ShiftRecord{StaffID: "s2", Role: "介护", Date: "2026-06-01", Slot: 18, IsWorking: false},
		model.ShiftRecord{StaffID: "s3", Role: "相谈员", Date: "2026-06-01", Slot: 18, IsWorking: true},
	)

	g, err := b.BuildScope(records, model.RoleScope("介护"), []string{"2026-06-01"})
	if err != nil {
		t.Fatalf("BuildScope() error = %v", err)
	}

	// 休假记录与其他岗位不计入
	if got := g.At(18, 0); got != 1 {
		t.Errorf("At(18,0) = %d, want 1", got)
	}
	if got := g.Total(); got != 2 {
		t.Errorf("Total() = %d, want 2", got)
	}
}

func TestBuildAll_ProducesAllScopes(t *testing.T) {
	b, _ := NewBuilder(30)

	records := append(
		workingRecords("s1", "介护", "正社員", "2026-06-01", 18, 20),
		workingRecords("s2", "相谈员", "派遣", "2026-06-01", 18, 20)...,
	)
	ss := BuildScopeSet(records, DefaultScopePolicy())

	grids, err := b.BuildAll(records, ss)
	if err != nil {
		t.Fatalf("BuildAll() error = %v", err)
	}

	// 全机构 + 2岗位 + 2用工类型
	if len(grids) != 5 {
		t.Fatalf("got %d grids, want 5", len(grids))
	}
	facility := grids[model.FacilityScope().Key()]
	if facility.At(18, 0) != 2 {
		t.Errorf("facility At(18,0) = %d, want 2", facility.At(18, 0))
	}
}

func TestBuildAll_EmptyRecords(t *testing.T) {
	b, _ := NewBuilder(30)
	if _, err := b.BuildAll(nil, model.ScopeSet{}); err == nil {
		t.Error("BuildAll should fail for empty records")
	}
}

func TestVerifyRoleSum(t *testing.T) {
	b, _ := NewBuilder(30)

	records := append(
		workingRecords("s1", "介护", "正社員", "2026-06-01", 18, 20),
		workingRecords("s2", "相谈员", "正社員", "2026-06-01", 18, 22)...,
	)
	ss := BuildScopeSet(records, DefaultScopePolicy())
	grids, err := b.BuildAll(records, ss)
	if err != nil {
		t.Fatalf("BuildAll() error = %v", err)
	}

	facility := grids[model.FacilityScope().Key()]
	roleGrids := map[string]*model.Grid{
		model.RoleScope("介护").Key():  grids[model.RoleScope("介护").Key()],
		model.RoleScope("相谈员").Key(): grids[model.RoleScope("相谈员").Key()],
	}

	if ok, at := VerifyRoleSum(facility, roleGrids, ss, false); !ok {
		t.Errorf("role sum should equal facility grid, first mismatch at %s", at)
	}

	// 人为制造偏差
	facility.Inc(18, "2026-06-01")
	if ok, _ := VerifyRoleSum(facility, roleGrids, ss, false); ok {
		t.Error("VerifyRoleSum should detect mismatch")
	}

	// 存在复合标签时跳过校验
	if ok, _ := VerifyRoleSum(facility, roleGrids, ss, true); !ok {
		t.Error("VerifyRoleSum should pass when compound labels present")
	}
}
