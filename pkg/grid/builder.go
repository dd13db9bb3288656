// Package grid 将规整后的排班记录透视为各口径的排班矩阵
package grid

import (
	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

// Builder 排班矩阵构建器
type Builder struct {
	slotMinutes int
}

// NewBuilder 创建矩阵构建器
func NewBuilder(slotMinutes int) (*Builder, error) {
	if slotMinutes <= 0 || 1440%slotMinutes != 0 {
		return nil, errors.InvalidInput("slot_minutes", "必须整除1440")
	}
	return &Builder{slotMinutes: slotMinutes}, nil
}

// DatesOf 返回覆盖全部记录的连续日期列（含首尾之间的空日）
func DatesOf(records []model.ShiftRecord) []string {
	if len(records) == 0 {
		return nil
	}
	min, max := records[0].Date, records[0].Date
	for i := range records {
		if records[i].Date < min {
			min = records[i].Date
		}
		if records[i].Date > max {
			max = records[i].Date
		}
	}
	return model.DateRange{Start: min, End: max}.Dates()
}

// BuildScope 为单一口径构建排班矩阵，只计 is_working=true 的记录
func (b *Builder) BuildScope(records []model.ShiftRecord, scope model.Scope, dates []string) (*model.Grid, error) {
	g, err := model.NewGrid(scope, b.slotMinutes, dates)
	if err != nil {
		return nil, err
	}
	for i := range records {
		r := &records[i]
		if !r.IsWorking || !scope.Matches(r) {
			continue
		}
		g.Inc(r.Slot, r.Date)
	}
	return g, nil
}

// BuildAll 为口径集合中的全部口径构建矩阵，返回口径键 → 矩阵
func (b *Builder) BuildAll(records []model.ShiftRecord, scopes model.ScopeSet) (map[string]*model.Grid, error) {
	if len(records) == 0 {
		return nil, errors.ErrEmptyGrid
	}
	dates := DatesOf(records)

	grids := make(map[string]*model.Grid, 1+len(scopes.Roles)+len(scopes.Employments))
	for _, scope := range scopes.AllScopes() {
		g, err := b.BuildScope(records, scope, dates)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "构建排班矩阵失败: "+scope.Key())
		}
		grids[scope.Key()] = g
	}
	return grids, nil
}

// VerifyRoleSum 校验各主岗位矩阵同格求和等于全机构矩阵
// 复合岗位已从口径集合排除时成立；返回首个不一致的位置描述
func VerifyRoleSum(facility *model.Grid, roleGrids map[string]*model.Grid, scopes model.ScopeSet, compoundPresent bool) (bool, string) {
	if compoundPresent {
		// 存在复合标签的员工不会落入任何主岗位矩阵，逐格相等不成立
		return true, ""
	}
	for slot := 0; slot < facility.SlotsPerDay(); slot++ {
		for i := range facility.Dates {
			sum := 0
			for _, label := range scopes.Roles {
				if g, ok := roleGrids[model.RoleScope(label).Key()]; ok {
					sum += g.At(slot, i)
				}
			}
			if sum != facility.At(slot, i) {
				return false, facility.Dates[i]
			}
		}
	}
	return true, ""
}
