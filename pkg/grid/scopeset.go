// Package grid 将规整后的排班记录透视为各口径的排班矩阵
package grid

import (
	"sort"
	"strings"

	"github.com/quekou/quekou/pkg/model"
)

// ScopePolicy 口径筛选策略：复合标签分隔符与显式排除名单
type ScopePolicy struct {
	Separators         []string `json:"separators"`          // 复合标签分隔符
	ExcludeRoles       []string `json:"exclude_roles"`       // 显式排除的岗位
	ExcludeEmployments []string `json:"exclude_employments"` // 显式排除的用工类型
}

// DefaultScopePolicy 返回默认策略
func DefaultScopePolicy() ScopePolicy {
	return ScopePolicy{
		Separators: []string{"+", "・", "/", "&", "、"},
	}
}

// BuildScopeSet 从记录中枚举口径集合
// 能按分隔符拆成多个已知基础标签的视为复合标签，从主口径中排除，防止重复计数
func BuildScopeSet(records []model.ShiftRecord, policy ScopePolicy) model.ScopeSet {
	roles := distinct(records, func(r *model.ShiftRecord) string { return r.Role })
	employments := distinct(records, func(r *model.ShiftRecord) string { return r.Employment })

	primaryRoles, compoundRoles := splitCompound(roles, policy.Separators, policy.ExcludeRoles)
	primaryEmps, compoundEmps := splitCompound(employments, policy.Separators, policy.ExcludeEmployments)

	return model.ScopeSet{
		Roles:               primaryRoles,
		Employments:         primaryEmps,
		CompoundRoles:       compoundRoles,
		CompoundEmployments: compoundEmps,
	}
}

// distinct 提取去重后的非空标签
func distinct(records []model.ShiftRecord, key func(*model.ShiftRecord) string) []string {
	set := make(map[string]struct{})
	for i := range records {
		if v := strings.TrimSpace(key(&records[i])); v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// splitCompound 把标签分为主标签与复合标签
func splitCompound(labels, separators, excluded []string) (primary, compound []string) {
	base := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		base[l] = struct{}{}
	}
	excludeSet := make(map[string]struct{}, len(excluded))
	for _, l := range excluded {
		excludeSet[l] = struct{}{}
	}

	for _, l := range labels {
		if _, ok := excludeSet[l]; ok {
			compound = append(compound, l)
			continue
		}
		if isCompound(l, separators, base) {
			compound = append(compound, l)
			continue
		}
		primary = append(primary, l)
	}
	return primary, compound
}

// isCompound 检查标签是否为基础标签的拼接
func isCompound(label string, separators []string, base map[string]struct{}) bool {
	for _, sep := range separators {
		if !strings.Contains(label, sep) {
			continue
		}
		parts := strings.Split(label, sep)
		if len(parts) < 2 {
			continue
		}
		all := true
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" || p == label {
				all = false
				break
			}
			if _, ok := base[p]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
