// Package reconcile 校验各口径缺口合计与全机构口径的一致性
//
// 三个视图（全机构/岗位/用工类型）必须出自同一份矩阵与基线；
// 合计超出容差时返回对账错误，不发布互相矛盾的汇总表
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

// Config 对账配置
type Config struct {
	TolerancePct      float64 `json:"tolerance_pct"`       // 相对容差（占全机构缺口比例）
	ToleranceAbsHours float64 `json:"tolerance_abs_hours"` // 绝对容差（小时）
}

// DefaultConfig 返回默认对账配置：1% 或 0.5 小时取大者
func DefaultConfig() Config {
	return Config{TolerancePct: 0.01, ToleranceAbsHours: 0.5}
}

// Validate 校验对账配置
func (c Config) Validate() error {
	if c.TolerancePct < 0 || c.TolerancePct > 1 {
		return errors.InvalidInput("tolerance_pct", "必须在 [0,1] 内")
	}
	if c.ToleranceAbsHours < 0 {
		return errors.InvalidInput("tolerance_abs_hours", "不能为负")
	}
	return nil
}

// Input 对账输入：同一次运行产出的矩阵与汇总
type Input struct {
	ScopeSet model.ScopeSet

	Facility    *model.ShortageMatrix
	Roles       map[string]*model.ShortageMatrix
	Employments map[string]*model.ShortageMatrix

	FacilitySummary     model.ScopeSummary
	RoleSummaries       []model.ScopeSummary
	EmploymentSummaries []model.ScopeSummary
}

// Reconciler 多口径对账器
type Reconciler struct {
	cfg Config
}

// NewReconciler 创建对账器
func NewReconciler(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{cfg: cfg}, nil
}

// Reconcile 校验岗位和用工类型两个维度的缺口合计
// 超出容差返回 RECONCILIATION_FAILED，调用方不得发布汇总表
func (r *Reconciler) Reconcile(in Input) (model.RunSummary, error) {
	summary := model.RunSummary{
		Facility:    in.FacilitySummary,
		Roles:       in.RoleSummaries,
		Employments: in.EmploymentSummaries,
	}

	if err := r.checkMethod(in); err != nil {
		return summary, err
	}

	roleDrift, err := r.checkDimension("role", in.FacilitySummary, in.RoleSummaries)
	summary.RoleDriftHours = roleDrift
	if err != nil {
		return summary, err
	}

	empDrift, err := r.checkDimension("employment", in.FacilitySummary, in.EmploymentSummaries)
	summary.EmploymentDriftHours = empDrift
	if err != nil {
		return summary, err
	}

	return summary, nil
}

// checkMethod 校验全部矩阵出自同一统计方法
func (r *Reconciler) checkMethod(in Input) error {
	if in.Facility == nil {
		return errors.ErrEmptyGrid
	}
	method := in.Facility.Method
	for label, m := range in.Roles {
		if m.Method != method {
			return errors.New(errors.CodeReconciliationFail,
				"岗位 '"+label+"' 的矩阵使用统计方法 "+m.Method+"，与全机构的 "+method+" 不一致")
		}
	}
	for label, m := range in.Employments {
		if m.Method != method {
			return errors.New(errors.CodeReconciliationFail,
				"用工类型 '"+label+"' 的矩阵使用统计方法 "+m.Method+"，与全机构的 "+method+" 不一致")
		}
	}
	return nil
}

// checkDimension 校验单一维度的缺口小时数合计
// 求和使用 decimal 避免浮点累积误差干扰容差判定
func (r *Reconciler) checkDimension(dimension string, facility model.ScopeSummary, scopes []model.ScopeSummary) (float64, error) {
	sum := decimal.Zero
	for _, s := range scopes {
		sum = sum.Add(decimal.NewFromFloat(s.ShortageHours))
	}

	facilityTotal := decimal.NewFromFloat(facility.ShortageHours)
	drift := sum.Sub(facilityTotal).Abs()

	tolerance := decimal.NewFromFloat(r.cfg.ToleranceAbsHours)
	if rel := facilityTotal.Abs().Mul(decimal.NewFromFloat(r.cfg.TolerancePct)); rel.GreaterThan(tolerance) {
		tolerance = rel
	}

	driftHours, _ := drift.Float64()
	if drift.GreaterThan(tolerance) {
		sumHours, _ := sum.Float64()
		return driftHours, errors.ReconciliationFail(dimension, facility.ShortageHours, sumHours, driftHours).
			WithField("offending_scopes", offendingScopes(scopes))
	}
	return driftHours, nil
}

// offendingScopes 返回缺口小时数最大的口径标签，便于定位
func offendingScopes(scopes []model.ScopeSummary) []string {
	labels := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s.ShortageHours > 0 {
			labels = append(labels, s.Scope.Label)
		}
	}
	return labels
}
