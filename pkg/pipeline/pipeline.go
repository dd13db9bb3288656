// Package pipeline 编排一次完整的缺口分析运行
//
// 规整 → 透视 → 基线估计 → 缺口计算 → 多口径对账 → 异常守卫
// 每次运行持有全新的中间产物，阶段之间只传不可变工件，没有跨运行的可变状态
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/grid"
	"github.com/quekou/quekou/pkg/guard"
	"github.com/quekou/quekou/pkg/logger"
	"github.com/quekou/quekou/pkg/model"
	"github.com/quekou/quekou/pkg/need"
	"github.com/quekou/quekou/pkg/normalizer"
	"github.com/quekou/quekou/pkg/reconcile"
	"github.com/quekou/quekou/pkg/shortage"
	"github.com/quekou/quekou/pkg/stats"
)

// Config 一次分析运行的完整配置，运行期间不可变
type Config struct {
	SlotMinutes     int             `json:"slot_minutes"`
	StatisticMethod string          `json:"statistic_method"` // mean/median/percentile_N
	RemoveOutliers  bool            `json:"remove_outliers"`
	IQRMultiplier   float64         `json:"iqr_multiplier"`
	MinSample       int             `json:"min_sample"`
	ReferenceWindow model.DateRange `json:"reference_window"`

	AnomalyCeilingHoursPerDay  float64 `json:"anomaly_ceiling_hours_per_day"`
	MaxWindowDays              int     `json:"max_window_days"`
	ReconcileTolerancePct      float64 `json:"reconcile_tolerance_pct"`
	ReconcileToleranceAbsHours float64 `json:"reconcile_tolerance_abs_hours"`

	Workers     int              `json:"workers"`
	ScopePolicy grid.ScopePolicy `json:"scope_policy"`
}

// Validate 校验配置并解析统计方法
func (c *Config) Validate() (need.Statistic, error) {
	if c.SlotMinutes <= 0 || 1440%c.SlotMinutes != 0 {
		return need.Statistic{}, errors.InvalidInput("slot_minutes", "必须整除1440")
	}
	stat, err := need.ParseStatistic(c.StatisticMethod)
	if err != nil {
		return need.Statistic{}, err
	}
	if err := c.ReferenceWindow.Validate(); err != nil {
		return need.Statistic{}, errors.Wrap(err, errors.CodeInvalidTimeRange, "参照窗口无效")
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MinSample <= 0 {
		c.MinSample = 3
	}
	if len(c.ScopePolicy.Separators) == 0 {
		c.ScopePolicy = grid.DefaultScopePolicy()
	}
	return stat, nil
}

// Input 分析输入：原始排班行 + 勤务类型表
type Input struct {
	Rows      []model.RawShiftRow `json:"rows"`
	WorkTypes []*model.WorkType   `json:"work_types"`
}

// Pipeline 缺口分析流水线
type Pipeline struct {
	cfg  Config
	stat need.Statistic
	log  *logger.AnalysisLogger
}

// New 创建流水线
func New(cfg Config) (*Pipeline, error) {
	stat, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, stat: stat, log: logger.NewAnalysisLogger()}, nil
}

// scopeResult 单口径计算结果，失败不影响其他口径
type scopeResult struct {
	scope    model.Scope
	grid     *model.Grid
	baseline *model.NeedBaseline
	matrix   *model.ShortageMatrix
	summary  model.ScopeSummary
	diag     *model.Diagnostics
	err      error
}

// Run 执行一次完整的缺口分析
func (p *Pipeline) Run(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	runID := uuid.New()
	startedAt := time.Now()

	g, err := guard.NewGuard(guard.Config{
		CeilingHoursPerDay: p.cfg.AnomalyCeilingHoursPerDay,
		MaxWindowDays:      p.cfg.MaxWindowDays,
	})
	if err != nil {
		return nil, err
	}
	if err := g.CheckWindow(p.cfg.ReferenceWindow); err != nil {
		return nil, err
	}

	// 阶段一：规整
	stageStart := time.Now()
	norm, err := normalizer.New(p.cfg.SlotMinutes, model.NewWorkTypeTable(in.WorkTypes))
	if err != nil {
		return nil, err
	}
	normalized, err := norm.Normalize(in.Rows)
	if err != nil {
		return nil, err
	}
	if len(normalized.Records) == 0 {
		return nil, errors.ErrEmptyGrid
	}
	diagnostics := normalized.Diagnostics
	p.log.StageDone(runID.String(), "normalize", time.Since(stageStart))

	// 阶段二：口径枚举
	scopeSet := grid.BuildScopeSet(normalized.Records, p.cfg.ScopePolicy)
	scopes := scopeSet.AllScopes()
	p.log.StartRun(runID.String(), len(normalized.Records), len(scopes))

	// 阶段三：逐口径并行计算（矩阵 → 基线 → 缺口），互不影响
	stageStart = time.Now()
	results, err := p.computeScopes(ctx, normalized.Records, scopeSet, scopes)
	if err != nil {
		return nil, err
	}
	p.log.StageDone(runID.String(), "compute", time.Since(stageStart))

	// 口径级错误收集后一并上报，不中断其他口径
	byKey := make(map[string]*scopeResult, len(results))
	for i := range results {
		r := &results[i]
		if r.err != nil {
			diagnostics.Warnings = append(diagnostics.Warnings,
				"口径 "+r.scope.Key()+" 计算失败: "+r.err.Error())
			continue
		}
		diagnostics.Merge(r.diag)
		byKey[r.scope.Key()] = r
	}

	facility, ok := byKey[model.FacilityScope().Key()]
	if !ok {
		return nil, errors.New(errors.CodeInternal, "全机构口径计算失败，无法产出结果")
	}

	// 主岗位矩阵同格求和应等于全机构矩阵（复合标签已排除时）
	p.verifyRoleSum(facility, byKey, scopeSet, diagnostics)

	// 阶段四：异常守卫
	if err := g.BeginValidation(); err != nil {
		return nil, err
	}
	var findings []model.AnomalyFinding
	for _, key := range sortedKeys(byKey) {
		r := byKey[key]
		fs := g.ValidateScope(r.baseline, &r.summary, p.cfg.ReferenceWindow)
		for _, f := range fs {
			if f.Status == model.StatusFlagged {
				p.log.AnomalyFlagged(runID.String(), f.Scope, f.Reason)
			}
		}
		findings = append(findings, fs...)
	}
	diagnostics.Findings = append(diagnostics.Findings, findings...)

	// Rejected 口径不写入输出
	for key, r := range byKey {
		if r.summary.Status == model.StatusRejected && r.scope.Kind != model.ScopeFacility {
			delete(byKey, key)
		}
	}

	runState := g.Finish(findings)
	if runState == guard.StateRejected {
		return nil, errors.AnomalyRejected(model.FacilityScope().Key(),
			"全机构结果未通过合理性校验").WithField("findings", findings)
	}

	// 阶段五：多口径对账，超出容差不发布汇总
	stageStart = time.Now()
	summary, err := p.reconcileScopes(facility, byKey, scopeSet)
	if err != nil {
		return nil, err
	}
	p.log.StageDone(runID.String(), "reconcile", time.Since(stageStart))

	result := p.assemble(runID, startedAt, facility, byKey, scopeSet, summary, diagnostics)
	p.log.RunComplete(runID.String(), time.Since(startedAt), summary.Facility.ShortageHours)
	return result, nil
}

// computeScopes 在工作池上并行计算各口径
func (p *Pipeline) computeScopes(ctx context.Context, records []model.ShiftRecord, scopeSet model.ScopeSet, scopes []model.Scope) ([]scopeResult, error) {
	builder, err := grid.NewBuilder(p.cfg.SlotMinutes)
	if err != nil {
		return nil, err
	}
	estimator, err := need.NewEstimator(need.Config{
		Statistic:      p.stat,
		RemoveOutliers: p.cfg.RemoveOutliers,
		IQRMultiplier:  p.cfg.IQRMultiplier,
		MinSample:      p.cfg.MinSample,
	})
	if err != nil {
		return nil, err
	}
	calculator, err := shortage.NewCalculator(p.cfg.SlotMinutes)
	if err != nil {
		return nil, err
	}

	dates := grid.DatesOf(records)
	results := make([]scopeResult, len(scopes))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.Workers)

	for i, scope := range scopes {
		i, scope := i, scope
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			default:
			}

			r := scopeResult{scope: scope}
			r.grid, r.err = builder.BuildScope(records, scope, dates)
			if r.err == nil {
				r.baseline, r.diag, r.err = estimator.Estimate(r.grid, p.cfg.ReferenceWindow)
			}
			if r.err == nil {
				r.matrix, r.err = calculator.Compute(r.grid, r.baseline)
			}
			if r.err == nil {
				r.summary = calculator.Summarize(r.matrix)
			}

			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, errors.CodeTimeout, "口径计算被取消")
	}
	return results, nil
}

// verifyRoleSum 校验岗位矩阵求和与全机构矩阵逐格一致
func (p *Pipeline) verifyRoleSum(facility *scopeResult, byKey map[string]*scopeResult, scopeSet model.ScopeSet, diag *model.Diagnostics) {
	roleGrids := make(map[string]*model.Grid)
	for _, label := range scopeSet.Roles {
		key := model.RoleScope(label).Key()
		if r, ok := byKey[key]; ok {
			roleGrids[key] = r.grid
		}
	}
	compound := len(scopeSet.CompoundRoles) > 0
	if ok, at := grid.VerifyRoleSum(facility.grid, roleGrids, scopeSet, compound); !ok {
		diag.Warnings = append(diag.Warnings, "岗位矩阵求和与全机构矩阵不一致，首个偏差日期: "+at)
	}
}

// reconcileScopes 汇总三个视图并对账
func (p *Pipeline) reconcileScopes(facility *scopeResult, byKey map[string]*scopeResult, scopeSet model.ScopeSet) (model.RunSummary, error) {
	cfg := reconcile.Config{
		TolerancePct:      p.cfg.ReconcileTolerancePct,
		ToleranceAbsHours: p.cfg.ReconcileToleranceAbsHours,
	}
	if cfg.TolerancePct == 0 && cfg.ToleranceAbsHours == 0 {
		cfg = reconcile.DefaultConfig()
	}
	reconciler, err := reconcile.NewReconciler(cfg)
	if err != nil {
		return model.RunSummary{}, err
	}

	in := reconcile.Input{
		ScopeSet:        scopeSet,
		Facility:        facility.matrix,
		Roles:           make(map[string]*model.ShortageMatrix),
		Employments:     make(map[string]*model.ShortageMatrix),
		FacilitySummary: facility.summary,
	}
	for _, label := range scopeSet.Roles {
		if r, ok := byKey[model.RoleScope(label).Key()]; ok {
			in.Roles[label] = r.matrix
			in.RoleSummaries = append(in.RoleSummaries, r.summary)
		}
	}
	for _, label := range scopeSet.Employments {
		if r, ok := byKey[model.EmploymentScope(label).Key()]; ok {
			in.Employments[label] = r.matrix
			in.EmploymentSummaries = append(in.EmploymentSummaries, r.summary)
		}
	}

	return reconciler.Reconcile(in)
}

// assemble 组装最终产物
func (p *Pipeline) assemble(runID uuid.UUID, startedAt time.Time, facility *scopeResult, byKey map[string]*scopeResult, scopeSet model.ScopeSet, summary model.RunSummary, diag *model.Diagnostics) *model.AnalysisResult {
	result := &model.AnalysisResult{
		RunID:       runID,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		ScopeSet:    scopeSet,
		Window:      p.cfg.ReferenceWindow,
		Analyzed:    facility.grid.Window(),
		Method:      p.stat.String(),
		Facility:    facility.matrix,
		Roles:       make(map[string]*model.ShortageMatrix),
		Employments: make(map[string]*model.ShortageMatrix),
		Baselines:   make(map[string]*model.NeedBaseline),
		Summary:     summary,
		Profile:     stats.NewAnalyzer().Analyze(facility.matrix, summary.Roles),
		Diagnostics: diag,
	}
	for key, r := range byKey {
		result.Baselines[key] = r.baseline
		switch r.scope.Kind {
		case model.ScopeRole:
			result.Roles[r.scope.Label] = r.matrix
		case model.ScopeEmployment:
			result.Employments[r.scope.Label] = r.matrix
		}
	}
	return result
}

// sortedKeys 返回排序后的口径键，保证校验顺序确定
func sortedKeys(m map[string]*scopeResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
