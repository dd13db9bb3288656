// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quekou/quekou/internal/config"
	"github.com/quekou/quekou/internal/metrics"
	"github.com/quekou/quekou/internal/repository"
	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/grid"
	"github.com/quekou/quekou/pkg/model"
	"github.com/quekou/quekou/pkg/need"
	"github.com/quekou/quekou/pkg/normalizer"
	"github.com/quekou/quekou/pkg/pipeline"
	"github.com/quekou/quekou/pkg/validator"
)

// AnalysisHandler 缺口分析处理器
type AnalysisHandler struct {
	cfg     config.AnalysisConfig
	records *repository.RecordRepository // 为空时只支持内联数据
	results *repository.ResultRepository
}

// NewAnalysisHandler 创建缺口分析处理器
func NewAnalysisHandler(cfg config.AnalysisConfig, records *repository.RecordRepository, results *repository.ResultRepository) *AnalysisHandler {
	return &AnalysisHandler{cfg: cfg, records: records, results: results}
}

// RowInput 原始排班行输入
type RowInput struct {
	StaffID    string `json:"staff_id"`
	StaffName  string `json:"staff_name,omitempty"`
	Role       string `json:"role"`
	Employment string `json:"employment,omitempty"`
	Date       string `json:"date"` // YYYY-MM-DD
	Code       string `json:"code"`
}

// WorkTypeInput 勤务类型输入
type WorkTypeInput struct {
	Code      string `json:"code"`
	Name      string `json:"name,omitempty"`
	StartTime string `json:"start_time,omitempty"` // HH:MM
	EndTime   string `json:"end_time,omitempty"`   // HH:MM
	IsLeave   bool   `json:"is_leave,omitempty"`
	LeaveKind string `json:"leave_kind,omitempty"` // paid/holiday/training/other
}

// RunOptions 单次运行的参数覆盖
type RunOptions struct {
	SlotMinutes     int     `json:"slot_minutes,omitempty"`
	StatisticMethod string  `json:"statistic_method,omitempty"` // mean/median/percentile_N
	RemoveOutliers  *bool   `json:"remove_outliers,omitempty"`
	IQRMultiplier   float64 `json:"iqr_multiplier,omitempty"`
	MinSample       int     `json:"min_sample,omitempty"`
}

// RunRequest 缺口分析运行请求
// rows/work_types 为空时从数据库按窗口读取
type RunRequest struct {
	Window    model.DateRange `json:"window"`
	Rows      []RowInput      `json:"rows,omitempty"`
	WorkTypes []WorkTypeInput `json:"work_types,omitempty"`
	Options   *RunOptions     `json:"options,omitempty"`
	Persist   bool            `json:"persist,omitempty"`
}

// Run 执行缺口分析
func (h *AnalysisHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if err := req.Window.Validate(); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidTimeRange, "分析窗口无效"))
		return
	}

	in, appErr := h.resolveInput(r, &req)
	if appErr != nil {
		respondError(w, appErr)
		return
	}

	cfg := h.pipelineConfig(req.Window, req.Options)
	p, err := pipeline.New(cfg)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	start := time.Now()
	result, err := p.Run(r.Context(), *in)
	metrics.RecordAnalysisRun(cfg.StatisticMethod, err == nil, time.Since(start))
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	recordRunMetrics(result)

	if req.Persist && h.results != nil {
		if err := h.results.SaveResult(r.Context(), result); err != nil {
			respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "保存分析结果失败"))
			return
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// resolveInput 组装流水线输入：优先内联数据，否则查库
func (h *AnalysisHandler) resolveInput(r *http.Request, req *RunRequest) (*pipeline.Input, *errors.AppError) {
	if len(req.Rows) > 0 {
		if len(req.WorkTypes) == 0 {
			return nil, errors.InvalidInput("work_types", "内联排班行必须附带勤务类型表")
		}
		return &pipeline.Input{
			Rows:      toRawRows(req.Rows),
			WorkTypes: toWorkTypes(req.WorkTypes),
		}, nil
	}

	if h.records == nil {
		return nil, errors.New(errors.CodeInvalidInput, "未配置数据库，必须内联提供排班行")
	}
	rows, err := h.records.ListRows(r.Context(), req.Window)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "读取排班行失败")
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.CodeNotFound, "窗口内没有排班数据")
	}
	workTypes, err := h.records.ListWorkTypes(r.Context())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "读取勤务类型失败")
	}
	return &pipeline.Input{Rows: rows, WorkTypes: workTypes}, nil
}

// pipelineConfig 以服务配置为基础套用单次覆盖
func (h *AnalysisHandler) pipelineConfig(window model.DateRange, opts *RunOptions) pipeline.Config {
	cfg := pipeline.Config{
		SlotMinutes:     h.cfg.SlotMinutes,
		StatisticMethod: h.cfg.StatisticMethod,
		RemoveOutliers:  h.cfg.RemoveOutliers,
		IQRMultiplier:   h.cfg.IQRMultiplier,
		MinSample:       h.cfg.MinSample,
		ReferenceWindow: window,

		AnomalyCeilingHoursPerDay:  h.cfg.AnomalyCeilingHoursPerDay,
		MaxWindowDays:              h.cfg.MaxWindowDays,
		ReconcileTolerancePct:      h.cfg.ReconcileTolerancePct,
		ReconcileToleranceAbsHours: h.cfg.ReconcileToleranceAbsHours,

		Workers:     h.cfg.Workers,
		ScopePolicy: grid.ScopePolicy{Separators: h.cfg.ScopeSeparators},
	}
	if opts == nil {
		return cfg
	}
	if opts.SlotMinutes > 0 {
		cfg.SlotMinutes = opts.SlotMinutes
	}
	if opts.StatisticMethod != "" {
		cfg.StatisticMethod = opts.StatisticMethod
	}
	if opts.RemoveOutliers != nil {
		cfg.RemoveOutliers = *opts.RemoveOutliers
	}
	if opts.IQRMultiplier > 0 {
		cfg.IQRMultiplier = opts.IQRMultiplier
	}
	if opts.MinSample > 0 {
		cfg.MinSample = opts.MinSample
	}
	return cfg
}

// NormalizeRequest 规范化请求
type NormalizeRequest struct {
	SlotMinutes int             `json:"slot_minutes,omitempty"`
	Rows        []RowInput      `json:"rows"`
	WorkTypes   []WorkTypeInput `json:"work_types"`
}

// NormalizeResponse 规范化响应
type NormalizeResponse struct {
	Records     []model.ShiftRecord `json:"records"`
	Diagnostics *model.Diagnostics  `json:"diagnostics"`
}

// Normalize 仅执行排班行规范化，返回时段记录与诊断
func (h *AnalysisHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if len(req.Rows) == 0 {
		respondError(w, errors.InvalidInput("rows", "排班行不能为空"))
		return
	}
	slotMinutes := req.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = h.cfg.SlotMinutes
	}

	n, err := normalizer.New(slotMinutes, model.NewWorkTypeTable(toWorkTypes(req.WorkTypes)))
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	result, err := n.Normalize(toRawRows(req.Rows))
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	metrics.RecordUnknownCodes(len(result.Diagnostics.UnknownCodes))

	respondJSON(w, http.StatusOK, NormalizeResponse{
		Records:     result.Records,
		Diagnostics: result.Diagnostics,
	})
}

// ValidateRequest 排班冲突检测请求
type ValidateRequest struct {
	Rows      []RowInput        `json:"rows"`
	WorkTypes []WorkTypeInput   `json:"work_types"`
	Config    *validator.Config `json:"config,omitempty"`
}

// ValidateResponse 排班冲突检测响应
type ValidateResponse struct {
	Conflicts []validator.Conflict `json:"conflicts"`
	Count     int                  `json:"count"`
}

// Validate 检测排班数据中的冲突：重叠班次、休息不足、工时与连勤超限
func (h *AnalysisHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if len(req.Rows) == 0 {
		respondError(w, errors.InvalidInput("rows", "排班行不能为空"))
		return
	}
	if len(req.WorkTypes) == 0 {
		respondError(w, errors.InvalidInput("work_types", "勤务类型表不能为空"))
		return
	}

	cfg := validator.DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	detector := validator.NewDetector(cfg, model.NewWorkTypeTable(toWorkTypes(req.WorkTypes)))
	conflicts := detector.DetectAll(toRawRows(req.Rows))
	if conflicts == nil {
		conflicts = []validator.Conflict{}
	}

	respondJSON(w, http.StatusOK, ValidateResponse{Conflicts: conflicts, Count: len(conflicts)})
}

// BaselineRequest 需求基线请求
type BaselineRequest struct {
	Window    model.DateRange `json:"window"`
	Rows      []RowInput      `json:"rows"`
	WorkTypes []WorkTypeInput `json:"work_types"`
	Options   *RunOptions     `json:"options,omitempty"`
}

// BaselineResponse 需求基线响应
type BaselineResponse struct {
	Baseline    *model.NeedBaseline `json:"baseline"`
	Diagnostics *model.Diagnostics  `json:"diagnostics"`
}

// Baseline 估算全机构需求基线，不做缺口与对账
func (h *AnalysisHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req BaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if err := req.Window.Validate(); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidTimeRange, "参照窗口无效"))
		return
	}
	if len(req.Rows) == 0 {
		respondError(w, errors.InvalidInput("rows", "排班行不能为空"))
		return
	}

	cfg := h.pipelineConfig(req.Window, req.Options)
	stat, err := need.ParseStatistic(cfg.StatisticMethod)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	n, err := normalizer.New(cfg.SlotMinutes, model.NewWorkTypeTable(toWorkTypes(req.WorkTypes)))
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	norm, err := n.Normalize(toRawRows(req.Rows))
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	builder, err := grid.NewBuilder(cfg.SlotMinutes)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	g, err := builder.BuildScope(norm.Records, model.FacilityScope(), grid.DatesOf(norm.Records))
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	estimator, err := need.NewEstimator(need.Config{
		Statistic:      stat,
		RemoveOutliers: cfg.RemoveOutliers,
		IQRMultiplier:  cfg.IQRMultiplier,
		MinSample:      cfg.MinSample,
	})
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	baseline, diag, err := estimator.Estimate(g, req.Window)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	diag.Merge(norm.Diagnostics)

	respondJSON(w, http.StatusOK, BaselineResponse{Baseline: baseline, Diagnostics: diag})
}

// toRawRows 转换排班行输入
func toRawRows(in []RowInput) []model.RawShiftRow {
	rows := make([]model.RawShiftRow, len(in))
	for i, r := range in {
		rows[i] = model.RawShiftRow{
			StaffID:    r.StaffID,
			StaffName:  r.StaffName,
			Role:       r.Role,
			Employment: r.Employment,
			Date:       r.Date,
			Code:       r.Code,
		}
	}
	return rows
}

// toWorkTypes 转换勤务类型输入
func toWorkTypes(in []WorkTypeInput) []*model.WorkType {
	types := make([]*model.WorkType, len(in))
	for i, t := range in {
		types[i] = &model.WorkType{
			Code:      t.Code,
			Name:      t.Name,
			StartTime: t.StartTime,
			EndTime:   t.EndTime,
			IsLeave:   t.IsLeave,
			LeaveKind: model.LeaveKind(t.LeaveKind),
		}
	}
	return types
}

// recordRunMetrics 上报运行结果指标
func recordRunMetrics(result *model.AnalysisResult) {
	metrics.SetShortageHours(result.Summary.Facility.ShortageHours)
	metrics.SetReconcileDrift("role", result.Summary.RoleDriftHours)
	metrics.SetReconcileDrift("employment", result.Summary.EmploymentDriftHours)
	if result.Diagnostics != nil {
		metrics.RecordUnknownCodes(len(result.Diagnostics.UnknownCodes))
		for _, f := range result.Diagnostics.Findings {
			metrics.RecordAnomalyFinding(string(f.Status))
		}
	}
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
		"fields":  err.Fields,
	})
}

// toAppError 将任意错误折算为应用错误
func toAppError(err error) *errors.AppError {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	return errors.Wrap(err, errors.CodeInternal, "内部错误")
}
