package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/quekou/quekou/internal/repository"
	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

// DataHandler 排班数据与历史运行处理器
type DataHandler struct {
	records *repository.RecordRepository
	results *repository.ResultRepository
}

// NewDataHandler 创建数据处理器
func NewDataHandler(records *repository.RecordRepository, results *repository.ResultRepository) *DataHandler {
	return &DataHandler{records: records, results: results}
}

// ImportRequest 排班数据导入请求
type ImportRequest struct {
	Rows      []RowInput      `json:"rows,omitempty"`
	WorkTypes []WorkTypeInput `json:"work_types,omitempty"`
}

// ImportResponse 导入响应
type ImportResponse struct {
	RowsImported      int `json:"rows_imported"`
	WorkTypesImported int `json:"work_types_imported"`
}

// Import 导入排班行与勤务类型
func (h *DataHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}
	if h.records == nil {
		respondError(w, errors.New(errors.CodeInvalidInput, "未配置数据库"))
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if len(req.Rows) == 0 && len(req.WorkTypes) == 0 {
		respondError(w, errors.New(errors.CodeInvalidInput, "rows 与 work_types 不能同时为空"))
		return
	}
	if appErr := validateImportRows(req.Rows); appErr != nil {
		respondError(w, appErr)
		return
	}

	for _, t := range toWorkTypes(req.WorkTypes) {
		if err := h.records.UpsertWorkType(r.Context(), t); err != nil {
			respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "写入勤务类型失败"))
			return
		}
	}
	if len(req.Rows) > 0 {
		if err := h.records.BulkInsertRows(r.Context(), toRawRows(req.Rows)); err != nil {
			respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "写入排班行失败"))
			return
		}
	}

	respondJSON(w, http.StatusOK, ImportResponse{
		RowsImported:      len(req.Rows),
		WorkTypesImported: len(req.WorkTypes),
	})
}

// validateImportRows 校验导入行
func validateImportRows(rows []RowInput) *errors.AppError {
	ve := &errors.ValidationErrors{}
	for i, row := range rows {
		if row.StaffID == "" {
			ve.Add("rows["+strconv.Itoa(i)+"].staff_id", "员工ID不能为空")
		}
		if row.Code == "" {
			ve.Add("rows["+strconv.Itoa(i)+"].code", "班次代码不能为空")
		}
		if _, err := model.ParseDate(row.Date); err != nil {
			ve.Add("rows["+strconv.Itoa(i)+"].date", "日期格式无效，应为YYYY-MM-DD")
		}
		if ve.HasErrors() && i >= 19 {
			break // 避免超长错误列表
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// ListRuns 分页列出历史分析运行
func (h *DataHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	if h.results == nil {
		respondError(w, errors.New(errors.CodeInvalidInput, "未配置数据库"))
		return
	}

	q := r.URL.Query()
	filter := repository.DefaultListFilter()
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter = filter.WithLimit(limit)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			filter = filter.WithOffset(offset)
		}
	}
	if start, end := q.Get("start"), q.Get("end"); start != "" || end != "" {
		filter = filter.WithDateRange(start, end)
	}
	if v := q.Get("scope"); v != "" {
		filter = filter.WithScope(v)
	}
	if v := q.Get("order_by"); v != "" {
		filter = filter.WithOrder(v, q.Get("order_dir"))
	}

	runs, err := h.results.ListRuns(r.Context(), filter)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询运行列表失败"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun 按ID查询历史分析运行
// 路径格式: /api/v1/analysis/runs/{id}
func (h *DataHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	if h.results == nil {
		respondError(w, errors.New(errors.CodeInvalidInput, "未配置数据库"))
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/analysis/runs/")
	runID, err := uuid.Parse(idStr)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的运行ID格式"))
		return
	}

	run, err := h.results.GetRun(r.Context(), runID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeDatabaseError, "查询运行失败"))
		return
	}
	if run == nil {
		respondError(w, errors.NotFound("analysis_run", idStr))
		return
	}
	respondJSON(w, http.StatusOK, run)
}
