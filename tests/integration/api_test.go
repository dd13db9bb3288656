package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quekou/quekou/internal/config"
	"github.com/quekou/quekou/internal/handler"
	"github.com/quekou/quekou/internal/middleware"
	"github.com/quekou/quekou/internal/security"
)

func analysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		SlotMinutes:               60,
		StatisticMethod:           "mean",
		IQRMultiplier:             1.5,
		MinSample:                 1,
		MaxWindowDays:             366,
		AnomalyCeilingHoursPerDay: 240,
		Workers:                   2,
	}
}

// newTestServer 构建带认证中间件的完整路由
func newTestServer(keySpec string) http.Handler {
	analysisHandler := handler.NewAnalysisHandler(analysisConfig(), nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/analysis/run", analysisHandler.Run)
	mux.HandleFunc("/api/v1/analysis/validate", analysisHandler.Validate)

	manager := security.NewManager()
	if keySpec != "" {
		keys, _ := security.ParseKeySpec(keySpec)
		for _, key := range keys {
			_ = manager.Register(key)
		}
	}
	return middleware.Auth(middleware.AuthConfig{
		Manager:   manager,
		SkipPaths: []string{"/health"},
	})(mux)
}

func postBody(t *testing.T, srv http.Handler, path, apiKey string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func validatePayload() map[string]interface{} {
	return map[string]interface{}{
		"rows": []map[string]interface{}{
			{"staff_id": "s1", "role": "介护", "date": "2026-06-01", "code": "日"},
			{"staff_id": "s1", "role": "介护", "date": "2026-06-01", "code": "半"},
		},
		"work_types": []map[string]interface{}{
			{"code": "日", "name": "日勤", "start_time": "09:00", "end_time": "18:00"},
			{"code": "半", "name": "半日", "start_time": "13:00", "end_time": "17:00"},
		},
	}
}

// TestAPI_AuthRequired 启用密钥后未认证请求被拒绝
func TestAPI_AuthRequired(t *testing.T) {
	srv := newTestServer("pk_test:集成测试:*")

	// 无密钥拒绝
	w := postBody(t, srv, "/api/v1/analysis/validate", "", validatePayload())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", w.Code)
	}

	// 错误密钥拒绝
	w = postBody(t, srv, "/api/v1/analysis/validate", "pk_wrong", validatePayload())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	// 正确密钥放行且返回冲突
	w = postBody(t, srv, "/api/v1/analysis/validate", "pk_test", validatePayload())
	if w.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("conflict count = %d, want 1", resp.Count)
	}

	// 跳过路径不需要密钥
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d", rec.Code)
	}
}

// TestAPI_OpenMode 未配置密钥时开放访问
func TestAPI_OpenMode(t *testing.T) {
	srv := newTestServer("")

	w := postBody(t, srv, "/api/v1/analysis/validate", "", validatePayload())
	if w.Code != http.StatusOK {
		t.Errorf("open mode: status = %d, body = %s", w.Code, w.Body.String())
	}
}

// TestAPI_RunRejectsInvalidWindow 分析接口拒绝无效参照窗口
func TestAPI_RunRejectsInvalidWindow(t *testing.T) {
	srv := newTestServer("")

	w := postBody(t, srv, "/api/v1/analysis/run", "", map[string]interface{}{
		"window": map[string]string{"start": "2026-06-14", "end": "2026-06-01"},
		"rows": []map[string]interface{}{
			{"staff_id": "s1", "role": "介护", "date": "2026-06-01", "code": "日"},
		},
		"work_types": []map[string]interface{}{
			{"code": "日", "name": "日勤", "start_time": "09:00", "end_time": "18:00"},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("inverted window: status = %d, want 400", w.Code)
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code == "" {
		t.Error("error response should carry a code")
	}
}
