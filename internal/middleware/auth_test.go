package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quekou/quekou/internal/security"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	manager := security.NewManager()
	_ = manager.Register(&security.APIKey{Key: "pk_ok", Name: "测试", Scopes: []string{"*"}, Enabled: true})

	handler := Auth(AuthConfig{Manager: manager, SkipPaths: []string{"/health"}})(okHandler())

	// 有效密钥放行
	r := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/runs", nil)
	r.Header.Set("X-API-Key", "pk_ok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("valid key: status = %d", w.Code)
	}
	if w.Header().Get("X-API-Client") != "测试" {
		t.Errorf("X-API-Client = %q", w.Header().Get("X-API-Client"))
	}

	// 缺少密钥拒绝
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/runs", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, expected 401", w.Code)
	}

	// 无效密钥拒绝
	r = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/runs", nil)
	r.Header.Set("X-API-Key", "pk_bad")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("invalid key: status = %d, expected 401", w.Code)
	}

	// 跳过路径无需密钥
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("skip path: status = %d", w.Code)
	}
}

func TestAuth_OpenMode(t *testing.T) {
	// 未配置任何密钥时以开放模式放行
	handler := Auth(AuthConfig{})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/analysis/run", nil))
	if w.Code != http.StatusOK {
		t.Errorf("open mode: status = %d", w.Code)
	}
}

func TestRequireScope(t *testing.T) {
	manager := security.NewManager()
	readonly := &security.APIKey{Key: "pk_ro", Scopes: []string{"analysis"}, Enabled: true}
	_ = manager.Register(readonly)

	handler := RequireScope("import", manager)(okHandler())

	// 权限不足拒绝
	r := httptest.NewRequest(http.MethodPost, "/api/v1/data/import", nil)
	r = r.WithContext(security.WithPrincipal(r.Context(), readonly))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("insufficient scope: status = %d, expected 403", w.Code)
	}

	// 拥有权限放行
	full := &security.APIKey{Key: "pk_full", Scopes: []string{"*"}, Enabled: true}
	r = httptest.NewRequest(http.MethodPost, "/api/v1/data/import", nil)
	r = r.WithContext(security.WithPrincipal(r.Context(), full))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("full scope: status = %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("panic: status = %d, expected 500", w.Code)
	}
}
