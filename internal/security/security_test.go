package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAPIKey_IsValid(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name     string
		key      *APIKey
		expected bool
	}{
		{
			name:     "有效密钥",
			key:      &APIKey{Enabled: true},
			expected: true,
		},
		{
			name:     "禁用密钥",
			key:      &APIKey{Enabled: false},
			expected: false,
		},
		{
			name:     "未过期密钥",
			key:      &APIKey{Enabled: true, ExpiresAt: &future},
			expected: true,
		},
		{
			name:     "已过期密钥",
			key:      &APIKey{Enabled: true, ExpiresAt: &past},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.key.IsValid(); result != tt.expected {
				t.Errorf("IsValid() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestAPIKey_HasScope(t *testing.T) {
	key := &APIKey{
		Scopes: []string{"analysis", "import"},
	}

	if !key.HasScope("analysis") {
		t.Error("应有analysis权限")
	}
	if !key.HasScope("import") {
		t.Error("应有import权限")
	}
	if key.HasScope("admin") {
		t.Error("不应有admin权限")
	}

	// 测试通配符
	key2 := &APIKey{Scopes: []string{"*"}}
	if !key2.HasScope("anything") {
		t.Error("通配符应匹配任何权限")
	}
}

func TestManager_Validate(t *testing.T) {
	manager := NewManager()

	if err := manager.Register(&APIKey{Key: "pk_test", Name: "测试密钥", Scopes: []string{"analysis"}, Enabled: true}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// 已注册密钥可通过验证
	key, err := manager.Validate("pk_test")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if key.Name != "测试密钥" {
		t.Errorf("key name = %s", key.Name)
	}

	// 未注册密钥验证失败
	if _, err := manager.Validate("pk_unknown"); err != ErrInvalidAPIKey {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}

	// 撤销后验证失败
	manager.Revoke("pk_test")
	if _, err := manager.Validate("pk_test"); err != ErrExpiredAPIKey {
		t.Errorf("expected ErrExpiredAPIKey after revoke, got %v", err)
	}
}

func TestManager_Register_Invalid(t *testing.T) {
	manager := NewManager()

	if err := manager.Register(nil); err != ErrInvalidAPIKey {
		t.Errorf("nil key should be rejected, got %v", err)
	}
	if err := manager.Register(&APIKey{Key: ""}); err != ErrInvalidAPIKey {
		t.Errorf("empty key should be rejected, got %v", err)
	}
}

func TestParseKeySpec(t *testing.T) {
	keys, err := ParseKeySpec("pk_a:报表系统:analysis|import, pk_b:运维 ,pk_c")
	if err != nil {
		t.Fatalf("ParseKeySpec failed: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}

	// 完整条目：密钥+名称+权限
	if keys[0].Key != "pk_a" || keys[0].Name != "报表系统" {
		t.Errorf("key[0] = %+v", keys[0])
	}
	if !keys[0].HasScope("analysis") || !keys[0].HasScope("import") || keys[0].HasScope("admin") {
		t.Errorf("key[0] scopes = %v", keys[0].Scopes)
	}

	// 省略权限时默认通配符
	if keys[1].Name != "运维" || !keys[1].HasScope("anything") {
		t.Errorf("key[1] = %+v", keys[1])
	}
	if keys[2].Name != "" || !keys[2].Enabled {
		t.Errorf("key[2] = %+v", keys[2])
	}

	// 空白条目被忽略
	keys, err = ParseKeySpec(" , ,")
	if err != nil || len(keys) != 0 {
		t.Errorf("blank spec should produce no keys, got %v / %v", keys, err)
	}

	// 密钥为空的条目非法
	if _, err := ParseKeySpec(":名称:scope"); err == nil {
		t.Error("entry without key should fail")
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*http.Request)
		expected string
	}{
		{
			name: "Authorization头",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer pk_bearer")
			},
			expected: "pk_bearer",
		},
		{
			name: "X-API-Key头",
			setup: func(r *http.Request) {
				r.Header.Set("X-API-Key", "pk_header")
			},
			expected: "pk_header",
		},
		{
			name:     "无密钥",
			setup:    func(r *http.Request) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/runs", nil)
			tt.setup(r)
			if got := ExtractAPIKey(r); got != tt.expected {
				t.Errorf("ExtractAPIKey() = %q, expected %q", got, tt.expected)
			}
		})
	}

	// query 参数兜底
	r := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/runs?api_key=pk_query", nil)
	if got := ExtractAPIKey(r); got != "pk_query" {
		t.Errorf("ExtractAPIKey() = %q, expected pk_query", got)
	}
}

func TestPrincipalContext(t *testing.T) {
	key := &APIKey{Key: "pk_ctx", Name: "上下文"}
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	ctx := WithPrincipal(r.Context(), key)
	got, ok := PrincipalFrom(ctx)
	if !ok || got.Name != "上下文" {
		t.Errorf("PrincipalFrom() = %+v, %v", got, ok)
	}

	if _, ok := PrincipalFrom(r.Context()); ok {
		t.Error("empty context should not carry a principal")
	}
}
