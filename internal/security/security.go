// Package security 提供API访问控制
package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidAPIKey = errors.New("无效的API密钥")
	ErrExpiredAPIKey = errors.New("API密钥已过期")
)

// APIKey API密钥
type APIKey struct {
	Key       string     `json:"-"` // 不序列化
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"` // 权限范围
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Enabled   bool       `json:"enabled"`
}

// IsValid 检查密钥是否有效
func (k *APIKey) IsValid() bool {
	if !k.Enabled {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// HasScope 检查密钥是否有某权限
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Manager API密钥管理器
type Manager struct {
	keys map[string]*APIKey
	mu   sync.RWMutex
}

// NewManager 创建密钥管理器
func NewManager() *Manager {
	return &Manager{
		keys: make(map[string]*APIKey),
	}
}

// Register 注册密钥
func (m *Manager) Register(key *APIKey) error {
	if key == nil || key.Key == "" {
		return ErrInvalidAPIKey
	}

	m.mu.Lock()
	m.keys[key.Key] = key
	m.mu.Unlock()
	return nil
}

// Validate 验证密钥
func (m *Manager) Validate(key string) (*APIKey, error) {
	m.mu.RLock()
	apiKey, exists := m.keys[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrInvalidAPIKey
	}
	if !apiKey.IsValid() {
		return nil, ErrExpiredAPIKey
	}
	return apiKey, nil
}

// Revoke 撤销密钥
func (m *Manager) Revoke(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if apiKey, exists := m.keys[key]; exists {
		apiKey.Enabled = false
	}
}

// Len 返回已注册密钥数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// ParseKeySpec 解析密钥配置串
// 格式: "key1:名称:scope1|scope2,key2:名称" ，省略权限时授予 "*"
func ParseKeySpec(spec string) ([]*APIKey, error) {
	var keys []*APIKey
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 3)
		if parts[0] == "" {
			return nil, fmt.Errorf("密钥配置条目无效: %q", entry)
		}

		key := &APIKey{Key: parts[0], Scopes: []string{"*"}, Enabled: true}
		if len(parts) > 1 && parts[1] != "" {
			key.Name = parts[1]
		}
		if len(parts) > 2 && parts[2] != "" {
			key.Scopes = strings.Split(parts[2], "|")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ExtractAPIKey 从请求中提取API密钥
func ExtractAPIKey(r *http.Request) string {
	// 1. 从 Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	// 2. 从 X-API-Key header
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	// 3. 从 query parameter
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}

	return ""
}

// principalContextKey 访问主体上下文键
type principalContextKey struct{}

// WithPrincipal 将访问主体添加到上下文
func WithPrincipal(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, principalContextKey{}, key)
}

// PrincipalFrom 从上下文获取访问主体
func PrincipalFrom(ctx context.Context) (*APIKey, bool) {
	key, ok := ctx.Value(principalContextKey{}).(*APIKey)
	return key, ok
}
