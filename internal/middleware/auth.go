// Package middleware 提供HTTP中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/quekou/quekou/internal/security"
	"github.com/quekou/quekou/pkg/logger"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Manager   *security.Manager
	SkipPaths []string // 跳过认证的路径
}

// Auth 认证中间件
// Manager 为空时直接放行，引擎以开放模式运行
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Manager == nil || config.Manager.Len() == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// 检查是否跳过认证
			for _, path := range config.SkipPaths {
				if path != "" && strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// 提取API密钥
			apiKey := security.ExtractAPIKey(r)
			if apiKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "MISSING_API_KEY", "API密钥未提供")
				return
			}

			// 验证API密钥
			key, err := config.Manager.Validate(apiKey)
			if err != nil {
				logger.Warn().Str("path", r.URL.Path).Err(err).Msg("API密钥验证失败")
				writeAuthError(w, http.StatusUnauthorized, "INVALID_API_KEY", "无效的API密钥")
				return
			}

			// 将访问主体添加到上下文
			ctx := security.WithPrincipal(r.Context(), key)
			if key.Name != "" {
				w.Header().Set("X-API-Client", key.Name)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope 权限范围检查中间件
func RequireScope(scope string, manager *security.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil || manager.Len() == 0 {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := security.PrincipalFrom(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "MISSING_API_KEY", "API密钥未提供")
				return
			}

			if !key.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "权限不足")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders 安全头中间件
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(w, r)
	})
}

// Recovery 恢复中间件（捕获panic）
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().
					Str("path", r.URL.Path).
					Interface("panic", err).
					Msg("请求处理panic")
				writeAuthError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "服务器内部错误")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":true,"code":"` + code + `","message":"` + message + `"}`))
}
