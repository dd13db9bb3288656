// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quekou/quekou/pkg/errors"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// APIConfig API配置
type APIConfig struct {
	RateLimit int           `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
	Keys      string        `yaml:"keys"` // "key:名称:scope1|scope2,..."，为空时不启用认证
}

// AnalysisConfig 缺口分析默认配置
// 全部显式传入流水线，运行期间不可变；请求可覆盖其中的统计参数
type AnalysisConfig struct {
	SlotMinutes                int      `yaml:"slot_minutes"`
	StatisticMethod            string   `yaml:"statistic_method"` // mean/median/percentile_N
	RemoveOutliers             bool     `yaml:"remove_outliers"`
	IQRMultiplier              float64  `yaml:"iqr_multiplier"`
	MinSample                  int      `yaml:"min_sample"`
	MaxWindowDays              int      `yaml:"max_window_days"`
	AnomalyCeilingHoursPerDay  float64  `yaml:"anomaly_ceiling_hours_per_day"`
	ReconcileTolerancePct      float64  `yaml:"reconcile_tolerance_pct"`
	ReconcileToleranceAbsHours float64  `yaml:"reconcile_tolerance_abs_hours"`
	Workers                    int      `yaml:"workers"`
	ScopeSeparators            []string `yaml:"scope_separators"`
}

// Validate 校验分析配置，非法值在启动时即拒绝
func (c *AnalysisConfig) Validate() error {
	ve := &errors.ValidationErrors{}
	if c.SlotMinutes <= 0 || 1440%c.SlotMinutes != 0 {
		ve.Add("slot_minutes", "必须整除1440")
	}
	switch {
	case c.StatisticMethod == "mean" || c.StatisticMethod == "median":
	case strings.HasPrefix(c.StatisticMethod, "percentile_"):
		p, err := strconv.ParseFloat(strings.TrimPrefix(c.StatisticMethod, "percentile_"), 64)
		if err != nil || p <= 0 || p >= 100 {
			ve.Add("statistic_method", "percentile_N 的 N 必须在 (0,100) 内")
		}
	default:
		ve.Add("statistic_method", "仅支持 mean/median/percentile_N")
	}
	if c.RemoveOutliers && c.IQRMultiplier <= 0 {
		ve.Add("iqr_multiplier", "启用离群值剔除时必须为正数")
	}
	if c.MinSample < 1 {
		ve.Add("min_sample", "必须不小于1")
	}
	if c.MaxWindowDays <= 0 {
		ve.Add("max_window_days", "必须为正数")
	}
	if c.AnomalyCeilingHoursPerDay <= 0 {
		ve.Add("anomaly_ceiling_hours_per_day", "必须为正数")
	}
	if c.Workers <= 0 {
		ve.Add("workers", "必须为正数")
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "quekou"),
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnvInt("APP_PORT", 7031),
			LogLevel: getEnv("APP_LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "quekou"),
			User:            getEnv("DB_USER", "quekou"),
			Password:        getEnv("DB_PASSWORD", "quekou123"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		API: APIConfig{
			RateLimit: getEnvInt("API_RATE_LIMIT", 100),
			Timeout:   getEnvDuration("API_TIMEOUT", 30*time.Second),
			Keys:      getEnv("API_KEYS", ""),
		},
		Analysis: AnalysisConfig{
			SlotMinutes:                getEnvInt("ANALYSIS_SLOT_MINUTES", 30),
			StatisticMethod:            getEnv("ANALYSIS_STATISTIC_METHOD", "median"),
			RemoveOutliers:             getEnvBool("ANALYSIS_REMOVE_OUTLIERS", true),
			IQRMultiplier:              getEnvFloat("ANALYSIS_IQR_MULTIPLIER", 1.5),
			MinSample:                  getEnvInt("ANALYSIS_MIN_SAMPLE", 3),
			MaxWindowDays:              getEnvInt("ANALYSIS_MAX_WINDOW_DAYS", 366),
			AnomalyCeilingHoursPerDay:  getEnvFloat("ANALYSIS_ANOMALY_CEILING_HOURS", 240),
			ReconcileTolerancePct:      getEnvFloat("ANALYSIS_RECONCILE_TOLERANCE_PCT", 0.01),
			ReconcileToleranceAbsHours: getEnvFloat("ANALYSIS_RECONCILE_TOLERANCE_HOURS", 0.5),
			Workers:                    getEnvInt("ANALYSIS_WORKERS", 4),
			ScopeSeparators:            getEnvList("ANALYSIS_SCOPE_SEPARATORS", []string{"+", "・", "/", "&", "、"}),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Analysis.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsTest 检查是否为测试环境
func (c *Config) IsTest() bool {
	return c.App.Env == "test"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
