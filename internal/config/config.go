package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 主配置结构
type Config struct {
	App      App     `yaml:"app"`
	Server   Server  `yaml:"server"`
	URL      URL     `yaml:"url"`
	Database DB      `yaml:"database"`
	Ledger   Ledger  `yaml:"ledger"`
	Cache    Cache   `yaml:"cache"`
	Auth     Auth    `yaml:"auth"`
	Log      Log     `yaml:"log"`
	Docs     Docs    `yaml:"docs"`
	Metrics  Metrics `yaml:"metrics"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
}

// 服务器配置
type Server struct {
	Port           int      `yaml:"port"`
	ReadTimeout    int      `yaml:"read_timeout"`
	WriteTimeout   int      `yaml:"write_timeout"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// 短链接配置
type URL struct {
	// Domain 短链接前缀，例如 http://localhost:3000/url
	Domain     string `yaml:"domain"`
	CodeLength int    `yaml:"code_length"`
}

// 数据库配置，DSN 非空时优先使用
type DB struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

// 访问统计存储后端
type Ledger struct {
	Backend string `yaml:"backend"`
}

// 缓存配置（Redis）
type Cache struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// 认证配置，Secret 为空时管理接口不鉴权
type Auth struct {
	Secret          string `yaml:"secret"`
	Issuer          string `yaml:"issuer"`
	ExpirationHours int    `yaml:"expiration_hours"`
}

// 日志配置
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// 文档配置
type Docs struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

// 监控配置
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LedgerDatabase = "database"
	LedgerRedis    = "redis"
)

var ErrMissingDomain = errors.New("url.domain (URL_SHORTENER_DOMAIN) 未配置")

// Load 加载配置：YAML 文件 -> .env -> 环境变量
// 配置文件不存在时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	_ = godotenv.Load() // .env 不存在时忽略

	applyEnv(&cfg, newEnv())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "shorturl-service")
	v.SetDefault("APP_MODE", "debug")
	v.SetDefault("PORT", 3000)
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SHORT_CODE_LENGTH", 10)
	v.SetDefault("DATABASE_DRIVER", DriverMySQL)
	v.SetDefault("DATABASE_CHARSET", "utf8mb4")
	v.SetDefault("LEDGER_BACKEND", LedgerDatabase)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("AUTH_ISSUER", "shorturl-service")
	v.SetDefault("AUTH_EXPIRATION_HOURS", 24)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "./logs/app.log")
	v.SetDefault("LOG_MAX_SIZE", 10)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE", 30)
	v.SetDefault("DOCS_SPEC", "./api/openapi.yaml")
	v.SetDefault("METRICS_PATH", "/metrics")
	return v
}

// applyEnv 环境变量覆盖文件配置；文件中未设置的字段使用默认值
func applyEnv(cfg *Config, v *viper.Viper) {
	setString(&cfg.App.Name, v, "APP_NAME")
	setString(&cfg.App.Mode, v, "APP_MODE")
	setString(&cfg.App.Version, v, "APP_VERSION")

	setInt(&cfg.Server.Port, v, "PORT")
	setInt(&cfg.Server.ReadTimeout, v, "SERVER_READ_TIMEOUT")
	setInt(&cfg.Server.WriteTimeout, v, "SERVER_WRITE_TIMEOUT")
	if proxies := v.GetString("TRUSTED_PROXIES"); proxies != "" {
		cfg.Server.TrustedProxies = splitList(proxies)
	}

	setString(&cfg.URL.Domain, v, "URL_SHORTENER_DOMAIN")
	cfg.URL.Domain = strings.TrimRight(cfg.URL.Domain, "/")
	setInt(&cfg.URL.CodeLength, v, "SHORT_CODE_LENGTH")

	setString(&cfg.Database.Driver, v, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, v, "DATABASE_URL")
	setString(&cfg.Database.Host, v, "DATABASE_HOST")
	setInt(&cfg.Database.Port, v, "DATABASE_PORT")
	setString(&cfg.Database.User, v, "DATABASE_USER")
	setString(&cfg.Database.Password, v, "DATABASE_PASSWORD")
	setString(&cfg.Database.Name, v, "DATABASE_NAME")
	setString(&cfg.Database.Charset, v, "DATABASE_CHARSET")

	setString(&cfg.Ledger.Backend, v, "LEDGER_BACKEND")

	setString(&cfg.Cache.Host, v, "REDIS_HOST")
	setInt(&cfg.Cache.Port, v, "REDIS_PORT")
	setString(&cfg.Cache.Password, v, "REDIS_PASSWORD")
	setInt(&cfg.Cache.DB, v, "REDIS_DB")

	setString(&cfg.Auth.Secret, v, "AUTH_SECRET")
	setString(&cfg.Auth.Issuer, v, "AUTH_ISSUER")
	setInt(&cfg.Auth.ExpirationHours, v, "AUTH_EXPIRATION_HOURS")

	setString(&cfg.Log.Level, v, "LOG_LEVEL")
	setString(&cfg.Log.File, v, "LOG_FILE")
	setInt(&cfg.Log.MaxSize, v, "LOG_MAX_SIZE")
	setInt(&cfg.Log.MaxBackups, v, "LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAge, v, "LOG_MAX_AGE")

	if v.IsSet("DOCS_ENABLED") {
		cfg.Docs.Enabled = v.GetBool("DOCS_ENABLED")
	}
	setString(&cfg.Docs.Spec, v, "DOCS_SPEC")
	if v.IsSet("METRICS_ENABLED") {
		cfg.Metrics.Enabled = v.GetBool("METRICS_ENABLED")
	}
	setString(&cfg.Metrics.Path, v, "METRICS_PATH")
}

// 显式设置的环境变量总是生效，默认值只填补空字段
func setString(dst *string, v *viper.Viper, key string) {
	if _, ok := os.LookupEnv(key); ok || *dst == "" {
		*dst = v.GetString(key)
	}
}

func setInt(dst *int, v *viper.Viper, key string) {
	if _, ok := os.LookupEnv(key); ok || *dst == 0 {
		*dst = v.GetInt(key)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.URL.Domain == "" {
		return ErrMissingDomain
	}
	if c.URL.CodeLength <= 0 {
		return fmt.Errorf("短码长度必须大于 0: %d", c.URL.CodeLength)
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Ledger.Backend {
	case LedgerDatabase:
	case LedgerRedis:
		if c.Cache.Host == "" {
			return errors.New("ledger.backend=redis 需要配置 REDIS_HOST")
		}
	default:
		return fmt.Errorf("不支持的统计存储后端: %q", c.Ledger.Backend)
	}
	return nil
}

// IsProduction 是否为生产模式
func (c *Config) IsProduction() bool {
	return c.App.Mode == "production" || c.App.Mode == "release"
}

// ShortURL 由短码拼接完整短链接
func (u URL) ShortURL(code string) string {
	return u.Domain + "/" + code
}
