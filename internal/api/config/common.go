package config

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Email    EmailConfig    `mapstructure:"email"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Chat     ChatConfig     `mapstructure:"chat"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Logstash LogstashConfig `mapstructure:"logstash"`
	Cron     CronConfig     `mapstructure:"cron"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	InternalEndpoint string `mapstructure:"internal_endpoint"`
	ExternalEndpoint string `mapstructure:"external_endpoint"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	MainBucket       string `mapstructure:"main_bucket"`
	InternalUseSSL   bool   `mapstructure:"internal_use_ssl"`
	ExternalUseSSL   bool   `mapstructure:"external_use_ssl"`
}

// EmailConfig 邮件 HTTP 接口配置
type EmailConfig struct {
	URL         string `mapstructure:"url"`
	ApiKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	OpsMailbox  string `mapstructure:"ops_mailbox"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

// UploadConfig 附件上传白名单
type UploadConfig struct {
	MaxSize             string   `mapstructure:"max_size"`
	AllowedMimePrefixes []string `mapstructure:"allowed_mime_prefixes"`
	ThumbnailSize       int      `mapstructure:"thumbnail_size"`
	MaxConcurrent       int      `mapstructure:"max_concurrent"`
}

// ChatConfig 会话相关参数
type ChatConfig struct {
	PreviewLength       int     `mapstructure:"preview_length"`
	ReconcileWindowSec  int     `mapstructure:"reconcile_window_sec"`
	PollIntervalSec     int     `mapstructure:"poll_interval_sec"`
	SnapshotLimit       int64   `mapstructure:"snapshot_limit"`
	SendRatePerSec      float64 `mapstructure:"send_rate_per_sec"`
	SendBurst           int     `mapstructure:"send_burst"`
	WriteTimeoutSec     int     `mapstructure:"write_timeout_sec"`
	NotifyEmailsEnabled bool    `mapstructure:"notify_emails_enabled"`
}

type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	Issuer          string `mapstructure:"issuer"`
	ExpirationHours int    `mapstructure:"expiration_hours"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// CronConfig 定时任务配置
type CronConfig struct {
	MediaCleanupSpec string `mapstructure:"media_cleanup_spec"`
	MediaTTLHours    int    `mapstructure:"media_ttl_hours"`
}

// MaxSizeBytes 解析 "25MB" 或纯数字形式的大小限制
func (c UploadConfig) MaxSizeBytes() int64 {
	raw := strings.TrimSpace(c.MaxSize)
	if v, err := humanize.ParseBytes(raw); err == nil {
		return int64(v)
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	return defaultMaxUploadBytes
}
