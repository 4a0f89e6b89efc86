package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

const defaultMaxUploadBytes = 25 << 20

// EnvPrefix 环境变量前缀，例如 TRADELINK_MONGO_URL
const EnvPrefix = "TRADELINK"

// LoadConfig 从文件加载配置并填充到 Cfg，环境变量优先
func LoadConfig() error {
	_ = godotenv.Load(".env")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("upload.max_size", "25MB")
	viper.SetDefault("upload.allowed_mime_prefixes", []string{"image/", "video/", "audio/", "application/pdf"})
	viper.SetDefault("upload.thumbnail_size", 320)
	viper.SetDefault("upload.max_concurrent", 4)
	viper.SetDefault("chat.preview_length", 80)
	viper.SetDefault("chat.reconcile_window_sec", 30)
	viper.SetDefault("chat.poll_interval_sec", 15)
	viper.SetDefault("chat.snapshot_limit", 2000)
	viper.SetDefault("chat.send_rate_per_sec", 2)
	viper.SetDefault("chat.send_burst", 10)
	viper.SetDefault("chat.write_timeout_sec", 10)
	viper.SetDefault("email.timeout_sec", 10)
	viper.SetDefault("jwt.issuer", "tradelink")
	viper.SetDefault("jwt.expiration_hours", 24)
	viper.SetDefault("cron.media_cleanup_spec", "0 0 * * * *")
	viper.SetDefault("cron.media_ttl_hours", 24)
}
