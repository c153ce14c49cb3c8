package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Storage  StorageConfig
	Device   DeviceConfig
}

type ServerConfig struct {
	Address  string `mapstructure:"address"`
	HTTPPort string `mapstructure:"http_port"`
}

type DatabaseConfig struct {
	// "mysql" | "postgres" | "" (без БД, in-memory режим)
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" | "json"
	File   string `mapstructure:"file"`
}

type StorageConfig struct {
	// каталог для загруженных медиафайлов
	UploadDir string `mapstructure:"upload_dir"`
}

type DeviceConfig struct {
	// окно, в течение которого старый токен ещё принимается после ротации
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// Load читает mediactl.yaml (или путь из MEDIACTL_CONFIG) + env-переменные
// вида MEDIACTL_SERVER_HTTP_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("storage.upload_dir", "uploads/videos")
	v.SetDefault("device.grace_period", 5*time.Minute)

	v.SetEnvPrefix("MEDIACTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mediactl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mediactl")
	}

	if err := v.ReadInConfig(); err != nil {
		// отсутствие файла не фатально — работаем на defaults + env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Device.GracePeriod <= 0 {
		cfg.Device.GracePeriod = 5 * time.Minute
	}
	return &cfg, nil
}
