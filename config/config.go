package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Debug     bool   `mapstructure:"debug"`
	PublicURL string `mapstructure:"public_url"` // Base URL used for self-links, e.g. http://localhost:8080
	AdminKey  string `mapstructure:"admin_key"`
	// AdminIPs restricts admin endpoints to these client IPs. Empty allows all.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
}

type UploadsConfig struct {
	Dir             string        `mapstructure:"dir"`
	DefaultPic      string        `mapstructure:"default_pic"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	MaxDownloadMB   int64         `mapstructure:"max_download_mb"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	OrphanTTL       time.Duration `mapstructure:"orphan_ttl"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error; the defaults describe a runnable sqlite setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/companion.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.default_pic", "uploads/characterPicDefault.jpg")
	v.SetDefault("uploads.download_timeout", "10s")
	v.SetDefault("uploads.max_download_mb", 8)
	v.SetDefault("uploads.cleanup_interval", "1h")
	v.SetDefault("uploads.orphan_ttl", "24h")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
