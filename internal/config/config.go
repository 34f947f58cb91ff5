package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Chain        ChainConfig        `mapstructure:"chain"`
	Tracking     TrackingConfig     `mapstructure:"tracking"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Export       ExportConfig       `mapstructure:"export"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN 根据驱动类型生成连接串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
	case "sqlite":
		return d.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.Port, d.DBName)
	}
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ChainConfig struct {
	Name           string        `mapstructure:"name"`
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	TokenAddress   string        `mapstructure:"token_address"`
	PrivateKey     string        `mapstructure:"private_key"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	Mainnet        bool          `mapstructure:"mainnet"`
}

type TrackingConfig struct {
	MaxAccuracyMeters float64       `mapstructure:"max_accuracy_meters"`
	MaxSpeedMph       float64       `mapstructure:"max_speed_mph"`
	MinMovementMeters float64       `mapstructure:"min_movement_meters"`
	AssumedInterval   time.Duration `mapstructure:"assumed_interval"`
	IntervalMode      string        `mapstructure:"interval_mode"`
	SessionStore      string        `mapstructure:"session_store"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
}

type DistributionConfig struct {
	InputCSV      string        `mapstructure:"input_csv"`
	LogDir        string        `mapstructure:"log_dir"`
	ProcessedFile string        `mapstructure:"processed_file"`
	Delay         time.Duration `mapstructure:"delay"`
	StartDelay    time.Duration `mapstructure:"start_delay"`
}

type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Cron      string `mapstructure:"cron"`
	OutputDir string `mapstructure:"output_dir"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Region  string `mapstructure:"s3_region"`
	S3Prefix  string `mapstructure:"s3_prefix"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fyts")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "fyts.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("chain.name", "polygon")
	v.SetDefault("chain.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chain.chain_id", 137)
	v.SetDefault("chain.token_address", "0x4058b5E8f569806C14D30eF5C7563a47D2248fb4")
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.confirm_timeout", "3m")
	v.SetDefault("chain.mainnet", true)

	v.SetDefault("tracking.max_accuracy_meters", 65.0)
	v.SetDefault("tracking.max_speed_mph", 15.0)
	v.SetDefault("tracking.min_movement_meters", 3.0)
	v.SetDefault("tracking.assumed_interval", "5s")
	v.SetDefault("tracking.interval_mode", "fixed")
	v.SetDefault("tracking.session_store", "memory")
	v.SetDefault("tracking.session_ttl", "6h")

	v.SetDefault("distribution.input_csv", "approvedvalidation.csv")
	v.SetDefault("distribution.log_dir", ".")
	v.SetDefault("distribution.processed_file", "processed-distributions.csv")
	v.SetDefault("distribution.delay", "1s")
	v.SetDefault("distribution.start_delay", "5s")

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.cron", "0 0 0 * * *")
	v.SetDefault("export.output_dir", "exports")
	v.SetDefault("export.s3_bucket", "")
	v.SetDefault("export.s3_region", "us-east-1")
	v.SetDefault("export.s3_prefix", "exports/")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// Load 读取配置文件并叠加 FYTS_ 前缀的环境变量
// 配置文件不存在时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FYTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Tracking.IntervalMode {
	case "fixed", "measured":
	default:
		return fmt.Errorf("unsupported tracking.interval_mode: %s", c.Tracking.IntervalMode)
	}
	switch c.Tracking.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported tracking.session_store: %s", c.Tracking.SessionStore)
	}
	if c.Tracking.AssumedInterval <= 0 {
		return fmt.Errorf("tracking.assumed_interval must be positive")
	}
	if c.Distribution.Delay < 0 || c.Distribution.StartDelay < 0 {
		return fmt.Errorf("distribution delays must not be negative")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
