package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса containment.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	KillSwitch KillSwitchConfig `mapstructure:"killswitch"`
	Watermark  WatermarkConfig  `mapstructure:"watermark"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (счетчики и Pub/Sub сигналы).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DetectorConfig — пороги эскалации детектора нарушений.
// Проверка идет по убыванию строгости: suspend > terminate > warn.
type DetectorConfig struct {
	SessionWarningCount   int64 `mapstructure:"session_warning_count"`
	SessionTerminateCount int64 `mapstructure:"session_terminate_count"`
	UserSuspendCount      int64 `mapstructure:"user_suspend_count"`
}

// KillSwitchConfig — параметры каскада отзыва доступа.
type KillSwitchConfig struct {
	Workers       int           `mapstructure:"workers"`        // Размер пула для fan-out по целям
	TargetTimeout time.Duration `mapstructure:"target_timeout"` // Таймаут одной внешней операции
	SLA           time.Duration `mapstructure:"sla"`            // Порог фиксации SLA-превышения
}

// WatermarkConfig — дефолты кодеков, перекрываемые политикой/запросом.
type WatermarkConfig struct {
	DCTBlockSize   int     `mapstructure:"dct_block_size"`
	DCTStrength    float64 `mapstructure:"dct_strength"`
	DWTLevels      int     `mapstructure:"dwt_levels"`
	DWTStrength    float64 `mapstructure:"dwt_strength"`
	Redundancy     int     `mapstructure:"redundancy"`
	DefaultChannel int     `mapstructure:"default_channel"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла (отсутствие файла — не ошибка, работаем на ENV)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("logger.level", "info")

	// Пороги из регламента ИБ: warn=3, terminate=10, suspend=25
	v.SetDefault("detector.session_warning_count", 3)
	v.SetDefault("detector.session_terminate_count", 10)
	v.SetDefault("detector.user_suspend_count", 25)

	v.SetDefault("killswitch.workers", 8)
	v.SetDefault("killswitch.target_timeout", 10*time.Second)
	v.SetDefault("killswitch.sla", 5*time.Second)

	v.SetDefault("watermark.dct_block_size", 8)
	v.SetDefault("watermark.dct_strength", 25.0)
	v.SetDefault("watermark.dwt_levels", 2)
	v.SetDefault("watermark.dwt_strength", 10.0)
	v.SetDefault("watermark.redundancy", 3)
	v.SetDefault("watermark.default_channel", 0)
}
