package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port     int    `mapstructure:"port"`
		LogLevel string `mapstructure:"logLevel"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		// 为空时从环境变量 JWT_SECRET 读取
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Collab struct {
		RingCap       int `mapstructure:"ringCap"`
		HistoryDepth  int `mapstructure:"historyDepth"`
		SnapshotEvery int `mapstructure:"snapshotEvery"`
	} `mapstructure:"collab"`
}

// Load 读取 collabConfig.yaml，环境变量 COLLAB_<SECTION>_<KEY> 可以覆盖文件里的值
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COLLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("running.port", 8081)
	v.SetDefault("running.logLevel", "info")
	v.SetDefault("kafka.topic", "doc-ops")
	v.SetDefault("collab.ringCap", 1024)
	v.SetDefault("collab.historyDepth", 100)
	v.SetDefault("collab.snapshotEvery", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
